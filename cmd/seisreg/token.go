package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"seisreg/internal/auth/token"
	id "seisreg/pkg/domain"
)

// tokenCommand mints a bearer token for an address with the server's
// signing key. Handy for local testing against the API.
func tokenCommand() *cobra.Command {
	var (
		address string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			addr, err := id.ParseAddress(address)
			if err != nil {
				return fmt.Errorf("--address: %w", err)
			}
			if addr.IsZero() {
				return errors.New("--address must not be the zero address")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			tok, err := token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer).Issue(addr, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "caller address the token names")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to SEISREG_TOKEN_TTL")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
