// Package handler exposes the custodial ledger to operators. The routes fund
// accounts out of thin air and exist for local development and demos only.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"seisreg/internal/payment/ledger"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/platform/httputil"
	"seisreg/pkg/platform/middleware/admin"
	request "seisreg/pkg/platform/middleware/request"
)

// Ledger is the subset of the custodial ledger the faucet needs.
type Ledger interface {
	Deposit(ctx context.Context, asset, owner id.Address, amount uint64) error
	Balance(asset, owner id.Address) uint64
}

type Handler struct {
	ledger     Ledger
	adminToken string
	logger     *slog.Logger
}

func New(l Ledger, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{ledger: l, adminToken: adminToken, logger: logger}
}

// Register mounts the faucet under /dev/ledger behind the operator token.
func (h *Handler) Register(r chi.Router) {
	r.Route("/dev/ledger", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/deposits", h.handleDeposit)
		r.Get("/balances/{address}", h.handleBalance)
	})
}

// DepositRequest credits Amount of Token, or native currency when Token is
// empty, to Address.
type DepositRequest struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Amount  uint64 `json:"amount"`
}

type BalanceResponse struct {
	Address id.Address  `json:"address"`
	Token   *id.Address `json:"token,omitempty"`
	Balance uint64      `json:"balance"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DepositRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	owner, err := parseAddress(req.Address, "address")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asset, err := parseToken(req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.ledger.Deposit(ctx, asset, owner, req.Amount); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			err = dErrors.Wrap(err, dErrors.CodeBadRequest, "amount must be positive")
		case errors.Is(err, ledger.ErrOverflow):
			err = dErrors.Wrap(err, dErrors.CodeInvalidArgument, "deposit would overflow the balance")
		default:
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to deposit")
		}
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "dev deposit",
		"event", "ledger_deposit",
		"log_type", "audit",
		"address", owner.String(),
		"token", asset.String(),
		"amount", req.Amount,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, h.balance(owner, asset))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(chi.URLParam(r, "address"), "address")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asset, err := parseToken(r.URL.Query().Get("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.balance(owner, asset))
}

func (h *Handler) balance(owner, asset id.Address) BalanceResponse {
	resp := BalanceResponse{Address: owner, Balance: h.ledger.Balance(asset, owner)}
	if !asset.IsZero() {
		resp.Token = &asset
	}
	return resp
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "ledger request failed",
		"error", err,
		"path", r.URL.Path,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func parseAddress(raw, field string) (id.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id.ZeroAddress, dErrors.New(dErrors.CodeBadRequest, field+" is required")
	}
	addr, err := id.ParseAddress(raw)
	if err != nil {
		return id.ZeroAddress, dErrors.Wrap(err, dErrors.CodeBadRequest, field+" must be a 20-byte hex address")
	}
	if addr.IsZero() {
		return id.ZeroAddress, dErrors.New(dErrors.CodeBadRequest, field+" must not be the zero address")
	}
	return addr, nil
}

// parseToken treats an empty value as native currency.
func parseToken(raw string) (id.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return id.ZeroAddress, nil
	}
	return parseAddress(raw, "token")
}
