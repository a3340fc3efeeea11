// Package token issues and validates the bearer tokens that carry a caller's
// registry identity.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
)

// Claims are the registered claims plus nothing else: the subject is the
// caller's address.
type Claims struct {
	jwt.RegisteredClaims
}

// Service handles HS256 token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(signingKey, issuer string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a token for address valid for ttl.
func (s *Service) Issue(address id.Address, ttl time.Duration) (string, error) {
	if address.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "token subject must not be the zero address")
	}
	now := s.now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Validate parses a token and returns the caller address it names.
func (s *Service) Validate(tokenString string) (id.Address, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.ZeroAddress, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.ZeroAddress, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.ZeroAddress, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	address, err := id.ParseAddress(claims.Subject)
	if err != nil || address.IsZero() {
		return id.ZeroAddress, dErrors.New(dErrors.CodeUnauthorized, "token subject is not an address")
	}
	return address, nil
}
