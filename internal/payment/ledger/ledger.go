// Package ledger is an in-memory custodial ledger that settles registry
// payments. It holds one balance per (asset, account) pair, where the zero
// asset address is native currency, plus a custody account owned by the
// registry.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/bits"
	"sync"

	id "seisreg/pkg/domain"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("balance overflow")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type account struct {
	asset id.Address
	owner id.Address
}

// Ledger implements both the native and the token payment gateways.
type Ledger struct {
	mu       sync.Mutex
	custody  id.Address
	balances map[account]uint64
	logger   *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger whose custody account is custody.
func New(custody id.Address, opts ...Option) *Ledger {
	l := &Ledger{
		custody:  custody,
		balances: make(map[account]uint64),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Custody reports the registry's custody account.
func (l *Ledger) Custody() id.Address {
	return l.custody
}

// Deposit credits an account out of thin air. Used by the dev faucet and tests.
func (l *Ledger) Deposit(_ context.Context, asset, owner id.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(account{asset, owner}, amount)
}

// Balance reads one account.
func (l *Ledger) Balance(asset, owner id.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account{asset, owner}]
}

// Capture moves native currency from a buyer into custody.
func (l *Ledger) Capture(ctx context.Context, from id.Address, amount uint64) error {
	return l.move(ctx, id.ZeroAddress, from, l.custody, amount)
}

// Send releases native currency held in custody.
func (l *Ledger) Send(ctx context.Context, to id.Address, amount uint64) error {
	return l.move(ctx, id.ZeroAddress, l.custody, to, amount)
}

// TransferFrom pulls tokens from a buyer into custody. Insufficient funds are
// reported as false rather than an error, as a token contract would.
func (l *Ledger) TransferFrom(ctx context.Context, token, from id.Address, amount uint64) (bool, error) {
	return l.tokenMove(ctx, token, from, l.custody, amount)
}

// Transfer pushes tokens out of custody.
func (l *Ledger) Transfer(ctx context.Context, token, to id.Address, amount uint64) (bool, error) {
	return l.tokenMove(ctx, token, l.custody, to, amount)
}

func (l *Ledger) tokenMove(ctx context.Context, token, from, to id.Address, amount uint64) (bool, error) {
	if token.IsZero() {
		return false, errors.New("token address is required")
	}
	err := l.move(ctx, token, from, to, amount)
	if errors.Is(err, ErrInsufficientFunds) {
		return false, nil
	}
	return err == nil, err
}

func (l *Ledger) move(ctx context.Context, asset, from, to id.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	src, dst := account{asset, from}, account{asset, to}
	if l.balances[src] < amount {
		return ErrInsufficientFunds
	}
	if src != dst {
		if _, carry := bits.Add64(l.balances[dst], amount, 0); carry != 0 {
			return ErrOverflow
		}
		l.debit(src, amount)
		l.balances[dst] += amount
	}
	l.logger.DebugContext(ctx, "ledger transfer",
		"asset", asset.String(),
		"from", from.String(),
		"to", to.String(),
		"amount", amount,
	)
	return nil
}

func (l *Ledger) credit(acct account, amount uint64) error {
	sum, carry := bits.Add64(l.balances[acct], amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	l.balances[acct] = sum
	return nil
}

func (l *Ledger) debit(acct account, amount uint64) {
	left := l.balances[acct] - amount
	if left == 0 {
		delete(l.balances, acct)
		return
	}
	l.balances[acct] = left
}
