package service

import (
	"context"
	"math/bits"

	"go.opentelemetry.io/otel/attribute"

	"seisreg/internal/events"
	"seisreg/internal/registry/models"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
)

// Withdraw pays the caller's whole native pending balance and returns the
// amount released.
func (s *Service) Withdraw(ctx context.Context) (uint64, error) {
	return s.withdraw(ctx, methodNative, id.ZeroAddress, s.native.Send)
}

// WithdrawToken pays the caller's whole pending balance in token.
func (s *Service) WithdrawToken(ctx context.Context, token id.Address) (uint64, error) {
	if err := requireAddress(token, "token"); err != nil {
		return 0, err
	}
	return s.withdraw(ctx, methodToken, token, func(ctx context.Context, to id.Address, amount uint64) error {
		return tokenCall(s.tokens.Transfer(ctx, token, to, amount))
	})
}

// withdraw zeroes the balance and reserves the amount in one transaction
// before releasing funds. A gateway that calls back into withdraw for the
// same key sees zero; a purchase crediting the key meanwhile cannot use the
// headroom the reservation holds.
func (s *Service) withdraw(ctx context.Context, method string, token id.Address, release func(ctx context.Context, to id.Address, amount uint64) error) (amount uint64, err error) {
	ctx, done := s.begin(ctx, "Withdraw", attribute.String("method", method))
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordWithdrawal(method, string(outcome(err)))
		}
		done(err)
	}()

	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, err
	}
	key := models.BalanceKey{Token: token, Account: caller}

	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		amount = tables.Balance(key)
		if amount == 0 {
			return dErrors.New(dErrors.CodeNothingToWithdraw, "no pending balance")
		}
		tables.SetBalance(key, 0)
		tables.Reserve(key, amount)
		return nil
	})
	if err != nil {
		return 0, coded(err, "failed to withdraw")
	}

	if err = release(ctx, caller, amount); err != nil {
		s.paymentFailed(ctx, "withdraw_"+method, err)
		s.restore(ctx, key, amount)
		return 0, dErrors.Wrap(err, dErrors.CodePaymentFailed, "fund release failed")
	}

	kind := events.KindFundsWithdrawn
	if method == methodToken {
		kind = events.KindTokenFundsWithdrawn
	}
	s.settle(ctx, key, amount, events.Event{
		Kind:   kind,
		Actor:  caller,
		Token:  token,
		Amount: amount,
	}, "amount", amount, "method", method)
	return amount, nil
}

// settle drops the reservation of a released withdrawal and records its
// event in the same transaction.
func (s *Service) settle(ctx context.Context, key models.BalanceKey, amount uint64, event events.Event, attributes ...any) {
	err := s.store.RunInTx(context.WithoutCancel(ctx), func(tables store.Tables) error {
		tables.Unreserve(key, amount)
		s.record(ctx, event, attributes...)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to settle withdrawal reservation",
			"account", key.Account.String(),
			"token", key.Token.String(),
			"amount", amount,
			"error", err,
		)
	}
}

// restore moves a failed release from the reservation back into the
// balance. Purchases may have credited the key while funds were in flight,
// so the amount is added rather than assigned; the reservation guarantees
// the sum fits.
func (s *Service) restore(ctx context.Context, key models.BalanceKey, amount uint64) {
	err := s.store.RunInTx(context.WithoutCancel(ctx), func(tables store.Tables) error {
		sum, carry := bits.Add64(tables.Balance(key), amount, 0)
		if carry != 0 {
			return dErrors.New(dErrors.CodeInternal, "pending balance would overflow on restore")
		}
		tables.Unreserve(key, amount)
		tables.SetBalance(key, sum)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to restore pending balance",
			"account", key.Account.String(),
			"token", key.Token.String(),
			"amount", amount,
			"error", err,
		)
	}
}

func outcome(err error) dErrors.Code {
	if err == nil {
		return "ok"
	}
	return dErrors.CodeOf(err)
}
