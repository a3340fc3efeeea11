package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"seisreg/internal/events"
	"seisreg/internal/registry/models"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/requestcontext"
)

const (
	methodNative = "native"
	methodToken  = "token"
)

// settlement describes one payment path. capture escrows funds from the
// buyer; refund returns them if the commit cannot complete.
type settlement struct {
	method  string
	token   id.Address
	check   func(license *models.License, amount uint64) error
	capture func(ctx context.Context, buyer id.Address, amount uint64) error
	refund  func(ctx context.Context, buyer id.Address, amount uint64) error
}

// Purchase pays for a license in native currency. Any amount above the
// price is kept and credited to the licensor in full.
func (s *Service) Purchase(ctx context.Context, licenseID id.LicenseID, amount uint64) (id.PurchaseID, error) {
	return s.purchase(ctx, licenseID, amount, settlement{
		method:  methodNative,
		check:   requireNativePayment,
		capture: s.native.Capture,
		refund:  s.native.Send,
	})
}

// PurchaseWithToken pays for a license in a fungible token. The amount is
// not compared with the license price.
func (s *Service) PurchaseWithToken(ctx context.Context, token id.Address, licenseID id.LicenseID, amount uint64) (id.PurchaseID, error) {
	if err := requireAddress(token, "token"); err != nil {
		return 0, err
	}
	return s.purchase(ctx, licenseID, amount, settlement{
		method: methodToken,
		token:  token,
		capture: func(ctx context.Context, buyer id.Address, amount uint64) error {
			return tokenCall(s.tokens.TransferFrom(ctx, token, buyer, amount))
		},
		refund: func(ctx context.Context, buyer id.Address, amount uint64) error {
			return tokenCall(s.tokens.Transfer(ctx, token, buyer, amount))
		},
	})
}

func (s *Service) purchase(ctx context.Context, licenseID id.LicenseID, amount uint64, pay settlement) (purchaseID id.PurchaseID, err error) {
	ctx, done := s.begin(ctx, "Purchase",
		attribute.String("method", pay.method),
		attribute.Int64("license_id", int64(licenseID)),
	)
	defer func() { done(err) }()

	buyer, err := requireCaller(ctx)
	if err != nil {
		return 0, err
	}

	// The precheck runs every gate so a doomed purchase never reaches the
	// gateway. The commit repeats them because the lock is released while
	// funds are captured.
	gates := func(tables store.Tables) (*models.License, uint64, error) {
		license, err := loadActiveLicense(tables, licenseID, amount)
		if err != nil {
			return nil, 0, err
		}
		if pay.check != nil {
			if err := pay.check(license, amount); err != nil {
				return nil, 0, err
			}
		}
		credited, err := creditedBalance(tables, models.BalanceKey{Token: pay.token, Account: license.Licensor}, amount)
		if err != nil {
			return nil, 0, err
		}
		return license, credited, nil
	}
	if err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		_, _, err := gates(tables)
		return err
	}); err != nil {
		return 0, coded(err, "failed to check purchase")
	}

	if err = pay.capture(ctx, buyer, amount); err != nil {
		s.paymentFailed(ctx, "purchase_"+pay.method, err)
		return 0, dErrors.Wrap(err, dErrors.CodePaymentFailed, "payment capture failed")
	}

	paidAt := requestcontext.Now(ctx)
	err = s.store.RunInTx(context.WithoutCancel(ctx), func(tables store.Tables) error {
		license, credited, err := gates(tables)
		if err != nil {
			return err
		}
		record := &models.Purchase{
			LicenseID: licenseID,
			Buyer:     buyer,
			Token:     pay.token,
			Amount:    amount,
			PaidAt:    paidAt,
		}
		purchaseID, err = tables.InsertPurchase(record)
		if err != nil {
			return err
		}
		tables.SetBalance(models.BalanceKey{Token: pay.token, Account: license.Licensor}, credited)

		kind := events.KindTokenPurchaseRecorded
		if record.IsNative() {
			kind = events.KindPurchaseRecorded
		}
		s.record(ctx, events.Event{
			Kind:         kind,
			AssetID:      license.AssetID,
			LicenseID:    licenseID,
			PurchaseID:   purchaseID,
			Actor:        buyer,
			Counterparty: license.Licensor,
			Token:        pay.token,
			Amount:       amount,
		}, "license_id", licenseID, "purchase_id", purchaseID, "amount", amount)
		return nil
	})
	if err != nil {
		if refundErr := pay.refund(context.WithoutCancel(ctx), buyer, amount); refundErr != nil {
			s.logger.ErrorContext(ctx, "failed to refund captured payment",
				"license_id", licenseID,
				"buyer", buyer.String(),
				"amount", amount,
				"method", pay.method,
				"error", refundErr,
			)
		}
		return 0, coded(err, "failed to record purchase")
	}

	if s.metrics != nil {
		s.metrics.RecordPurchase(pay.method, amount)
	}
	return purchaseID, nil
}

// tokenCall folds the token gateway's boolean signal into an error.
func tokenCall(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errTokenRejected
	}
	return nil
}

var errTokenRejected = dErrors.New(dErrors.CodePaymentFailed, "token transfer rejected")

func (s *Service) paymentFailed(ctx context.Context, operation string, err error) {
	s.logger.WarnContext(ctx, "payment gateway failure",
		"operation", operation,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.IncrementPaymentFailure(operation)
	}
}
