package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"seisreg/internal/events"
	"seisreg/internal/registry/models"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	"seisreg/pkg/requestcontext"
)

// IssueLicense grants terms against an asset. The caller must own the asset
// and becomes the license's licensor for good. A zero licensee leaves the
// license open; a zero price makes it unpurchasable.
func (s *Service) IssueLicense(ctx context.Context, assetID id.AssetID, licensee id.Address, termsRef string, price uint64) (licenseID id.LicenseID, err error) {
	ctx, done := s.begin(ctx, "IssueLicense", attribute.Int64("asset_id", int64(assetID)))
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, err
	}
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		if _, err := loadOwnedAsset(tables, assetID, caller); err != nil {
			return err
		}
		licenseID, err = tables.InsertLicense(&models.License{
			AssetID:  assetID,
			Licensor: caller,
			Licensee: licensee,
			TermsRef: termsRef,
			Price:    price,
			IssuedAt: requestcontext.Now(ctx),
		})
		if err != nil {
			return err
		}
		s.record(ctx, events.Event{
			Kind:         events.KindLicenseIssued,
			AssetID:      assetID,
			LicenseID:    licenseID,
			Actor:        caller,
			Counterparty: licensee,
			Amount:       price,
		}, "asset_id", assetID, "license_id", licenseID, "price", price)
		return nil
	})
	if err != nil {
		return 0, coded(err, "failed to issue license")
	}
	if s.metrics != nil {
		s.metrics.LicensesIssued.Inc()
	}
	return licenseID, nil
}

// RevokeLicense flips the revoked flag. Only the licensor or the registry
// administrator may revoke. Revoking an already revoked license succeeds
// without emitting a second notification.
func (s *Service) RevokeLicense(ctx context.Context, licenseID id.LicenseID) (err error) {
	ctx, done := s.begin(ctx, "RevokeLicense", attribute.Int64("license_id", int64(licenseID)))
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	changed := false
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		license, err := loadLicense(tables, licenseID)
		if err != nil {
			return err
		}
		if err := requireLicensorOrAdmin(tables, license, caller); err != nil {
			return err
		}
		if license.Revoked {
			return nil
		}
		license.Revoked = true
		if err := tables.UpdateLicense(license); err != nil {
			return err
		}
		changed = true
		s.record(ctx, events.Event{
			Kind:      events.KindLicenseRevoked,
			AssetID:   license.AssetID,
			LicenseID: licenseID,
			Actor:     caller,
		}, "license_id", licenseID)
		return nil
	})
	if err != nil {
		return coded(err, "failed to revoke license")
	}
	if changed && s.metrics != nil {
		s.metrics.LicensesRevoked.Inc()
	}
	return nil
}

// TransferAsset hands ownership to another identity. Licenses already issued
// keep their original licensor, who still receives their purchase proceeds.
func (s *Service) TransferAsset(ctx context.Context, assetID id.AssetID, to id.Address) (err error) {
	ctx, done := s.begin(ctx, "TransferAsset", attribute.Int64("asset_id", int64(assetID)))
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		asset, err := loadOwnedAsset(tables, assetID, caller)
		if err != nil {
			return err
		}
		if err := requireAddress(to, "recipient"); err != nil {
			return err
		}
		asset.Owner = to
		if err := tables.UpdateAsset(asset); err != nil {
			return err
		}
		s.record(ctx, events.Event{
			Kind:         events.KindAssetTransferred,
			AssetID:      assetID,
			Actor:        caller,
			Counterparty: to,
		}, "asset_id", assetID, "to", to.String())
		return nil
	})
	if err != nil {
		return coded(err, "failed to transfer asset")
	}
	return nil
}

// TransferAdmin moves the registry administrator role. Only the current
// administrator may call it.
func (s *Service) TransferAdmin(ctx context.Context, to id.Address) (err error) {
	ctx, done := s.begin(ctx, "TransferAdmin")
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		if err := requireAdmin(tables, caller); err != nil {
			return err
		}
		if err := requireAddress(to, "new administrator"); err != nil {
			return err
		}
		tables.SetAdmin(to)
		s.record(ctx, events.Event{
			Kind:         events.KindAdminTransferred,
			Actor:        caller,
			Counterparty: to,
		}, "to", to.String())
		return nil
	})
	if err != nil {
		return coded(err, "failed to transfer administrator")
	}
	return nil
}
