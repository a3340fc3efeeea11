package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"seisreg/internal/events"
	"seisreg/internal/registry/models"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/requestcontext"
)

// RegisterDataset records a seismic dataset owned by the caller.
func (s *Service) RegisterDataset(ctx context.Context, hash id.ContentHash, uri, licenseTerms string) (id.AssetID, error) {
	return s.registerAsset(ctx, models.AssetKindDataset, hash, uri, licenseTerms)
}

// RegisterModel records a trained model owned by the caller.
func (s *Service) RegisterModel(ctx context.Context, hash id.ContentHash, uri, licenseTerms string) (id.AssetID, error) {
	return s.registerAsset(ctx, models.AssetKindModel, hash, uri, licenseTerms)
}

func (s *Service) registerAsset(ctx context.Context, kind models.AssetKind, hash id.ContentHash, uri, licenseTerms string) (assetID id.AssetID, err error) {
	ctx, done := s.begin(ctx, "RegisterAsset", attribute.String("kind", string(kind)))
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, err
	}
	asset, err := models.NewAsset(0, kind, caller, hash, uri, licenseTerms, requestcontext.Now(ctx))
	if err != nil {
		return 0, err
	}

	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		if _, err := tables.FindAssetIDByHash(hash); err == nil {
			return dErrors.New(dErrors.CodeConflict, "content hash already registered")
		} else if !errors.Is(err, store.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check content hash")
		}
		assetID, err = tables.InsertAsset(asset)
		if errors.Is(err, store.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "content hash already registered")
		}
		if err != nil {
			return err
		}
		s.record(ctx, events.Event{
			Kind:    events.KindAssetRegistered,
			AssetID: assetID,
			Actor:   caller,
		}, "asset_id", assetID, "kind", string(kind), "content_hash", hash.String())
		return nil
	})
	if err != nil {
		return 0, coded(err, "failed to register asset")
	}
	if s.metrics != nil {
		s.metrics.IncrementAssetRegistered(string(kind))
	}
	return assetID, nil
}

// StoreCID sets the off-chain payload CID of an asset. Last write wins.
func (s *Service) StoreCID(ctx context.Context, assetID id.AssetID, cid string) (err error) {
	ctx, done := s.begin(ctx, "StoreCID", attribute.Int64("asset_id", int64(assetID)))
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
		asset.CID = cid
		if err := tables.UpdateAsset(asset); err != nil {
			return err
		}
		s.record(ctx, events.Event{
			Kind:    events.KindCIDStored,
			AssetID: assetID,
			Actor:   caller,
			CID:     cid,
		}, "asset_id", assetID)
		return nil
	})
	if err != nil {
		return coded(err, "failed to store cid")
	}
	return nil
}

// StoreEncryptedKeyCID attaches the encrypted decryption-key reference for
// one license of an asset. The license must belong to that asset.
func (s *Service) StoreEncryptedKeyCID(ctx context.Context, assetID id.AssetID, licenseID id.LicenseID, cid string) (err error) {
	ctx, done := s.begin(ctx, "StoreEncryptedKeyCID",
		attribute.Int64("asset_id", int64(assetID)),
		attribute.Int64("license_id", int64(licenseID)),
	)
	defer func() { done(err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		if _, err := loadOwnedAsset(tables, assetID, caller); err != nil {
			return err
		}
		if licenseID.IsNil() || licenseID > tables.LastLicenseID() {
			return dErrors.New(dErrors.CodeNotFound, "license not found")
		}
		license, err := loadLicense(tables, licenseID)
		if err != nil {
			return err
		}
		if license.AssetID != assetID {
			return dErrors.New(dErrors.CodeMismatch, "license does not belong to the asset")
		}
		tables.SetKeyCID(assetID, licenseID, cid)
		s.record(ctx, events.Event{
			Kind:      events.KindKeyCIDStored,
			AssetID:   assetID,
			LicenseID: licenseID,
			Actor:     caller,
			CID:       cid,
		}, "asset_id", assetID, "license_id", licenseID)
		return nil
	})
	if err != nil {
		return coded(err, "failed to store encrypted key cid")
	}
	return nil
}
