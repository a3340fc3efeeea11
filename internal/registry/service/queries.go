package service

import (
	"context"

	"seisreg/internal/registry/models"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
)

// Read accessors need no caller identity. Each runs in its own transaction
// so it observes a committed state.

func (s *Service) GetAsset(ctx context.Context, assetID id.AssetID) (asset *models.Asset, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		asset, err = loadAsset(tables, assetID)
		return err
	})
	return asset, coded(err, "failed to load asset")
}

func (s *Service) GetAssetByHash(ctx context.Context, hash id.ContentHash) (asset *models.Asset, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		assetID, err := tables.FindAssetIDByHash(hash)
		if err != nil {
			return notFoundOr(err, "asset not found", "failed to look up content hash")
		}
		asset, err = loadAsset(tables, assetID)
		return err
	})
	return asset, coded(err, "failed to load asset")
}

func (s *Service) GetLicense(ctx context.Context, licenseID id.LicenseID) (license *models.License, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		license, err = loadLicense(tables, licenseID)
		return err
	})
	return license, coded(err, "failed to load license")
}

func (s *Service) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (purchase *models.Purchase, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		purchase, err = tables.FindPurchase(purchaseID)
		if err != nil {
			return notFoundOr(err, "purchase not found", "failed to load purchase")
		}
		return nil
	})
	return purchase, coded(err, "failed to load purchase")
}

// GetLicensesOfAsset lists license ids in issuance order.
func (s *Service) GetLicensesOfAsset(ctx context.Context, assetID id.AssetID) (ids []id.LicenseID, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		ids, err = tables.LicensesOfAsset(assetID)
		if err != nil {
			return notFoundOr(err, "asset not found", "failed to list licenses")
		}
		return nil
	})
	return ids, coded(err, "failed to list licenses")
}

// GetPurchasesOfLicense lists purchase ids in purchase order.
func (s *Service) GetPurchasesOfLicense(ctx context.Context, licenseID id.LicenseID) (ids []id.PurchaseID, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		ids, err = tables.PurchasesOfLicense(licenseID)
		if err != nil {
			return notFoundOr(err, "license not found", "failed to list purchases")
		}
		return nil
	})
	return ids, coded(err, "failed to list purchases")
}

// GetEncryptedKeyCID returns "" when no reference has been stored.
func (s *Service) GetEncryptedKeyCID(ctx context.Context, assetID id.AssetID, licenseID id.LicenseID) (cid string, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		cid = tables.KeyCID(assetID, licenseID)
		return nil
	})
	return cid, coded(err, "failed to load key cid")
}

func (s *Service) PendingBalance(ctx context.Context, account id.Address) (uint64, error) {
	return s.balance(ctx, models.NativeBalance(account))
}

func (s *Service) PendingTokenBalance(ctx context.Context, token, account id.Address) (uint64, error) {
	return s.balance(ctx, models.TokenBalance(token, account))
}

func (s *Service) balance(ctx context.Context, key models.BalanceKey) (amount uint64, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		amount = tables.Balance(key)
		return nil
	})
	return amount, coded(err, "failed to load balance")
}

// Admin returns the current registry administrator.
func (s *Service) Admin(ctx context.Context) (admin id.Address, err error) {
	err = s.store.RunInTx(ctx, func(tables store.Tables) error {
		admin = tables.Admin()
		return nil
	})
	return admin, coded(err, "failed to load administrator")
}
