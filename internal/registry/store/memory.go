package store

import (
	"context"
	"fmt"
	"sync"

	"seisreg/internal/registry/models"
	id "seisreg/pkg/domain"
	"seisreg/pkg/platform/sentinel"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = sentinel.ErrNotFound

// ErrConflict is returned when an insert would break a uniqueness index.
var ErrConflict = sentinel.ErrConflict

// Tables is the transactional view of registry state handed to RunInTx
// callbacks. It is only valid for the duration of the callback.
//
// Insert methods allocate the next sequential id, write the row and update
// every derived index in one step. Find methods return copies; callers write
// changes back through the matching Update method.
type Tables interface {
	InsertAsset(asset *models.Asset) (id.AssetID, error)
	FindAsset(assetID id.AssetID) (*models.Asset, error)
	FindAssetIDByHash(hash id.ContentHash) (id.AssetID, error)
	UpdateAsset(asset *models.Asset) error

	InsertLicense(license *models.License) (id.LicenseID, error)
	FindLicense(licenseID id.LicenseID) (*models.License, error)
	UpdateLicense(license *models.License) error
	LastLicenseID() id.LicenseID
	LicensesOfAsset(assetID id.AssetID) ([]id.LicenseID, error)

	InsertPurchase(purchase *models.Purchase) (id.PurchaseID, error)
	FindPurchase(purchaseID id.PurchaseID) (*models.Purchase, error)
	PurchasesOfLicense(licenseID id.LicenseID) ([]id.PurchaseID, error)

	SetKeyCID(assetID id.AssetID, licenseID id.LicenseID, cid string)
	KeyCID(assetID id.AssetID, licenseID id.LicenseID) string

	Balance(key models.BalanceKey) uint64
	SetBalance(key models.BalanceKey, amount uint64)

	// Reserved is the amount taken out of key by withdrawals whose release
	// has not settled. Balance plus Reserved never exceeds MaxUint64.
	Reserved(key models.BalanceKey) uint64
	Reserve(key models.BalanceKey, amount uint64)
	Unreserve(key models.BalanceKey, amount uint64)

	Admin() id.Address
	SetAdmin(addr id.Address)
}

type keyRef struct {
	asset   id.AssetID
	license id.LicenseID
}

// InMemoryStore owns every registry table, index and sequence counter.
// All access goes through RunInTx, which serializes callbacks on one mutex.
type InMemoryStore struct {
	mu sync.Mutex

	admin id.Address

	assets    map[id.AssetID]models.Asset
	licenses  map[id.LicenseID]models.License
	purchases map[id.PurchaseID]models.Purchase

	assetByHash        map[id.ContentHash]id.AssetID
	licensesByAsset    map[id.AssetID][]id.LicenseID
	purchasesByLicense map[id.LicenseID][]id.PurchaseID

	keyCIDs  map[keyRef]string
	balances map[models.BalanceKey]uint64
	reserved map[models.BalanceKey]uint64

	lastAsset    id.AssetID
	lastLicense  id.LicenseID
	lastPurchase id.PurchaseID
}

// NewInMemory builds an empty registry administered by admin.
func NewInMemory(admin id.Address) *InMemoryStore {
	return &InMemoryStore{
		admin:              admin,
		assets:             make(map[id.AssetID]models.Asset),
		licenses:           make(map[id.LicenseID]models.License),
		purchases:          make(map[id.PurchaseID]models.Purchase),
		assetByHash:        make(map[id.ContentHash]id.AssetID),
		licensesByAsset:    make(map[id.AssetID][]id.LicenseID),
		purchasesByLicense: make(map[id.LicenseID][]id.PurchaseID),
		keyCIDs:            make(map[keyRef]string),
		balances:           make(map[models.BalanceKey]uint64),
		reserved:           make(map[models.BalanceKey]uint64),
	}
}

// RunInTx runs fn with exclusive access to the tables. Callbacks must run
// every precondition check before their first write; the in-memory store
// keeps no undo log, so an error returned after a write leaves it applied.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tables Tables) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

func (s *InMemoryStore) InsertAsset(asset *models.Asset) (id.AssetID, error) {
	if _, taken := s.assetByHash[asset.ContentHash]; taken {
		return 0, ErrConflict
	}
	s.lastAsset++
	asset.ID = s.lastAsset
	s.assets[asset.ID] = *asset
	s.assetByHash[asset.ContentHash] = asset.ID
	return asset.ID, nil
}

func (s *InMemoryStore) FindAsset(assetID id.AssetID) (*models.Asset, error) {
	asset, ok := s.assets[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return &asset, nil
}

func (s *InMemoryStore) FindAssetIDByHash(hash id.ContentHash) (id.AssetID, error) {
	assetID, ok := s.assetByHash[hash]
	if !ok {
		return 0, ErrNotFound
	}
	return assetID, nil
}

func (s *InMemoryStore) UpdateAsset(asset *models.Asset) error {
	current, ok := s.assets[asset.ID]
	if !ok {
		return ErrNotFound
	}
	current.Owner = asset.Owner
	current.CID = asset.CID
	s.assets[asset.ID] = current
	return nil
}

func (s *InMemoryStore) InsertLicense(license *models.License) (id.LicenseID, error) {
	if _, ok := s.assets[license.AssetID]; !ok {
		return 0, ErrNotFound
	}
	s.lastLicense++
	license.ID = s.lastLicense
	s.licenses[license.ID] = *license
	s.licensesByAsset[license.AssetID] = append(s.licensesByAsset[license.AssetID], license.ID)
	return license.ID, nil
}

func (s *InMemoryStore) FindLicense(licenseID id.LicenseID) (*models.License, error) {
	license, ok := s.licenses[licenseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &license, nil
}

func (s *InMemoryStore) UpdateLicense(license *models.License) error {
	current, ok := s.licenses[license.ID]
	if !ok {
		return ErrNotFound
	}
	current.Revoked = current.Revoked || license.Revoked
	s.licenses[license.ID] = current
	return nil
}

func (s *InMemoryStore) LastLicenseID() id.LicenseID {
	return s.lastLicense
}

func (s *InMemoryStore) LicensesOfAsset(assetID id.AssetID) ([]id.LicenseID, error) {
	if _, ok := s.assets[assetID]; !ok {
		return nil, ErrNotFound
	}
	return append([]id.LicenseID{}, s.licensesByAsset[assetID]...), nil
}

func (s *InMemoryStore) InsertPurchase(purchase *models.Purchase) (id.PurchaseID, error) {
	if _, ok := s.licenses[purchase.LicenseID]; !ok {
		return 0, ErrNotFound
	}
	s.lastPurchase++
	purchase.ID = s.lastPurchase
	s.purchases[purchase.ID] = *purchase
	s.purchasesByLicense[purchase.LicenseID] = append(s.purchasesByLicense[purchase.LicenseID], purchase.ID)
	return purchase.ID, nil
}

func (s *InMemoryStore) FindPurchase(purchaseID id.PurchaseID) (*models.Purchase, error) {
	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &purchase, nil
}

func (s *InMemoryStore) PurchasesOfLicense(licenseID id.LicenseID) ([]id.PurchaseID, error) {
	if _, ok := s.licenses[licenseID]; !ok {
		return nil, ErrNotFound
	}
	return append([]id.PurchaseID{}, s.purchasesByLicense[licenseID]...), nil
}

func (s *InMemoryStore) SetKeyCID(assetID id.AssetID, licenseID id.LicenseID, cid string) {
	s.keyCIDs[keyRef{asset: assetID, license: licenseID}] = cid
}

func (s *InMemoryStore) KeyCID(assetID id.AssetID, licenseID id.LicenseID) string {
	return s.keyCIDs[keyRef{asset: assetID, license: licenseID}]
}

func (s *InMemoryStore) Balance(key models.BalanceKey) uint64 {
	return s.balances[key]
}

func (s *InMemoryStore) SetBalance(key models.BalanceKey, amount uint64) {
	if amount == 0 {
		delete(s.balances, key)
		return
	}
	s.balances[key] = amount
}

func (s *InMemoryStore) Reserved(key models.BalanceKey) uint64 {
	return s.reserved[key]
}

func (s *InMemoryStore) Reserve(key models.BalanceKey, amount uint64) {
	s.reserved[key] += amount
}

// Unreserve drops amount from the reservation, clamping at zero.
func (s *InMemoryStore) Unreserve(key models.BalanceKey, amount uint64) {
	held := s.reserved[key]
	if amount >= held {
		delete(s.reserved, key)
		return
	}
	s.reserved[key] = held - amount
}

func (s *InMemoryStore) Admin() id.Address {
	return s.admin
}

func (s *InMemoryStore) SetAdmin(addr id.Address) {
	s.admin = addr
}
