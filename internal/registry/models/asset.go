package models

import (
	"time"

	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
)

// AssetKind distinguishes raw seismic datasets from trained models.
type AssetKind string

const (
	AssetKindDataset AssetKind = "dataset"
	AssetKindModel   AssetKind = "model"
)

func (k AssetKind) IsValid() bool {
	return k == AssetKindDataset || k == AssetKindModel
}

// Asset is a registered dataset or model.
//
// Invariants:
//   - ContentHash is non-zero and unique among registered assets
//   - Owner is never the zero address
//   - Owner and CID are the only fields that change after construction
//   - Active is set at creation and reserved for a future deactivation flow
type Asset struct {
	ID           id.AssetID     `json:"id"`
	Kind         AssetKind      `json:"kind"`
	Owner        id.Address     `json:"owner"`
	ContentHash  id.ContentHash `json:"content_hash"`
	URI          string         `json:"uri"`
	LicenseTerms string         `json:"license_terms"`
	CID          string         `json:"cid"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewAsset validates construction invariants. The id is allocated by the store.
func NewAsset(assetID id.AssetID, kind AssetKind, owner id.Address, hash id.ContentHash, uri, terms string, now time.Time) (*Asset, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "unknown asset kind")
	}
	if hash.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "content hash must be non-zero")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "owner must be set")
	}
	return &Asset{
		ID:           assetID,
		Kind:         kind,
		Owner:        owner,
		ContentHash:  hash,
		URI:          uri,
		LicenseTerms: terms,
		Active:       true,
		CreatedAt:    now,
	}, nil
}

func (a *Asset) IsOwnedBy(addr id.Address) bool {
	return !addr.IsZero() && a.Owner == addr
}
