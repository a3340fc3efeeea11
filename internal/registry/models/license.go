package models

import (
	"time"

	id "seisreg/pkg/domain"
)

// License grants terms against an asset.
//
// Licensor is the asset owner at issuance time and is never re-derived, so a
// later asset transfer leaves existing licenses attributed to the old owner.
// A zero Licensee means the license is open to any buyer. Revoked only ever
// moves from false to true.
type License struct {
	ID       id.LicenseID `json:"id"`
	AssetID  id.AssetID   `json:"asset_id"`
	Licensor id.Address   `json:"licensor"`
	Licensee id.Address   `json:"licensee"`
	TermsRef string       `json:"terms_ref"`
	Price    uint64       `json:"price"`
	Revoked  bool         `json:"revoked"`
	IssuedAt time.Time    `json:"issued_at"`
}

// Purchasable reports whether the license can take a payment at all. Price
// zero means the owner never set one.
func (l *License) Purchasable() bool {
	return !l.Revoked && l.Price > 0
}
