package handler

import (
	"strings"

	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
)

// RegisterAssetRequest is the body of POST /v1/datasets and /v1/models.
type RegisterAssetRequest struct {
	ContentHash  string `json:"content_hash"`
	URI          string `json:"uri"`
	LicenseTerms string `json:"license_terms"`
}

// Normalize trims whitespace from user-supplied fields.
func (r *RegisterAssetRequest) Normalize() {
	if r == nil {
		return
	}
	r.ContentHash = strings.TrimSpace(r.ContentHash)
	r.URI = strings.TrimSpace(r.URI)
}

func (r *RegisterAssetRequest) Hash() (id.ContentHash, error) {
	if r.ContentHash == "" {
		return id.ContentHash{}, dErrors.New(dErrors.CodeBadRequest, "content_hash is required")
	}
	h, err := id.ParseContentHash(r.ContentHash)
	if err != nil {
		return id.ContentHash{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "content_hash must be 32 bytes of hex")
	}
	return h, nil
}

// CIDRequest is the body of the CID and key-CID PUT routes.
type CIDRequest struct {
	CID string `json:"cid"`
}

func (r *CIDRequest) Validate() error {
	r.CID = strings.TrimSpace(r.CID)
	if r.CID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "cid is required")
	}
	return nil
}

// TransferRequest is the body of the asset and administrator transfer routes.
type TransferRequest struct {
	To string `json:"to"`
}

func (r *TransferRequest) Recipient() (id.Address, error) {
	return parseAddressField(r.To, "to")
}

// IssueLicenseRequest is the body of POST /v1/assets/{assetID}/licenses. An
// omitted licensee issues an open license.
type IssueLicenseRequest struct {
	Licensee string `json:"licensee,omitempty"`
	TermsRef string `json:"terms_ref"`
	Price    uint64 `json:"price"`
}

func (r *IssueLicenseRequest) LicenseeAddress() (id.Address, error) {
	if strings.TrimSpace(r.Licensee) == "" {
		return id.ZeroAddress, nil
	}
	return parseAddressField(r.Licensee, "licensee")
}

// PurchaseRequest is the body of both purchase routes. Token is required on
// the token route and rejected on the native one.
type PurchaseRequest struct {
	Amount uint64 `json:"amount"`
	Token  string `json:"token,omitempty"`
}

func parseAddressField(raw, field string) (id.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id.ZeroAddress, dErrors.New(dErrors.CodeBadRequest, field+" is required")
	}
	addr, err := id.ParseAddress(raw)
	if err != nil {
		return id.ZeroAddress, dErrors.Wrap(err, dErrors.CodeBadRequest, field+" must be a 20-byte hex address")
	}
	return addr, nil
}

// AssetIDResponse and friends carry newly allocated ids.
type AssetIDResponse struct {
	AssetID id.AssetID `json:"asset_id"`
}

type LicenseIDResponse struct {
	LicenseID id.LicenseID `json:"license_id"`
}

type PurchaseIDResponse struct {
	PurchaseID id.PurchaseID `json:"purchase_id"`
}

type LicenseIDsResponse struct {
	AssetID    id.AssetID     `json:"asset_id"`
	LicenseIDs []id.LicenseID `json:"license_ids"`
}

type PurchaseIDsResponse struct {
	LicenseID   id.LicenseID    `json:"license_id"`
	PurchaseIDs []id.PurchaseID `json:"purchase_ids"`
}

type KeyCIDResponse struct {
	AssetID   id.AssetID   `json:"asset_id"`
	LicenseID id.LicenseID `json:"license_id"`
	CID       string       `json:"cid"`
}

type BalanceResponse struct {
	Address id.Address  `json:"address"`
	Token   *id.Address `json:"token,omitempty"`
	Pending uint64      `json:"pending"`
}

type WithdrawalResponse struct {
	Amount uint64      `json:"amount"`
	Token  *id.Address `json:"token,omitempty"`
}

type AdminResponse struct {
	Admin id.Address `json:"admin"`
}
