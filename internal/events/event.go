package events

import (
	"time"

	"github.com/google/uuid"

	id "seisreg/pkg/domain"
)

// Kind names a registry state change.
type Kind string

const (
	KindAssetRegistered       Kind = "asset_registered"
	KindCIDStored             Kind = "cid_stored"
	KindKeyCIDStored          Kind = "key_cid_stored"
	KindLicenseIssued         Kind = "license_issued"
	KindLicenseRevoked        Kind = "license_revoked"
	KindAssetTransferred      Kind = "asset_transferred"
	KindAdminTransferred      Kind = "admin_transferred"
	KindPurchaseRecorded      Kind = "purchase_recorded"
	KindTokenPurchaseRecorded Kind = "token_purchase_recorded"
	KindFundsWithdrawn        Kind = "funds_withdrawn"
	KindTokenFundsWithdrawn   Kind = "token_funds_withdrawn"
)

// Event is one entry of the append-only notification log. Fields that do not
// apply to a kind stay zero. Seq is assigned by the log on append and is the
// cursor consumers resume from.
type Event struct {
	Seq          uint64        `json:"seq"`
	ID           uuid.UUID     `json:"id"`
	Kind         Kind          `json:"kind"`
	AssetID      id.AssetID    `json:"asset_id,omitempty"`
	LicenseID    id.LicenseID  `json:"license_id,omitempty"`
	PurchaseID   id.PurchaseID `json:"purchase_id,omitempty"`
	Actor        id.Address    `json:"actor"`
	Counterparty id.Address    `json:"counterparty"`
	Token        id.Address    `json:"token"`
	Amount       uint64        `json:"amount,omitempty"`
	CID          string        `json:"cid,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}
