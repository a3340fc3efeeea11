package models

import (
	"time"

	id "seisreg/pkg/domain"
)

// Purchase is an append-only payment record. Token is zero for native
// currency purchases.
type Purchase struct {
	ID        id.PurchaseID `json:"id"`
	LicenseID id.LicenseID  `json:"license_id"`
	Buyer     id.Address    `json:"buyer"`
	Token     id.Address    `json:"token"`
	Amount    uint64        `json:"amount"`
	PaidAt    time.Time     `json:"paid_at"`
}

// IsNative reports whether the purchase was settled in native currency.
func (p *Purchase) IsNative() bool {
	return p.Token.IsZero()
}

// BalanceKey addresses one pending balance. A zero Token selects the native
// ledger.
type BalanceKey struct {
	Token   id.Address
	Account id.Address
}

// NativeBalance keys the native pending balance of account.
func NativeBalance(account id.Address) BalanceKey {
	return BalanceKey{Account: account}
}

// TokenBalance keys the pending balance of account in token.
func TokenBalance(token, account id.Address) BalanceKey {
	return BalanceKey{Token: token, Account: account}
}
