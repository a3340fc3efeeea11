package domain

import (
	"strconv"

	dErrors "seisreg/pkg/domain-errors"
)

// Sequential identifiers. Each table allocates from 1; zero means "none".
// The types are distinct so an asset id cannot be passed where a license id
// is expected.
type (
	AssetID    uint64
	LicenseID  uint64
	PurchaseID uint64
)

func (id AssetID) IsNil() bool    { return id == 0 }
func (id LicenseID) IsNil() bool  { return id == 0 }
func (id PurchaseID) IsNil() bool { return id == 0 }

func (id AssetID) String() string    { return strconv.FormatUint(uint64(id), 10) }
func (id LicenseID) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id PurchaseID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseAssetID parses a decimal, non-zero asset id from a path parameter.
func ParseAssetID(s string) (AssetID, error) {
	v, err := parseSequential(s, "asset id")
	return AssetID(v), err
}

// ParseLicenseID parses a decimal, non-zero license id from a path parameter.
func ParseLicenseID(s string) (LicenseID, error) {
	v, err := parseSequential(s, "license id")
	return LicenseID(v), err
}

// ParsePurchaseID parses a decimal, non-zero purchase id from a path parameter.
func ParsePurchaseID(s string) (PurchaseID, error) {
	v, err := parseSequential(s, "purchase id")
	return PurchaseID(v), err
}

func parseSequential(s, label string) (uint64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, label+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, label+" must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, label+" must be non-zero")
	}
	return v, nil
}
