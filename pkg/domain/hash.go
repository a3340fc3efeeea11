package domain

import (
	"encoding/hex"
	"strings"

	dErrors "seisreg/pkg/domain-errors"
)

// ContentHash is the 32-byte digest that identifies an asset's payload.
type ContentHash [32]byte

// ParseContentHash accepts 64 hex characters with an optional 0x prefix.
// An all-zero digest parses; registration rejects it separately.
func ParseContentHash(s string) (ContentHash, error) {
	var h ContentHash
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != len(h)*2 {
		return h, dErrors.New(dErrors.CodeInvalidArgument, "content hash must be 64 hex characters")
	}
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return ContentHash{}, dErrors.New(dErrors.CodeInvalidArgument, "content hash is not valid hex")
	}
	return h, nil
}

func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

func (h ContentHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h ContentHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *ContentHash) UnmarshalText(text []byte) error {
	parsed, err := ParseContentHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
