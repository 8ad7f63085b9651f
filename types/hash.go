package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// HashLength is the byte length of every hash used by the ledger.
const HashLength = 32

var ErrInvalidHashLength = errors.New("invalid hash length")

// HashValue is a SHA3-256 digest. Block ids and accumulator node keys are HashValues.
type HashValue [HashLength]byte

// ZeroHash is the all-zero placeholder, used as the parent of genesis.
var ZeroHash HashValue

// Sha3 hashes the concatenation of parts.
func Sha3(parts ...[]byte) HashValue {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out HashValue
	copy(out[:], h.Sum(nil))
	return out
}

// HashFromSlice copies b into a HashValue. b must be exactly HashLength bytes.
func HashFromSlice(b []byte) (HashValue, error) {
	var out HashValue
	if len(b) != HashLength {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHashLength, HashLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// HashFromString parses the base58 form produced by String.
func HashFromString(s string) (HashValue, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return HashValue{}, fmt.Errorf("failed to decode base58 string: %w", err)
	}
	return HashFromSlice(raw)
}

func (h HashValue) Bytes() []byte {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out
}

func (h HashValue) IsZero() bool {
	return h == ZeroHash
}

func (h HashValue) Compare(other HashValue) int {
	return bytes.Compare(h[:], other[:])
}

func (h HashValue) String() string {
	return base58.Encode(h[:])
}

// Short returns the first 8 characters of the base58 form, for logs.
func (h HashValue) Short() string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func (h HashValue) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HashValue) UnmarshalText(text []byte) error {
	parsed, err := HashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
