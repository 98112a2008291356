package crypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable prefix attached to an address.
type AddressPrefix string

const (
	// AccountPrefix identifies trader, staker and liquidator accounts.
	AccountPrefix AddressPrefix = "lvr"
	// ModulePrefix identifies protocol-owned treasury accounts (the vault
	// and each registered strategy).
	ModulePrefix AddressPrefix = "lvrmod"
)

// AddressLength is the raw byte length of every address.
const AddressLength = 20

// Address represents a 20-byte account identifier with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the raw bytes into an address. It panics when the payload
// is not exactly 20 bytes; callers decoding untrusted input should use
// DecodeAddress instead.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

// MustNewAddress mirrors NewAddress and exists for call sites that construct
// addresses from compile-time constants.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	return NewAddress(prefix, b)
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is unset or all-zero bytes.
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equal compares two addresses by raw bytes, ignoring the prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// DecodeAddress parses a bech32-encoded address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}
