// Package chain holds the domain model for on-chain entities and the
// Fetcher boundary through which the engine reads network truth.
package chain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address identifies an account: a workchain plus a 32-byte hash.
// Its canonical string form "<workchain>:<hex>" is the projection used for
// storage keys.
type Address struct {
	Workchain int8
	Hash      [32]byte
}

func ParseAddress(s string) (Address, error) {
	var ret Address
	wcs, hs, found := strings.Cut(s, ":")
	if !found {
		return ret, fmt.Errorf("address %q: missing workchain separator", s)
	}
	wc, err := strconv.ParseInt(wcs, 10, 8)
	if err != nil {
		return ret, fmt.Errorf("address %q: bad workchain: %w", s, err)
	}
	raw, err := hex.DecodeString(hs)
	if err != nil {
		return ret, fmt.Errorf("address %q: bad hash: %w", s, err)
	}
	if len(raw) != 32 {
		return ret, fmt.Errorf("address %q: hash must be 32 bytes, got %d", s, len(raw))
	}
	ret.Workchain = int8(wc)
	copy(ret.Hash[:], raw)
	return ret, nil
}

// MustParseAddress panics on a malformed address. It is used at keyed
// collection boundaries, where a bad key is a caller bug.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return strconv.Itoa(int(a.Workchain)) + ":" + hex.EncodeToString(a.Hash[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(data []byte) error {
	parsed, err := ParseAddress(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PairKey is the storage projection for entities keyed by two addresses,
// e.g. a jetton wallet (owner, master) or a staking position (pool, member).
func PairKey(a, b Address) string {
	return a.String() + "#" + b.String()
}

// ParsePairKey splits a PairKey projection back into its two addresses.
func ParsePairKey(s string) (Address, Address, error) {
	l, r, found := strings.Cut(s, "#")
	if !found {
		return Address{}, Address{}, fmt.Errorf("pair key %q: missing separator", s)
	}
	a, err := ParseAddress(l)
	if err != nil {
		return Address{}, Address{}, err
	}
	b, err := ParseAddress(r)
	if err != nil {
		return Address{}, Address{}, err
	}
	return a, b, nil
}
