// Package common holds the small value types shared across the client:
// fixed-width hashes and hex helpers for ledger payloads.
package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashLength is the byte width of commitments, nullifiers and merkle roots.
const HashLength = 32

// Hash is a fixed-width 32-byte value (commitment leaf, nullifier, root).
type Hash [HashLength]byte

// Bytes returns the byte representation of the hash.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Hex returns the 0x-prefixed hexadecimal representation of the hash.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// String returns the string representation of the hash.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero reports whether every byte of the hash is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// BytesToHash converts a byte slice to a Hash, left-padding short input.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash parses a hex string (with or without 0x prefix) into a Hash.
// Invalid input yields an error rather than a silently-zero hash.
func HexToHash(s string) (Hash, error) {
	b, err := FromHex(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) > HashLength {
		return Hash{}, fmt.Errorf("hash too long: %d bytes", len(b))
	}
	return BytesToHash(b), nil
}

// FromHex decodes a hex string with an optional 0x prefix.
func FromHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// MarshalJSON encodes the hash as a 0x-prefixed hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a 0x-prefixed hex string into the hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	parsed, err := HexToHash(hexStr)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
