// Package leaf defines the credential secret type and its canonical leaf
// encoding.
//
// The leaf of a secret is keccak256 over the 32 raw secret bytes, with no
// prefix, padding or second hashing pass. This is what a Solidity verifier
// obtains with keccak256(abi.encodePacked(bytes32 secret)). Every code path
// that turns a secret into a tree leaf must go through Hash.
package leaf

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/vocdoni-credentials/types"
	"github.com/vocdoni/vocdoni-credentials/util"
)

// Secret is a fixed-width credential secret.
type Secret [types.SecretSize]byte

// NewSecret reads a new secret from r, which must be a cryptographically
// secure source.
func NewSecret(r io.Reader) (Secret, error) {
	var s Secret
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return Secret{}, fmt.Errorf("cannot read random secret: %w", err)
	}
	return s, nil
}

// SecretFromBytes copies b into a Secret. b must be exactly SecretSize long.
func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != types.SecretSize {
		return s, fmt.Errorf("%w: got %d bytes, want %d", types.ErrInvalidSecret, len(b), types.SecretSize)
	}
	copy(s[:], b)
	return s, nil
}

// ParseSecret parses the only accepted textual form of a secret: 64
// hexadecimal digits, optionally prefixed with 0x.
func ParseSecret(s string) (Secret, error) {
	raw := util.TrimHex(s)
	if len(raw) != 2*types.SecretSize {
		return Secret{}, fmt.Errorf("%w: want %d hex digits", types.ErrInvalidSecret, 2*types.SecretSize)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Secret{}, fmt.Errorf("%w: %v", types.ErrInvalidSecret, err)
	}
	return SecretFromBytes(b)
}

// Bytes returns a copy of the secret bytes.
func (s Secret) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

// String returns the 0x prefixed hex form of the secret.
func (s Secret) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// Leaf returns the tree leaf of the secret.
func (s Secret) Leaf() common.Hash {
	return Hash(s)
}

// Hash returns keccak256(secret).
func Hash(s Secret) common.Hash {
	return crypto.Keccak256Hash(s[:])
}
