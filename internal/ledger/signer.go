package ledger

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Signer signs transaction payloads with an Ed25519 key. The on-chain
// address is derived from the public key the same way the node derives it:
// blake2b-256 over the raw public key bytes.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner parses a base64-encoded 32-byte Ed25519 seed.
func NewSigner(seedB64 string) (*Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("decode signer key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Address returns the signer's ledger address as 0x-prefixed hex.
func (s *Signer) Address() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	sum := blake2b.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[:])
}

// PublicKeyB64 returns the base64 raw public key, as submitted alongside
// signatures.
func (s *Signer) PublicKeyB64() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}

// Sign returns the base64 Ed25519 signature over the blake2b-256 digest of
// payload. The node verifies against the same digest.
func (s *Signer) Sign(payload []byte) string {
	digest := blake2b.Sum256(payload)
	sig := ed25519.Sign(s.priv, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}
