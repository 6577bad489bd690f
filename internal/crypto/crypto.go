// Package crypto wraps the SHA-256 and RSA-2048 PKCS#1 v1.5 primitives used
// to chain hashes and sign the NCCH header and Access Descriptor.
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// HashSize is the digest size of every hash embedded in the container.
const HashSize = 32

// SignatureSize is the fixed size of every RSA-2048 signature field on disk.
const SignatureSize = 0x100

// unsignedFill is the byte written into signature fields when no signing
// key is available, per spec.md 3.2 ("the convention for unsigned but
// well-formed").
const unsignedFill = 0xFF

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) [HashSize]byte {
	return sha256.Sum256(data)
}

// Sha256Slice returns the SHA-256 digest of data as a slice.
func Sha256Slice(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Signer holds an optional RSA-2048 private key used to sign NCCH and
// Access Descriptor payloads. A nil Signer (or one built from NewUnsigned)
// always produces 0xFF-filled signatures, matching the teacher's "signing
// is best-effort, absence is not fatal" convention from pkg/amd/psb.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner wraps an already-parsed RSA private key. The key's modulus must
// be 2048 bits; neither NewSigner nor LoadSigner checks this (spec.md marks
// RSA primitives as out of scope). SignSha256 rejects any signature that is
// not SignatureSize bytes long.
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// NewUnsigned returns a Signer with no key, which always emits 0xFF-filled
// signature fields.
func NewUnsigned() *Signer {
	return &Signer{}
}

// LoadSigner parses a PEM-encoded RSA private key (PKCS#1 "RSA PRIVATE KEY"
// or PKCS#8 "PRIVATE KEY") and wraps it in a Signer. This is the CLI-layer
// key-loading path spec.md marks RSA primitives as out of scope for, kept
// separate from NewSigner so callers that already hold a parsed key (e.g.
// tests) can skip PEM handling entirely.
func LoadSigner(pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in key data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewSigner(key), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return NewSigner(key), nil
}

// HasKey reports whether a real signing key is configured.
func (s *Signer) HasKey() bool {
	return s != nil && s.key != nil
}

// Modulus returns the 0x100-byte big-endian RSA modulus, or a zero-filled
// slice if no key is configured.
func (s *Signer) Modulus() []byte {
	out := make([]byte, SignatureSize)
	if s.HasKey() {
		n := s.key.PublicKey.N.Bytes()
		copy(out[SignatureSize-len(n):], n)
	}
	return out
}

// SignSha256 signs the SHA-256 digest of data using RSASSA-PKCS1-v1.5,
// returning a 0x100-byte signature. With no key configured, it returns an
// 0xFF-filled buffer instead of failing, per the "unsigned but well-formed"
// convention.
func (s *Signer) SignSha256(data []byte) ([]byte, error) {
	if !s.HasKey() {
		sig := make([]byte, SignatureSize)
		for i := range sig {
			sig[i] = unsignedFill
		}
		return sig, nil
	}
	digest := Sha256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, stdcrypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsa signing failed: %w", err)
	}
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("unexpected signature length %d, want %d", len(sig), SignatureSize)
	}
	return sig, nil
}
