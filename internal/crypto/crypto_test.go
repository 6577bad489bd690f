package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSha256(t *testing.T) {
	h := Sha256([]byte("hello world"))
	require.Len(t, h, HashSize)
}

func TestUnsignedSignerFFFill(t *testing.T) {
	s := NewUnsigned()
	require.False(t, s.HasKey())

	sig, err := s.SignSha256([]byte("payload"))
	require.NoError(t, err)
	require.Len(t, sig, SignatureSize)
	for _, b := range sig {
		require.Equal(t, byte(0xFF), b)
	}

	mod := s.Modulus()
	require.Len(t, mod, SignatureSize)
	for _, b := range mod {
		require.Equal(t, byte(0), b)
	}
}

func TestLoadSignerPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}

	signer, err := LoadSigner(pem.EncodeToMemory(block))
	require.NoError(t, err)
	require.True(t, signer.HasKey())

	sig, err := signer.SignSha256([]byte("payload"))
	require.NoError(t, err)
	require.Len(t, sig, SignatureSize)
	require.NotEqual(t, byte(0xFF), sig[0])
}

func TestLoadSignerPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	signer, err := LoadSigner(pem.EncodeToMemory(block))
	require.NoError(t, err)
	require.True(t, signer.HasKey())
}

func TestLoadSignerRejectsGarbage(t *testing.T) {
	_, err := LoadSigner([]byte("not a pem file"))
	require.Error(t, err)
}
