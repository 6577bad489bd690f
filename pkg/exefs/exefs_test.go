package exefs

import (
	"testing"

	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/stretchr/testify/require"
)

func TestPackTooManyEntries(t *testing.T) {
	files := make([]File, MaxEntries+1)
	for i := range files {
		files[i] = File{Name: "x", Payload: []byte{1}}
	}
	_, err := Pack(files)
	require.Error(t, err)
}

func TestPackNameTooLong(t *testing.T) {
	_, err := Pack([]File{{Name: "toolongname", Payload: []byte{1}}})
	require.Error(t, err)
}

func TestPackLayoutAndHashes(t *testing.T) {
	code := []byte{1, 2, 3, 4, 5}
	icon := []byte{9, 9}
	img, err := Pack([]File{{Name: ".code", Payload: code}, {Name: "icon", Payload: icon}})
	require.NoError(t, err)

	require.Equal(t, HeaderSize+2*BlockSize, len(img.Bytes))

	// entry 0: offset 0, size 5
	require.Equal(t, uint32(0), readU32(img.Bytes, 8))
	require.Equal(t, uint32(5), readU32(img.Bytes, 12))
	// entry 1: offset 0x200, size 2
	require.Equal(t, uint32(BlockSize), readU32(img.Bytes, 16+8))
	require.Equal(t, uint32(2), readU32(img.Bytes, 16+12))

	// hash for entry 0 at hashes[7], entry 1 at hashes[6]
	h0 := crypto.Sha256(code)
	h1 := crypto.Sha256(icon)
	require.Equal(t, h0[:], img.Bytes[hashesOff+7*crypto.HashSize:hashesOff+8*crypto.HashSize])
	require.Equal(t, h1[:], img.Bytes[hashesOff+6*crypto.HashSize:hashesOff+7*crypto.HashSize])

	wantHeaderHash := crypto.Sha256(img.Bytes[:HeaderSize])
	require.Equal(t, wantHeaderHash, img.HeaderHash)
}

func readU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
