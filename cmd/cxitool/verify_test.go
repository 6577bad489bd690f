package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/jakcron/cxitool/pkg/ncch"
)

// buildMinimalContainer assembles an exefs-then-romfs container by hand. The
// 0x1000-byte romfs realignment leaves a real gap after the exefs section,
// which WriteFile must zero-fill — exactly what verify checks.
func buildMinimalContainer(t *testing.T) string {
	t.Helper()
	h := ncch.NewHeader()
	h.SetExefsData(0x200, 0x200, crypto.Sha256([]byte("exefs")))
	h.SetRomfsData(0x1000, 0x200, crypto.Sha256([]byte("romfs")))
	h.SetNcchType(ncch.ContentApplication, ncch.FormExecutable)
	layout, headerBytes, err := h.Build(crypto.NewUnsigned())
	require.NoError(t, err)
	require.Equal(t, uint32(0x200), layout.ExefsOffset)
	require.Equal(t, uint32(0x1000), layout.RomfsOffset)

	out := &ncch.Output{
		Layout:          layout,
		Header:          headerBytes,
		Exefs:           make([]byte, 0x200),
		RomfsIVFCHeader: make([]byte, 0x1000),
	}
	path := filepath.Join(t.TempDir(), "min.cxi")
	require.NoError(t, out.WriteFile(path))
	return path
}

func TestVerifyAcceptsZeroFilledGaps(t *testing.T) {
	path := buildMinimalContainer(t)
	require.NoError(t, runVerify(newVerifyCommand(), path))
}

func TestVerifyRejectsCorruptedGap(t *testing.T) {
	path := buildMinimalContainer(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0x500] = 0x41 // inside the exefs->romfs gap (0x400-0x1000)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	err = runVerify(newVerifyCommand(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not zero-filled")
}
