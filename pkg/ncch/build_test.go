package ncch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jakcron/cxitool/pkg/elfcode"
)

func TestToExheaderSegmentNil(t *testing.T) {
	require.Zero(t, toExheaderSegment(nil))
}

func TestToExheaderSegmentMapsFields(t *testing.T) {
	s := toExheaderSegment(&elfcode.CodeSegment{Vaddr: 0x100000, FileSize: 0x2000, PageCount: 2})
	require.Equal(t, uint32(0x100000), s.Address)
	require.Equal(t, uint32(2), s.PageNum)
	require.Equal(t, uint32(0x2000), s.Size)
}

func TestOutputSummaryReportsTotalSize(t *testing.T) {
	out := &Output{Layout: Layout{TotalSize: 0x3400}}
	require.Contains(t, out.Summary(), "13312 bytes")
}

// TestOutputWriteFileOrdersSectionsAndZeroFills builds an Output by hand
// (bypassing Build, which needs a real ELF) and checks that WriteFile lays
// every section out at its declared offset with the gaps explicitly
// zero-filled, matching the documented header/exheader+accessdesc/logo/
// plain/exefs/romfs write order.
func TestOutputWriteFileOrdersSectionsAndZeroFills(t *testing.T) {
	header := make([]byte, 0x200)
	for i := range header {
		header[i] = 0xAA
	}
	exheader := []byte{0x01, 0x02, 0x03, 0x04}
	accessDesc := []byte{0x05, 0x06}
	logo := []byte{0x07, 0x08, 0x09}
	plain := []byte{0x0A}
	exefsBytes := []byte{0x0B, 0x0C, 0x0D, 0x0E}

	out := &Output{
		Layout: Layout{
			TotalSize:         0x1000,
			ExheaderOffset:    0x200,
			LogoOffset:        0x400,
			PlainRegionOffset: 0x600,
			ExefsOffset:       0x800,
		},
		Header:           header,
		Exheader:         exheader,
		AccessDescriptor: accessDesc,
		Logo:             logo,
		PlainRegion:      plain,
		Exefs:            exefsBytes,
	}

	path := filepath.Join(t.TempDir(), "out.cxi")
	require.NoError(t, out.WriteFile(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, header, got[0:0x200])
	require.Equal(t, exheader, got[0x200:0x204])
	require.Equal(t, accessDesc, got[0x204:0x206])
	require.Equal(t, byte(0), got[0x206]) // gap before logo is zero-filled
	require.Equal(t, logo, got[0x400:0x403])
	require.Equal(t, byte(0), got[0x403])
	require.Equal(t, plain, got[0x600:0x601])
	require.Equal(t, exefsBytes, got[0x800:0x804])
	require.Len(t, got, 0x804) // WriteFile never pads past the last section written
}

func TestOutputWriteFileSkipsAbsentRomfs(t *testing.T) {
	out := &Output{
		Layout: Layout{TotalSize: 0x200},
		Header: make([]byte, 0x200),
	}
	path := filepath.Join(t.TempDir(), "out.cxi")
	require.NoError(t, out.WriteFile(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 0x200)
}
