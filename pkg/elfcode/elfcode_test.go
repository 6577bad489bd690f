package elfcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeSegmentBSSSize(t *testing.T) {
	s := CodeSegment{FileSize: 0x100, MemSize: 0x300}
	require.Equal(t, uint32(0x200), s.BSSSize())
}

func TestCodeSegmentBSSSizeNoBSS(t *testing.T) {
	s := CodeSegment{FileSize: 0x100, MemSize: 0x100}
	require.Equal(t, uint32(0), s.BSSSize())
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := Extract([]byte("not an elf"))
	require.Error(t, err)
}

func TestBuildBlobPageAligned(t *testing.T) {
	e := &Extracted{
		Text: &CodeSegment{PageCount: 2, Payload: []byte{1, 2, 3}},
		Data: &CodeSegment{PageCount: 1, Payload: []byte{4, 5}},
	}
	blob := e.BuildBlob(PageAligned)
	require.Len(t, blob.Bytes, 3*pageSize)
	require.Equal(t, byte(1), blob.Bytes[0])
	require.Equal(t, byte(4), blob.Bytes[2*pageSize])
}

func TestBuildBlobPacked(t *testing.T) {
	e := &Extracted{
		Text: &CodeSegment{Payload: []byte{1, 2, 3}},
		Data: &CodeSegment{Payload: []byte{4, 5}},
	}
	blob := e.BuildBlob(Packed)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, blob.Bytes)
}
