package cxispec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMappingIOSingleAddress(t *testing.T) {
	m, err := parseMapping("0x10140000", false)
	require.NoError(t, err)
	require.Equal(t, uint32(0x10140000), m.Start)
	require.Zero(t, m.End)
}

func TestParseMappingIORejectsColon(t *testing.T) {
	_, err := parseMapping("0x10140000:r", false)
	require.Error(t, err)
}

func TestParseMappingStaticRange(t *testing.T) {
	m, err := parseMapping("1F000000-1F000FFF", true)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1F000000), m.Start)
	require.Equal(t, uint32(0x1F000FFF), m.End)
	require.False(t, m.ReadOnly)
}

func TestParseMappingStaticRangeReadOnly(t *testing.T) {
	m, err := parseMapping("0x1F000000-0x1F000FFF:r", true)
	require.NoError(t, err)
	require.True(t, m.ReadOnly)
}

func TestParseMappingRejectsBadStartAlignment(t *testing.T) {
	_, err := parseMapping("0x1F000001", true)
	require.Error(t, err)
}

func TestParseMappingRejectsBadEndAlignment(t *testing.T) {
	_, err := parseMapping("0x1F000000-0x1F000000", true)
	require.Error(t, err)
}

func TestParseMappingRejectsUnknownProperty(t *testing.T) {
	_, err := parseMapping("0x1F000000-0x1F000FFF:w", true)
	require.Error(t, err)
}

func TestParseMappingRejectsLeadingDash(t *testing.T) {
	_, err := parseMapping("-0x1000", true)
	require.Error(t, err)
}
