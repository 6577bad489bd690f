package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func withCapturedOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	original := Output
	buf := &bytes.Buffer{}
	Output = buf
	t.Cleanup(func() { Output = original })
	ResetWarningCount()
	return buf
}

func TestWarnfPrintsAndCountsWarnings(t *testing.T) {
	buf := withCapturedOutput(t)

	Warnf("romfs directory %q is empty", "assets")
	Warnf("%d services requested", 33)

	require.Equal(t, 2, WarningCount())
	require.Contains(t, buf.String(), `romfs directory "assets" is empty`)
	require.Contains(t, buf.String(), "[cxitool][WARN]")
}

func TestErrorfDoesNotAffectWarningCount(t *testing.T) {
	withCapturedOutput(t)

	Errorf("build failed: %v", "boom")

	require.Equal(t, 0, WarningCount())
}

func TestResetWarningCountZeroesCounter(t *testing.T) {
	withCapturedOutput(t)

	Warnf("one")
	require.Equal(t, 1, WarningCount())

	ResetWarningCount()
	require.Equal(t, 0, WarningCount())
}
