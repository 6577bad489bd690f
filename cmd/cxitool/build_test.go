package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuildCommandRequiresThreeArgs(t *testing.T) {
	cmd := newBuildCommand()
	require.Error(t, cmd.Args(cmd, []string{"a", "b"}))
	require.NoError(t, cmd.Args(cmd, []string{"a", "b", "c"}))

	for _, name := range []string{"icon", "banner", "romfs", "uniqueid", "productcode", "title"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "missing --%s flag", name)
	}
}

func TestResolveSignerDefaultsToUnsignedWhenEnvUnset(t *testing.T) {
	os.Unsetenv("CXITOOL_RSA_KEY")
	signer, err := resolveSigner()
	require.NoError(t, err)
	require.False(t, signer.HasKey())
}

func TestReadOptionalReturnsNilForEmptyPath(t *testing.T) {
	data, err := readOptional("")
	require.NoError(t, err)
	require.Nil(t, data)
}
