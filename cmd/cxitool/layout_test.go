package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jakcron/cxitool/pkg/ncch"
)

func TestContentTypeNameCoversAllValues(t *testing.T) {
	require.Equal(t, "Application", contentTypeName(ncch.ContentApplication))
	require.Equal(t, "Trial", contentTypeName(ncch.ContentTrial))
	require.Contains(t, contentTypeName(ncch.ContentType(99)), "unknown")
}

func TestFormTypeNameCoversAllValues(t *testing.T) {
	require.Equal(t, "Executable", formTypeName(ncch.FormExecutable))
	require.Equal(t, "ExecutableWithoutRomfs", formTypeName(ncch.FormExecutableWithoutRomfs))
	require.Contains(t, formTypeName(ncch.FormType(99)), "unknown")
}

func TestNewLayoutCommandRequiresOneArg(t *testing.T) {
	cmd := newLayoutCommand()
	require.Error(t, cmd.Args(cmd, []string{}))
	require.NoError(t, cmd.Args(cmd, []string{"out.cxi"}))
}
