package cxispec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFSAccessRightUnknownSuggestsClosest(t *testing.T) {
	cfg := Defaults()
	err := applyFSAccessRight(&cfg, "CategorySystemApp")
	require.Error(t, err)
	require.Contains(t, err.Error(), "CategorySystemApplication")
}

func TestApplyKernelFlagSetsBit(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, applyKernelFlag(&cfg, "PermitDebug"))
	require.NotZero(t, cfg.KernelFlags&kernFlagPermitDebug)
}

func TestApplyArm9AccessRightUnknown(t *testing.T) {
	cfg := Defaults()
	err := applyArm9AccessRight(&cfg, "NotAThing")
	require.Error(t, err)
}
