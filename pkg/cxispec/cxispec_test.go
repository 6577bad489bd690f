package cxispec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, uint64(0x000400000ff3ff00), cfg.TitleID)
	require.Equal(t, cfg.TitleID, cfg.ProgramID)
	require.Equal(t, cfg.TitleID, cfg.JumpID)
	require.Equal(t, "CTR-P-CTAP", cfg.ProductCode)
	require.Equal(t, "01", cfg.MakerCode)
	require.Equal(t, "CtrApp", cfg.AppTitle)
	require.Equal(t, uint32(0x4000), cfg.StackSize)
	require.Equal(t, uint64(0x0004013800000002), cfg.KernelTitleID)
	require.Len(t, cfg.AllowedSupervisorCalls, 0x7E)
	require.Equal(t, uint8(0), cfg.AllowedSupervisorCalls[0])
	require.Equal(t, uint8(0x7D), cfg.AllowedSupervisorCalls[len(cfg.AllowedSupervisorCalls)-1])
	require.Equal(t, uint16(0x200), cfg.HandleTableSize)
	require.Equal(t, [2]uint8{2, 29}, cfg.ReleaseKernelVersion)
	require.Equal(t, ioRightSDApplication, cfg.Arm9Rights)
	require.Equal(t, uint8(2), cfg.DescVersion)
}

func TestCLIOverridesApplyUniqueID(t *testing.T) {
	cfg := Defaults()
	err := CLIOverrides{UniqueID: "0xABCDE"}.Apply(&cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(0x000400000abcde00), cfg.TitleID)
	require.Equal(t, cfg.TitleID, cfg.ProgramID)
	require.Equal(t, cfg.TitleID, cfg.JumpID)
}

func TestCLIOverridesApplyUniqueIDReplacesWholeField(t *testing.T) {
	// The existing TitleID's bits (here all of the low 32) are not OR'd with
	// the new value; --uniqueid replaces the whole 0x0004000000000000-based field.
	cfg := Defaults()
	cfg.TitleID = 0x00040000FFFFFFFF
	err := CLIOverrides{UniqueID: "0x1"}.Apply(&cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0004000000000100), cfg.TitleID)
}

func TestCLIOverridesApplyProductCodeAndTitle(t *testing.T) {
	cfg := Defaults()
	err := CLIOverrides{ProductCode: "CTR-P-TEST", Title: "Homebrew"}.Apply(&cfg)
	require.NoError(t, err)
	require.Equal(t, "CTR-P-TEST", cfg.ProductCode)
	require.Equal(t, "Homebrew", cfg.AppTitle)
}

func TestParseProcessConfigAndRights(t *testing.T) {
	spec := []byte(`
ProcessConfig:
  IdealProcessor: 0
  AppMemory: 64MB
  EnableL2Cache: true
  Dependency:
    - fs
    - hid
Rights:
  Services:
    - fs:USER
    - hid:USER
  FSAccess:
    - CategorySystemApplication
    - Sdmc
  MemoryMapping:
    - "0x1F000000-0x1F000FFF:r"
  IORegisterMapping:
    - "0x10140000"
`)
	cfg := Defaults()
	err := Parse(spec, &cfg)
	require.NoError(t, err)

	require.Equal(t, uint8(sysModeProd), cfg.SystemMode)
	require.True(t, cfg.EnableL2Cache)
	require.Len(t, cfg.Dependencies, 2)
	require.Equal(t, []string{"fs:USER", "hid:USER"}, cfg.Services)
	require.NotZero(t, cfg.FSRights&fsRightCategorySystemApplication)
	require.NotZero(t, cfg.Arm9Rights&ioRightUseDirectSdmc)
	require.Len(t, cfg.StaticMappings, 1)
	require.True(t, cfg.StaticMappings[0].ReadOnly)
	require.Len(t, cfg.IOMappings, 1)
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	cfg := Defaults()
	err := Parse([]byte("NotARealSection:\n  Foo: bar\n"), &cfg)
	require.Error(t, err)
}

func TestParseRejectsUnknownNestedKey(t *testing.T) {
	cfg := Defaults()
	err := Parse([]byte("ProcessConfig:\n  NotARealKey: 1\n"), &cfg)
	require.Error(t, err)
}

func TestParseSaveData(t *testing.T) {
	spec := []byte(`
SaveData:
  SaveDataSize: 128K
  AccessibleSaveIds:
    - "1"
    - "2"
`)
	cfg := Defaults()
	err := Parse(spec, &cfg)
	require.NoError(t, err)
	require.Equal(t, uint32(128*0x400), cfg.SaveDataSize)
	require.Equal(t, []uint32{1, 2}, cfg.AccessibleSaveIDs)
}

func TestParseSaveDataSizeSuffixes(t *testing.T) {
	v, err := parseSaveDataSize("1M")
	require.NoError(t, err)
	require.Equal(t, uint32(0x100000), v)

	v, err = parseSaveDataSize("64KB")
	require.NoError(t, err)
	require.Equal(t, uint32(64*0x400), v)

	_, err = parseSaveDataSize("100")
	require.Error(t, err)

	_, err = parseSaveDataSize("10K")
	require.Error(t, err) // 10KiB isn't 64KiB-aligned
}

func TestEvaluateBooleanRejectsGarbage(t *testing.T) {
	_, err := evaluateBoolean("yes")
	require.Error(t, err)
}
