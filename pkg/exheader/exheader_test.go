package exheader

import (
	"testing"

	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		ProcessInfo: ProcessInfo{
			Name:         "homebrew",
			Dependencies: []uint64{0x0004013000001702},
			SaveDataSize: 0x20000,
		},
		Arm11Local: Arm11Local{
			ProgramID:   0x0004000000001234,
			SystemMode:  0,
			Services:    []string{"fs:USER", "hid:USER"},
			FSRights:    0,
			UseRomfs:    true,
		},
		Arm11Kernel: Arm11Kernel{
			AllowedSupervisorCalls: []uint8{0x01, 0x02, 0x18},
			HandleTableSize:        0x200,
			ReleaseKernelVersion:   [2]uint8{2, 29},
		},
		Arm9: Arm9AccessControl{IORights: 0x100, DescVersion: 2},
	}
}

func TestBuildProducesFixedSizes(t *testing.T) {
	built, err := Build(baseConfig(), make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.NoError(t, err)
	require.Len(t, built.ExHeader, Size)
	require.Len(t, built.AccessDescriptor, AccessDescriptorSize)
}

func TestUseRomfsFlag(t *testing.T) {
	cfg := baseConfig()
	cfg.Arm11Local.UseRomfs = false
	built, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.NoError(t, err)

	fsRights := readU64(built.ExHeader, processInfoSize+0x48)
	require.NotZero(t, fsRights&fsFlagNotUseRomfs)
}

func TestSaveDataModesAreMutuallyExclusive(t *testing.T) {
	cfg := baseConfig()
	cfg.Arm11Local.SaveData = SaveDataConfig{
		AccessibleSaveIDs: []uint32{1, 2, 3},
		UseExtdata:        true,
	}
	_, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.Error(t, err)

	cfg2 := baseConfig()
	cfg2.Arm11Local.SaveData = SaveDataConfig{
		AccessibleSaveIDs: []uint32{1, 2, 3},
		OtherUserSaveIDs:  []uint32{9},
	}
	_, err = Build(cfg2, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.Error(t, err)
}

func TestAccessibleSaveIdsSetsExtendedACLFlag(t *testing.T) {
	cfg := baseConfig()
	cfg.Arm11Local.SaveData = SaveDataConfig{
		AccessibleSaveIDs: []uint32{1, 2, 3, 4, 5},
	}
	built, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.NoError(t, err)

	fsRights := readU64(built.ExHeader, processInfoSize+0x48)
	require.NotZero(t, fsRights&fsFlagUseExtendedSaveACL)
}

func TestDefaultExtdataIdDerivedFromProgramId(t *testing.T) {
	cfg := baseConfig()
	cfg.Arm11Local.SaveData = SaveDataConfig{UseExtdata: true}
	built, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.NoError(t, err)

	extdataID := readU64(built.ExHeader, processInfoSize+0x30)
	require.Equal(t, (cfg.Arm11Local.ProgramID>>8)&0xFFFFFF, extdataID)
}

func TestKernelDescriptorLimitExceeded(t *testing.T) {
	cfg := baseConfig()
	// Each static mapping with a valid end produces two descriptors; 15
	// mappings alone (30 descriptors) exceeds the 28-slot cap.
	var mappings []MemoryMapping
	for i := 0; i < 15; i++ {
		start := uint32(0x1000 * (i + 1))
		mappings = append(mappings, MemoryMapping{Start: start, End: start + 0xFFF})
	}
	cfg.Arm11Kernel.StaticMappings = mappings

	_, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.Error(t, err)
}

func TestInterruptPackingFillsUnusedSlotsWithOnes(t *testing.T) {
	descs := packInterrupts([]uint8{1, 2})
	require.Len(t, descs, 1)
	// low 14 bits hold the two packed values, the first one shifted up by 7
	// bits; bits above that (within the non-prefix 27 bits) must read as
	// all-ones from the pre-fill.
	require.Equal(t, uint32(2), descs[0]&0x7F)
	require.Equal(t, uint32(1), (descs[0]>>7)&0x7F)
	require.Equal(t, uint32(0x7F), (descs[0]>>14)&0x7F)
}

func TestIOMappingIsSingleDescriptor(t *testing.T) {
	descs := packIOMappings([]MemoryMapping{{Start: 0x1000, End: 0x1FFF}})
	require.Len(t, descs, 1)
	require.Equal(t, prefixMappingIO|(0x1000>>12), descs[0])
}

func TestStaticMappingEmitsTwoDescriptors(t *testing.T) {
	descs := packStaticMappings([]MemoryMapping{{Start: 0x1000, End: 0x1FFF, ReadOnly: true}})
	require.Len(t, descs, 2)
}

func TestAccessDescriptorRewritesIdealProcessorAndPriority(t *testing.T) {
	cfg := baseConfig()
	cfg.Arm11Local.IdealProcessor = 1
	cfg.Arm11Local.ThreadPriority = 5

	built, err := Build(cfg, make([]byte, crypto.SignatureSize), crypto.NewUnsigned())
	require.NoError(t, err)

	capsOff := crypto.SignatureSize + crypto.SignatureSize
	b := built.AccessDescriptor[capsOff+0x0E]
	require.Equal(t, byte(1<<1), b&0x3) // 1 << original(1) == 2

	priority := built.AccessDescriptor[capsOff+arm11LocalFieldThreadPriority]
	require.Equal(t, byte(0), priority)
}

func readU64(b []byte, off int) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[off+i])
	}
	return v
}
