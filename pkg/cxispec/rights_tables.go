package cxispec

import (
	"fmt"
	"sort"

	"github.com/fatih/camelcase"
)

// FS access rights, kernel flags and Arm9 I/O rights, by bit position, taken
// straight off the Extended Header's fs_access_rights / kernel_flags /
// arm9_access_control fields. Several names accept more than one spelling;
// both resolve to the same bit.
const (
	fsRightCategorySystemApplication = uint64(1) << 0
	fsRightCategoryHardwareCheck     = uint64(1) << 1
	fsRightCategoryFileSystemTool    = uint64(1) << 2
	fsRightDebug                     = uint64(1) << 3
	fsRightTwlCard                   = uint64(1) << 4
	fsRightTwlNand                   = uint64(1) << 5
	fsRightBoss                      = uint64(1) << 6
	fsRightDirectSdmc                = uint64(1) << 7
	fsRightCore                      = uint64(1) << 8
	fsRightCtrNandRO                 = uint64(1) << 9
	fsRightCtrNandRW                 = uint64(1) << 10
	fsRightCtrNandROWrite            = uint64(1) << 11
	fsRightCategorySystemSettings    = uint64(1) << 12
	fsRightCardBoard                 = uint64(1) << 13
	fsRightExportImportIvs           = uint64(1) << 14
	fsRightDirectSdmcWrite           = uint64(1) << 15
	fsRightSwitchCleanup             = uint64(1) << 16
	fsRightSaveDataMove              = uint64(1) << 17
	fsRightShop                      = uint64(1) << 18
	fsRightShell                     = uint64(1) << 19
	fsRightCategoryHomeMenu          = uint64(1) << 20

	kernFlagPermitDebug               = uint32(1) << 0
	kernFlagForceDebug                = uint32(1) << 1
	kernFlagCanUseNonAlphaNum         = uint32(1) << 2
	kernFlagCanWriteSharedPage        = uint32(1) << 3
	kernFlagCanUsePrivilegedPriority  = uint32(1) << 4
	kernFlagPermitMainFunctionArgument = uint32(1) << 5
	kernFlagCanShareDeviceMemory      = uint32(1) << 6
	kernFlagRunnableOnSleep           = uint32(1) << 7
	kernFlagSpecialMemoryLayout       = uint32(1) << 12
	kernFlagCanAccessCore2            = uint32(1) << 13

	ioRightFSMountNand        = uint32(1) << 0
	ioRightFSMountNandROWrite = uint32(1) << 1
	ioRightFSMountTwlN        = uint32(1) << 2
	ioRightFSMountWNand       = uint32(1) << 3
	ioRightFSMountCardSpi     = uint32(1) << 4
	ioRightUseSDIF3           = uint32(1) << 5
	ioRightCreateSeed         = uint32(1) << 6
	ioRightUseCardSpi         = uint32(1) << 7
	ioRightSDApplication      = uint32(1) << 8
	ioRightUseDirectSdmc      = uint32(1) << 9
)

// fsAccessRightNames maps every accepted spelling in a Rights/FSAccess list
// to its bit. DirectSdmc/Sdmc also grant the Arm9 direct-SDMC I/O right,
// applied separately in applyFSAccessRight.
var fsAccessRightNames = map[string]uint64{
	"CategorySystemApplication": fsRightCategorySystemApplication,
	"CategoryHardwareCheck":     fsRightCategoryHardwareCheck,
	"CategoryFileSystemTool":    fsRightCategoryFileSystemTool,
	"Debug":                     fsRightDebug,
	"TwlCard":                   fsRightTwlCard,
	"TwlCardBackup":             fsRightTwlCard,
	"TwlNand":                   fsRightTwlNand,
	"TwlNandData":               fsRightTwlNand,
	"Boss":                      fsRightBoss,
	"DirectSdmc":                fsRightDirectSdmc,
	"Sdmc":                      fsRightDirectSdmc,
	"Core":                      fsRightCore,
	"CtrNandRo":                 fsRightCtrNandRO,
	"NandRo":                    fsRightCtrNandRO,
	"CtrNandRw":                 fsRightCtrNandRW,
	"NandRw":                    fsRightCtrNandRW,
	"CtrNandRoWrite":            fsRightCtrNandROWrite,
	"NandRoWrite":               fsRightCtrNandROWrite,
	"CategorySystemSettings":    fsRightCategorySystemSettings,
	"Cardboard":                 fsRightCardBoard,
	"SystemTransfer":            fsRightCardBoard,
	"ExportInportIvs":           fsRightExportImportIvs,
	"DirectSdmcWrite":           fsRightDirectSdmcWrite,
	"SdmcWriteOnly":             fsRightDirectSdmcWrite,
	"SwitchCleanup":             fsRightSwitchCleanup,
	"SaveDataMove":              fsRightSaveDataMove,
	"Shop":                      fsRightShop,
	"Shell":                     fsRightShell,
	"CategoryHomeMenu":          fsRightCategoryHomeMenu,
}

var kernelFlagNames = map[string]uint32{
	"PermitDebug":                kernFlagPermitDebug,
	"ForceDebug":                 kernFlagForceDebug,
	"CanUseNonAlphaNum":          kernFlagCanUseNonAlphaNum,
	"CanWriteSharedPage":         kernFlagCanWriteSharedPage,
	"CanUsePriviligedPriority":   kernFlagCanUsePrivilegedPriority,
	"PermitMainFunctionArgument": kernFlagPermitMainFunctionArgument,
	"CanShareDeviceMemory":       kernFlagCanShareDeviceMemory,
	"RunnableOnSleep":            kernFlagRunnableOnSleep,
	"SpecialMemoryLayout":        kernFlagSpecialMemoryLayout,
	"CanAccessCore2":             kernFlagCanAccessCore2,
}

var arm9RightNames = map[string]uint32{
	"MountNand":        ioRightFSMountNand,
	"MountNandROWrite": ioRightFSMountNandROWrite,
	"MountTwlN":        ioRightFSMountTwlN,
	"MountWNand":       ioRightFSMountWNand,
	"MountCardSpi":     ioRightFSMountCardSpi,
	"UseSDIF3":         ioRightUseSDIF3,
	"CreateSeed":       ioRightCreateSeed,
	"UseCardSpi":       ioRightUseCardSpi,
}

// suggestName finds the candidate whose camel-case word tokens overlap most
// with raw's, for a "did you mean" hint on an unknown right. Ties are
// broken alphabetically, so the result is deterministic regardless of map
// iteration order.
func suggestName(raw string, candidates []string) string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	rawTokens := camelcase.Split(raw)
	best, bestScore, bestShared := "", 0, 0
	for _, candidate := range sorted {
		candidateTokens := camelcase.Split(candidate)
		shared := sharedTokens(rawTokens, candidateTokens)
		if shared == 0 {
			continue
		}
		score := 2*shared - len(candidateTokens)
		if best == "" || score > bestScore {
			best, bestScore, bestShared = candidate, score, shared
		}
	}
	if bestShared == 0 {
		return ""
	}
	return best
}

func fsAccessRightKeys() []string {
	out := make([]string, 0, len(fsAccessRightNames))
	for k := range fsAccessRightNames {
		out = append(out, k)
	}
	return out
}

func kernelFlagKeys() []string {
	out := make([]string, 0, len(kernelFlagNames))
	for k := range kernelFlagNames {
		out = append(out, k)
	}
	return out
}

func arm9RightKeys() []string {
	out := make([]string, 0, len(arm9RightNames))
	for k := range arm9RightNames {
		out = append(out, k)
	}
	return out
}

func sharedTokens(a, b []string) int {
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[lowerASCII(t)] = true
	}
	n := 0
	for _, t := range b {
		if seen[lowerASCII(t)] {
			n++
		}
	}
	return n
}

func lowerASCII(s string) string {
	buf := []byte(s)
	for i, c := range buf {
		if c >= 'A' && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
	}
	return string(buf)
}

func applyFSAccessRight(cfg *Config, name string) error {
	bit, ok := fsAccessRightNames[name]
	if !ok {
		if s := suggestName(name, fsAccessRightKeys()); s != "" {
			return fmt.Errorf("unknown FS access right: %s (did you mean %q?)", name, s)
		}
		return fmt.Errorf("unknown FS access right: %s", name)
	}
	cfg.FSRights |= bit
	if name == "DirectSdmc" || name == "Sdmc" {
		cfg.Arm9Rights |= ioRightUseDirectSdmc
	}
	return nil
}

func applyKernelFlag(cfg *Config, name string) error {
	bit, ok := kernelFlagNames[name]
	if !ok {
		if s := suggestName(name, kernelFlagKeys()); s != "" {
			return fmt.Errorf("unknown kernel flag: %s (did you mean %q?)", name, s)
		}
		return fmt.Errorf("unknown kernel flag: %s", name)
	}
	cfg.KernelFlags |= bit
	return nil
}

func applyArm9AccessRight(cfg *Config, name string) error {
	bit, ok := arm9RightNames[name]
	if !ok {
		if s := suggestName(name, arm9RightKeys()); s != "" {
			return fmt.Errorf("unknown Arm9 access right: %s (did you mean %q?)", name, s)
		}
		return fmt.Errorf("unknown Arm9 access right: %s", name)
	}
	cfg.Arm9Rights |= bit
	return nil
}
