// Package cxispec parses the YAML process-configuration file that drives a
// CXI build — dependency lists, save-data layout, service/kernel/FS rights —
// into a typed Config ready to hand to pkg/exheader.
package cxispec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/jakcron/cxitool/pkg/exheader"
)

// Resource limit categories (Arm11LocalCapabilities.resource_limit_category).
const (
	resLimitApplication uint8 = 0
	resLimitSysApplet    uint8 = 1
	resLimitLibApplet    uint8 = 2
	resLimitOther        uint8 = 3
)

// Memory types (Arm11KernelCapabilities.memory_type).
const (
	memTypeApplication uint8 = 1
	memTypeSystem      uint8 = 2
	memTypeBase        uint8 = 3
)

// System mode ordinals, matching the original's sProcessConfig enums.
const (
	sysModeProd        uint8 = 0
	sysModeDev1         uint8 = 2
	sysModeDev2         uint8 = 3
	sysModeDev3         uint8 = 4
	sysModeSnakeLegacy  uint8 = 0
	sysModeSnakeProd    uint8 = 1
	sysModeSnakeDev1    uint8 = 2
)

// Config is the fully-resolved set of build inputs read from a spec file,
// CLI overrides and the built-in defaults — the direct analogue of the
// original tool's NcchBuilder::sConfig.
type Config struct {
	TitleID        uint64
	ProductCode    string
	MakerCode      string
	AppTitle       string
	ProgramID      uint64
	JumpID         uint64
	KernelTitleID  uint64
	RemasterVersion uint16
	StackSize      uint32
	SdmcTitle      bool
	CompressedCode bool

	IdealProcessor uint8
	AffinityMask   uint8
	SystemMode     uint8
	SystemModeExt  uint8
	EnableL2Cache  bool
	Priority       int8
	CpuSpeed804MHz bool
	Dependencies   []uint64

	SaveDataSize              uint32
	SystemSaveIDs             []uint32
	UseExtdata                bool
	ExtdataID                 uint64
	UseOtherVariationSaveData bool
	OtherUserSaveIDs          []uint32
	AccessibleSaveIDs         []uint32

	Services       []string
	IOMappings     []exheader.MemoryMapping
	StaticMappings []exheader.MemoryMapping
	FSRights       uint64
	KernelFlags    uint32
	Arm9Rights     uint32

	MaxCpu                 uint16
	ResourceLimitCategory  uint8
	MemoryType             uint8
	HandleTableSize        uint16
	ReleaseKernelVersion   [2]uint8
	AllowedSupervisorCalls []uint8
	DescVersion            uint8
}

// Defaults returns the built-in Config the original tool's setDefaults()
// establishes before any spec file or CLI flag is applied.
func Defaults() Config {
	cfg := Config{
		TitleID:               0x000400000ff3ff00,
		ProductCode:           "CTR-P-CTAP",
		MakerCode:             "01",
		AppTitle:              "CtrApp",
		SdmcTitle:             true,
		CompressedCode:        false,
		RemasterVersion:       0,
		StackSize:             0x4000,
		KernelTitleID:         0x0004013800000002,
		FSRights:              0,
		MaxCpu:                0,
		ResourceLimitCategory: resLimitApplication,
		MemoryType:            memTypeApplication,
		HandleTableSize:       0x200,
		KernelFlags:           0,
		ReleaseKernelVersion:  [2]uint8{2, 29},
		Arm9Rights:            ioRightSDApplication,
		DescVersion:           2,
	}
	cfg.ProgramID = cfg.TitleID
	cfg.JumpID = cfg.TitleID
	for svc := uint8(0); svc <= 0x7D; svc++ {
		cfg.AllowedSupervisorCalls = append(cfg.AllowedSupervisorCalls, svc)
	}
	return cfg
}

// CLIOverrides carries the three flags that are allowed to override a
// default. The build command applies them after the spec file is parsed;
// the YAML format has no key for any of these fields — no title-id/unique-id
// key at all, only the CLI has one, a deliberate asymmetry preserved from
// the original tool — so the order does not change the result.
type CLIOverrides struct {
	UniqueID    string // e.g. "0xff3ff"; replaces TitleID outright (see Apply)
	ProductCode string
	Title       string
}

// Apply rewrites cfg in place with any non-empty override, then re-derives
// ProgramID/JumpID from the (possibly rewritten) TitleID. --uniqueid does not
// patch individual bits of the existing TitleID: it replaces it outright with
// `0x0004000000000000 | ((uid & 0xffffff) << 8)`, matching setDefaults()'s
// `strtoul(uniqueId, NULL, 0)` call (auto base, so a bare decimal value or an
// octal "0..." prefix are both accepted, not just "0x" hex).
func (o CLIOverrides) Apply(cfg *Config) error {
	if o.UniqueID != "" {
		uid, err := strconv.ParseUint(o.UniqueID, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid --uniqueid %q: %w", o.UniqueID, err)
		}
		cfg.TitleID = 0x0004000000000000 | ((uid & 0xFFFFFF) << 8)
	}
	if o.ProductCode != "" {
		cfg.ProductCode = o.ProductCode
	}
	if o.Title != "" {
		cfg.AppTitle = o.Title
	}
	cfg.ProgramID = cfg.TitleID
	cfg.JumpID = cfg.TitleID
	return nil
}

// Parse decodes a spec file's YAML bytes into cfg, mutating it in place.
// Unknown keys anywhere in the three top-level sections (ProcessConfig,
// SaveData, Rights) are a hard error, matching the original reader's fatal
// "Unknown specfile key" behavior.
func Parse(raw []byte, cfg *Config) error {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return fmt.Errorf("parse spec file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return fmt.Errorf("spec file root must be a mapping")
	}

	var errs *multierror.Error
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]
		switch key {
		case "ProcessConfig":
			if err := parseProcessConfig(val, cfg); err != nil {
				errs = multierror.Append(errs, err)
			}
		case "SaveData":
			if err := parseSaveData(val, cfg); err != nil {
				errs = multierror.Append(errs, err)
			}
		case "Rights":
			if err := parseRights(val, cfg); err != nil {
				errs = multierror.Append(errs, err)
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown specfile key: %s", key))
		}
	}
	return errs.ErrorOrNil()
}

func mappingPairs(n *yaml.Node) ([]string, []*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("expected a mapping")
	}
	keys := make([]string, 0, len(n.Content)/2)
	vals := make([]*yaml.Node, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
		vals = append(vals, n.Content[i+1])
	}
	return keys, vals, nil
}

func sequenceStrings(n *yaml.Node) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence")
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		out = append(out, item.Value)
	}
	return out, nil
}

func parseProcessConfig(n *yaml.Node, cfg *Config) error {
	keys, vals, err := mappingPairs(n)
	if err != nil {
		return fmt.Errorf("ProcessConfig: %w", err)
	}
	var errs *multierror.Error
	for i, key := range keys {
		val := vals[i]
		switch key {
		case "IdealProcessor":
			v, err := strconv.ParseInt(val.Value, 0, 16)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.IdealProcessor = uint8(v)
		case "AffinityMask":
			v, err := strconv.ParseInt(val.Value, 0, 16)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.AffinityMask = uint8(v)
		case "AppMemory":
			switch val.Value {
			case "64MB":
				cfg.SystemMode = sysModeProd
			case "72MB":
				cfg.SystemMode = sysModeDev3
			case "80MB":
				cfg.SystemMode = sysModeDev2
			case "96MB":
				cfg.SystemMode = sysModeDev1
			default:
				errs = multierror.Append(errs, fmt.Errorf("Invalid AppMemory: %s", val.Value))
			}
		case "SnakeAppMemory":
			switch val.Value {
			case "Legacy":
				cfg.SystemModeExt = sysModeSnakeLegacy
			case "124MB":
				cfg.SystemModeExt = sysModeSnakeProd
			case "178MB":
				cfg.SystemModeExt = sysModeSnakeDev1
			default:
				errs = multierror.Append(errs, fmt.Errorf("invalid SnakeAppMemory: %s", val.Value))
			}
		case "EnableL2Cache":
			b, err := evaluateBoolean(val.Value)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.EnableL2Cache = b
		case "Priority":
			v, err := strconv.ParseInt(val.Value, 0, 8)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.Priority = int8(v)
		case "SnakeCpuSpeed":
			switch val.Value {
			case "268MHz":
				cfg.CpuSpeed804MHz = false
			case "804MHz":
				cfg.CpuSpeed804MHz = true
			default:
				errs = multierror.Append(errs, fmt.Errorf("invalid SnakeCpuSpeed: %s", val.Value))
			}
		case "Dependency":
			deps, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, d := range deps {
				id, err := resolveDependency(d)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.Dependencies = append(cfg.Dependencies, id)
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown specfile key: ProcessConfig/%s", key))
		}
	}
	return errs.ErrorOrNil()
}

func parseSaveData(n *yaml.Node, cfg *Config) error {
	keys, vals, err := mappingPairs(n)
	if err != nil {
		return fmt.Errorf("SaveData: %w", err)
	}
	var errs *multierror.Error
	for i, key := range keys {
		val := vals[i]
		switch key {
		case "SaveDataSize":
			size, err := parseSaveDataSize(val.Value)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.SaveDataSize = size
		case "SystemSaveIds":
			ids, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range ids {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.SystemSaveIDs = append(cfg.SystemSaveIDs, uint32(v))
			}
		case "UseExtdata":
			b, err := evaluateBoolean(val.Value)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.UseExtdata = b
		case "ExtDataId":
			v, err := strconv.ParseUint(val.Value, 0, 64)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.ExtdataID = v
		case "UseOtherVariationSaveData":
			b, err := evaluateBoolean(val.Value)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			cfg.UseOtherVariationSaveData = b
		case "OtherUserSaveIds":
			ids, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range ids {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.OtherUserSaveIDs = append(cfg.OtherUserSaveIDs, uint32(v)&0xffffff)
			}
		case "AccessibleSaveIds":
			ids, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range ids {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.AccessibleSaveIDs = append(cfg.AccessibleSaveIDs, uint32(v)&0xffffff)
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown specfile key: SaveData/%s", key))
		}
	}
	return errs.ErrorOrNil()
}

func parseRights(n *yaml.Node, cfg *Config) error {
	keys, vals, err := mappingPairs(n)
	if err != nil {
		return fmt.Errorf("Rights: %w", err)
	}
	var errs *multierror.Error
	for i, key := range keys {
		val := vals[i]
		switch key {
		case "Services":
			svcs, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range svcs {
				if len(s) > 8 {
					errs = multierror.Append(errs, fmt.Errorf("service name is too long: %s", s))
					continue
				}
				cfg.Services = append(cfg.Services, s)
			}
		case "IORegisterMapping":
			items, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range items {
				m, err := parseMapping(s, false)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.IOMappings = append(cfg.IOMappings, m)
			}
		case "MemoryMapping":
			items, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range items {
				m, err := parseMapping(s, true)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				cfg.StaticMappings = append(cfg.StaticMappings, m)
			}
		case "FSAccess":
			items, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range items {
				if err := applyFSAccessRight(cfg, s); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
		case "KernelFlags":
			items, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range items {
				if err := applyKernelFlag(cfg, s); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
		case "Arm9Access":
			items, err := sequenceStrings(val)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			for _, s := range items {
				if err := applyArm9AccessRight(cfg, s); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown specfile key: Rights/%s", key))
		}
	}
	return errs.ErrorOrNil()
}

// evaluateBoolean implements the strict two-literal form of the original's
// evaluateBooleanString. The original only checks for the literal string
// "true" and otherwise falls back to the field's current value unless it
// was already false, which is a no-op bug with no intentional semantic to
// preserve; this accepts exactly "true" and "false" and rejects anything
// else, rather than silently keeping stale state.
func evaluateBoolean(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s", s)
	}
}

// parseSaveDataSize implements setSaveDataSize's suffix parsing: lowercase
// first, accept trailing k/kb (x1024) or m/mb (x1024*1024), require the
// final byte count to land on a 64KiB boundary.
func parseSaveDataSize(raw string) (uint32, error) {
	s := strings.ToLower(raw)

	var numPart string
	var multiplier uint64
	switch {
	case strings.HasSuffix(s, "kb"):
		numPart, multiplier = s[:len(s)-2], 0x400
	case strings.HasSuffix(s, "k"):
		numPart, multiplier = s[:len(s)-1], 0x400
	case strings.HasSuffix(s, "mb"):
		numPart, multiplier = s[:len(s)-2], 0x400*0x400
	case strings.HasSuffix(s, "m"):
		numPart, multiplier = s[:len(s)-1], 0x400*0x400
	default:
		return 0, fmt.Errorf("invalid SaveDataSize: %s", raw)
	}

	n, err := strconv.ParseUint(numPart, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid SaveDataSize: %s", raw)
	}
	size := n * multiplier

	if size%(64*0x400) != 0 {
		return 0, fmt.Errorf("SaveDataSize must be aligned to 64K: %s", raw)
	}
	return uint32(size), nil
}

// CodeLayout carries the ELF-derived segment geometry that ToExheaderConfig
// needs to complete the ProcessInfo structure. cxispec owns none of this —
// it comes from pkg/elfcode's parse of the input binary.
type CodeLayout struct {
	Text, RoData, Data exheader.CodeSegment
	BssSize             uint32
}

// ToExheaderConfig assembles the exheader.Config this build produces,
// combining the parsed/defaulted spec Config with the ELF-derived code
// layout and whether a RomFS partition is present in this build.
func (cfg Config) ToExheaderConfig(layout CodeLayout, hasRomfs bool) exheader.Config {
	return exheader.Config{
		ProcessInfo: exheader.ProcessInfo{
			Name:             cfg.AppTitle,
			IsCodeCompressed: cfg.CompressedCode,
			IsSdmcTitle:      cfg.SdmcTitle,
			RemasterVersion:  cfg.RemasterVersion,
			Text:             layout.Text,
			RoData:           layout.RoData,
			Data:             layout.Data,
			StackSize:        cfg.StackSize,
			BssSize:          layout.BssSize,
			Dependencies:     cfg.Dependencies,
			SaveDataSize:     cfg.SaveDataSize,
			JumpID:           cfg.JumpID,
		},
		Arm11Local: exheader.Arm11Local{
			ProgramID:       cfg.ProgramID,
			FirmwareTitleID: cfg.KernelTitleID,
			EnableL2Cache:   cfg.EnableL2Cache,
			CpuSpeed804MHz:  cfg.CpuSpeed804MHz,
			SystemModeExt:   cfg.SystemModeExt,
			IdealProcessor:  cfg.IdealProcessor,
			AffinityMask:    cfg.AffinityMask,
			SystemMode:      cfg.SystemMode,
			ThreadPriority:  cfg.Priority,
			MaxCpu:          cfg.MaxCpu,
			SystemSaveIDs:   cfg.SystemSaveIDs,
			SaveData: exheader.SaveDataConfig{
				UseExtdata:                cfg.UseExtdata,
				ExtdataID:                 cfg.ExtdataID,
				UseOtherVariationSaveData: cfg.UseOtherVariationSaveData,
				OtherUserSaveIDs:          cfg.OtherUserSaveIDs,
				AccessibleSaveIDs:         cfg.AccessibleSaveIDs,
			},
			FSRights:              cfg.FSRights,
			UseRomfs:              hasRomfs,
			Services:              cfg.Services,
			ResourceLimitCategory: cfg.ResourceLimitCategory,
		},
		Arm11Kernel: exheader.Arm11Kernel{
			AllowedSupervisorCalls: cfg.AllowedSupervisorCalls,
			ReleaseKernelVersion:   cfg.ReleaseKernelVersion,
			HandleTableSize:        cfg.HandleTableSize,
			MemoryType:             cfg.MemoryType,
			KernelFlags:            cfg.KernelFlags,
			StaticMappings:         cfg.StaticMappings,
			IOMappings:             cfg.IOMappings,
		},
		Arm9: exheader.Arm9AccessControl{
			IORights:    cfg.Arm9Rights,
			DescVersion: cfg.DescVersion,
		},
	}
}
