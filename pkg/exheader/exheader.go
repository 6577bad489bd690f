// Package exheader assembles the fixed 0x400-byte Extended Header and its
// signed twin, the Access Descriptor.
package exheader

import (
	"fmt"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/jakcron/cxitool/pkg/log"
)

const (
	processInfoSize = 0x200
	arm11LocalSize  = 0x170
	arm11KernelSize = 0x80
	arm9Size        = 0x10

	// Size is the fixed on-disk size of the Extended Header.
	Size = processInfoSize + arm11LocalSize + arm11KernelSize + arm9Size

	// AccessDescriptorSize is the fixed on-disk size of the Access
	// Descriptor: a signature, a copy of the NCCH's RSA modulus, then the
	// same three capability blocks carried by the Extended Header.
	AccessDescriptorSize = crypto.SignatureSize + crypto.SignatureSize + arm11LocalSize + arm11KernelSize + arm9Size

	maxDependencyNum   = 48
	maxServiceNum      = 34
	// normalServiceSlots is the service-table size supported by firmwares
	// <= 9.3.0; the 33rd and 34th slots only work on later firmware.
	normalServiceSlots = 32
	maxResourceLimits  = 16
	maxSystemSaveIDs   = 2
	maxKernelDescNum   = 28
	maxInterruptNum    = 32
	maxInterruptValue  = 0x7F
	maxSvcValue        = 0x7D

	fsFlagNotUseRomfs          = uint64(1) << 56
	fsFlagUseExtendedSaveACL   = uint64(1) << 57

	prefixInterruptList  = uint32(0xE0000000)
	prefixSvcList        = uint32(0xF0000000)
	prefixKernelVersion  = uint32(0xFC000000)
	prefixHandleTableSz  = uint32(0xFE000000)
	prefixKernelFlag     = uint32(0xFF000000)
	prefixMappingStatic  = uint32(0xFF800000)
	prefixMappingIO      = uint32(0xFFC00000)
)

// CodeSegment is one of the three (text/rodata/data) code-segment
// descriptors recorded in ProcessInfo.
type CodeSegment struct {
	Address uint32
	PageNum uint32
	Size    uint32
}

// ProcessInfo is the process-info region of the Extended Header.
type ProcessInfo struct {
	Name             string
	IsCodeCompressed bool
	IsSdmcTitle      bool
	RemasterVersion  uint16
	Text             CodeSegment
	RoData           CodeSegment
	Data             CodeSegment
	StackSize        uint32
	BssSize          uint32
	Dependencies     []uint64
	SaveDataSize     uint32
	JumpID           uint64
}

// SaveDataConfig captures the three mutually exclusive ways to describe a
// title's accessible save data.
type SaveDataConfig struct {
	UseExtdata                bool
	ExtdataID                 uint64
	UseOtherVariationSaveData bool
	OtherUserSaveIDs          []uint32
	AccessibleSaveIDs         []uint32
}

// Arm11Local is the Arm11LocalCapabilities region.
type Arm11Local struct {
	ProgramID             uint64
	FirmwareTitleID       uint64
	EnableL2Cache         bool
	CpuSpeed804MHz        bool
	SystemModeExt         uint8
	IdealProcessor        uint8
	AffinityMask          uint8
	SystemMode            uint8
	ThreadPriority        int8
	MaxCpu                uint16
	SystemSaveIDs         []uint32
	SaveData              SaveDataConfig
	FSRights              uint64
	UseRomfs              bool
	Services              []string
	ResourceLimitCategory uint8
}

// MemoryMapping is a {start, end, readOnly} static or I/O mapping entry.
type MemoryMapping struct {
	Start    uint32
	End      uint32
	ReadOnly bool
}

// Arm11Kernel is the Arm11KernelCapabilities region, expressed as the
// pre-packed descriptor inputs rather than the raw 28 u32 slots.
type Arm11Kernel struct {
	AllowedInterrupts      []uint8
	AllowedSupervisorCalls []uint8
	ReleaseKernelVersion   [2]uint8 // major, minor; {0,0} means "not set"
	HandleTableSize        uint16
	MemoryType             uint8
	KernelFlags            uint32
	StaticMappings         []MemoryMapping
	IOMappings             []MemoryMapping
}

// Arm9AccessControl is the Arm9AccessControl region.
type Arm9AccessControl struct {
	IORights    uint32
	DescVersion uint8
}

// Config is the full set of inputs needed to build an Extended Header and
// its Access Descriptor.
type Config struct {
	ProcessInfo ProcessInfo
	Arm11Local  Arm11Local
	Arm11Kernel Arm11Kernel
	Arm9        Arm9AccessControl
}

// Built holds the assembled Extended Header, its hash, and the signed
// Access Descriptor.
type Built struct {
	ExHeader         []byte
	Hash             [crypto.HashSize]byte
	AccessDescriptor []byte
}

// Build assembles the Extended Header and Access Descriptor. ncchModulus is
// the NCCH header's 0x100-byte RSA modulus, embedded verbatim in the
// descriptor; signer signs the descriptor's trailing 0x300 bytes.
func Build(cfg Config, ncchModulus []byte, signer *crypto.Signer) (*Built, error) {
	procInfo, err := buildProcessInfo(cfg.ProcessInfo)
	if err != nil {
		return nil, fmt.Errorf("process info: %w", err)
	}

	arm11Local, err := buildArm11Local(cfg.Arm11Local)
	if err != nil {
		return nil, fmt.Errorf("arm11 local capabilities: %w", err)
	}

	arm11Kernel, err := buildArm11Kernel(cfg.Arm11Kernel)
	if err != nil {
		return nil, fmt.Errorf("arm11 kernel capabilities: %w", err)
	}

	arm9 := buildArm9(cfg.Arm9)

	exheader := make([]byte, 0, Size)
	exheader = append(exheader, procInfo...)
	exheader = append(exheader, arm11Local...)
	exheader = append(exheader, arm11Kernel...)
	exheader = append(exheader, arm9...)

	hash := crypto.Sha256(exheader)

	accessDesc, err := buildAccessDescriptor(arm11Local, arm11Kernel, arm9, ncchModulus, signer)
	if err != nil {
		return nil, fmt.Errorf("access descriptor: %w", err)
	}

	return &Built{ExHeader: exheader, Hash: hash, AccessDescriptor: accessDesc}, nil
}

func buildProcessInfo(p ProcessInfo) ([]byte, error) {
	if len(p.Dependencies) > maxDependencyNum {
		return nil, fmt.Errorf("too many dependencies (max %d)", maxDependencyNum)
	}

	w := bytesx.NewWriter(processInfoSize)
	w.PutString(0, p.Name, 8)

	var flag uint8
	if p.IsCodeCompressed {
		flag |= 1 << 0
	}
	if p.IsSdmcTitle {
		flag |= 1 << 1
	}
	w.PutU8(0x0D, flag)
	w.PutU16LE(0x0E, p.RemasterVersion)

	putCodeSegment(w, 0x10, p.Text)
	w.PutU32LE(0x1C, p.StackSize)
	putCodeSegment(w, 0x20, p.RoData)
	putCodeSegment(w, 0x30, p.Data)
	w.PutU32LE(0x3C, p.BssSize)

	for i, dep := range p.Dependencies {
		w.PutU64LE(0x40+i*8, dep)
	}

	w.PutU32LE(0x1C0, p.SaveDataSize)
	w.PutU64LE(0x1C8, p.JumpID)

	return w.Bytes(), nil
}

func putCodeSegment(w *bytesx.Writer, off int, seg CodeSegment) {
	w.PutU32LE(off, seg.Address)
	w.PutU32LE(off+4, seg.PageNum)
	w.PutU32LE(off+8, seg.Size)
}

// arm11LocalFieldFlags is the byte offset of the L2-cache/CPU-speed flag
// byte; arm11LocalFieldThreadPriority is the byte offset of the thread
// priority, which the Access Descriptor forces to 0.
const (
	arm11LocalFieldFlags          = 0x0C
	arm11LocalFieldThreadPriority = 0x0F
)

func buildArm11Local(a Arm11Local) ([]byte, error) {
	if a.IdealProcessor > 1 {
		return nil, fmt.Errorf("invalid ideal processor %d (only 0 or 1 allowed)", a.IdealProcessor)
	}
	if a.AffinityMask > 3 {
		return nil, fmt.Errorf("affinity mask too large %d (maximum 3)", a.AffinityMask)
	}
	if a.ThreadPriority < 0 {
		return nil, fmt.Errorf("invalid priority %d (allowed range 0-127)", a.ThreadPriority)
	}
	if len(a.SystemSaveIDs) > maxSystemSaveIDs {
		return nil, fmt.Errorf("too many system save ids (max %d)", maxSystemSaveIDs)
	}
	if len(a.Services) > maxServiceNum {
		return nil, fmt.Errorf("too many services (max %d)", maxServiceNum)
	}
	if len(a.Services) > normalServiceSlots {
		log.Warnf("%d services requested; entries beyond slot %d will not be available on firmwares <= 9.3.0", len(a.Services), normalServiceSlots)
	}
	for _, s := range a.Services {
		if len(s) > 8 {
			return nil, fmt.Errorf("service name too long: %q", s)
		}
	}

	extdataID, otherUserSaveIDs, useExtendedACL, err := packSaveData(a.SaveData, a.ProgramID)
	if err != nil {
		return nil, err
	}

	w := bytesx.NewWriter(arm11LocalSize)
	w.PutU64LE(0x00, a.ProgramID)
	w.PutU32LE(0x08, uint32(a.FirmwareTitleID&0x0FFFFFFF))

	flagByte0 := uint8(0)
	if a.EnableL2Cache {
		flagByte0 |= 1 << 0
	}
	if a.CpuSpeed804MHz {
		flagByte0 |= 1 << 1
	}
	w.PutU8(0x0C, flagByte0)
	w.PutU8(0x0D, a.SystemModeExt&0xF)
	w.PutU8(0x0E, (a.IdealProcessor&0x3)|((a.AffinityMask&0x3)<<2)|((a.SystemMode&0xF)<<4))
	w.PutU8(arm11LocalFieldThreadPriority, uint8(a.ThreadPriority))

	resourceLimits := make([]uint16, maxResourceLimits)
	resourceLimits[0] = a.MaxCpu
	for i, v := range resourceLimits {
		w.PutU16LE(0x10+i*2, v)
	}

	w.PutU64LE(0x30, extdataID)
	for i, id := range a.SystemSaveIDs {
		w.PutU32LE(0x38+i*4, id)
	}
	w.PutU64LE(0x40, otherUserSaveIDs)

	fsRights := a.FSRights &^ (fsFlagNotUseRomfs | fsFlagUseExtendedSaveACL)
	if !a.UseRomfs {
		fsRights |= fsFlagNotUseRomfs
	}
	if useExtendedACL {
		fsRights |= fsFlagUseExtendedSaveACL
	}
	w.PutU64LE(0x48, fsRights)

	for i, svc := range a.Services {
		w.PutString(0x50+i*8, svc, 8)
	}

	w.PutU8(arm11LocalSize-1, a.ResourceLimitCategory)

	return w.Bytes(), nil
}

// packSaveData ports the three-mode save-ID packing from
// ExtendedHeader::setExtdataId / setOtherUserSaveIds / setAccessibleSaveIds,
// including the mutual-exclusion checks performed before branching.
func packSaveData(s SaveDataConfig, programID uint64) (extdataID, otherUserSaveIDs uint64, useExtendedACL bool, err error) {
	if len(s.AccessibleSaveIDs) > 0 && (s.UseExtdata || s.ExtdataID != 0) {
		return 0, 0, false, fmt.Errorf("AccessibleSaveIds cannot be combined with UseExtdata/ExtDataId")
	}
	if len(s.AccessibleSaveIDs) > 0 && len(s.OtherUserSaveIDs) > 0 {
		return 0, 0, false, fmt.Errorf("AccessibleSaveIds cannot be combined with OtherUserSaveIds")
	}

	switch {
	case s.UseExtdata || s.ExtdataID != 0 || len(s.OtherUserSaveIDs) > 0:
		if len(s.OtherUserSaveIDs) > 3 {
			return 0, 0, false, fmt.Errorf("too many OtherUserSaveIds (maximum 3)")
		}
		ext := s.ExtdataID
		if ext == 0 {
			ext = (programID >> 8) & 0xFFFFFF
		}
		packed := packSaveIDGroup(s.OtherUserSaveIDs, s.UseOtherVariationSaveData)
		return ext, packed, false, nil

	case len(s.AccessibleSaveIDs) > 0:
		if len(s.AccessibleSaveIDs) > 6 {
			return 0, 0, false, fmt.Errorf("too many AccessibleSaveIds (maximum 6)")
		}
		first, last := s.AccessibleSaveIDs, []uint32(nil)
		if len(first) > 3 {
			last = first[3:]
			first = first[:3]
		}
		otherPacked := packSaveIDGroup(first, s.UseOtherVariationSaveData)
		extPacked := packSaveIDGroup(last, false)
		return extPacked, otherPacked, true, nil

	default:
		return 0, packSaveIDGroup(nil, s.UseOtherVariationSaveData), false, nil
	}
}

// packSaveIDGroup packs up to 3 ids, 20 bits each MSB-first (masked like the
// original with 0xFFFFFF, not 0xFFFFF — see DESIGN.md), optionally setting
// bit 60 as the "other variation" flag.
func packSaveIDGroup(ids []uint32, useOtherVariation bool) uint64 {
	var v uint64
	for i := 0; i < len(ids) && i < 3; i++ {
		v = (v << 20) | uint64(ids[i]&0xFFFFFF)
	}
	if useOtherVariation {
		v |= 1 << 60
	}
	return v
}

func buildArm11Kernel(k Arm11Kernel) ([]byte, error) {
	svcDescs := packSystemCalls(k.AllowedSupervisorCalls)
	interruptDescs := packInterrupts(k.AllowedInterrupts)
	ioDescs := packIOMappings(k.IOMappings)
	staticDescs := packStaticMappings(k.StaticMappings)

	var kernelFlagsDesc, handleTableDesc, versionDesc uint32
	if k.KernelFlags != 0 || k.MemoryType != 0 {
		flags := k.KernelFlags & 0x00FFF0FF
		flags |= (uint32(k.MemoryType) << 8) & 0x00000F00
		kernelFlagsDesc = makeKernelCapability(prefixKernelFlag, flags)
	}
	if k.HandleTableSize != 0 {
		handleTableDesc = makeKernelCapability(prefixHandleTableSz, uint32(k.HandleTableSize))
	}
	if k.ReleaseKernelVersion != [2]uint8{0, 0} {
		version := uint32(k.ReleaseKernelVersion[0])<<8 | uint32(k.ReleaseKernelVersion[1])
		versionDesc = makeKernelCapability(prefixKernelVersion, version)
	}

	total := len(svcDescs) + len(interruptDescs) + len(ioDescs) + len(staticDescs)
	if kernelFlagsDesc != 0 {
		total++
	}
	if handleTableDesc != 0 {
		total++
	}
	if versionDesc != 0 {
		total++
	}
	if total > maxKernelDescNum {
		return nil, fmt.Errorf("Too many kernel descriptors (%d, maximum %d)", total, maxKernelDescNum)
	}

	descs := make([]uint32, 0, maxKernelDescNum)
	descs = append(descs, svcDescs...)
	descs = append(descs, interruptDescs...)
	descs = append(descs, ioDescs...)
	descs = append(descs, staticDescs...)
	if kernelFlagsDesc != 0 {
		descs = append(descs, kernelFlagsDesc)
	}
	if handleTableDesc != 0 {
		descs = append(descs, handleTableDesc)
	}
	if versionDesc != 0 {
		descs = append(descs, versionDesc)
	}
	for len(descs) < maxKernelDescNum {
		descs = append(descs, 0xFFFFFFFF)
	}

	w := bytesx.NewWriter(arm11KernelSize)
	for i, d := range descs {
		w.PutU32LE(i*4, d)
	}
	w.Fill(maxKernelDescNum*4, arm11KernelSize-maxKernelDescNum*4, 0)

	return w.Bytes(), nil
}

func makeKernelCapability(prefix, value uint32) uint32 {
	return prefix | (value &^ prefix)
}

// packInterrupts packs up to 4 interrupt numbers (7 bits each) per u32
// descriptor, MSB-first, pre-filling each new descriptor with all-ones so
// unused slots read as 0x7F.
func packInterrupts(interrupts []uint8) []uint32 {
	var descs []uint32
	var cur uint32
	count := 0
	flush := func() {
		if count > 0 {
			descs = append(descs, makeKernelCapability(prefixInterruptList, cur))
		}
	}

	for _, v := range interrupts {
		if count >= maxInterruptNum {
			break
		}
		if v > maxInterruptValue {
			continue
		}
		if count%4 == 0 {
			if count > 0 {
				flush()
			}
			cur = 0xFFFFFFFF
		}
		cur = (cur << 7) | uint32(v)
		count++
	}
	flush()

	return descs
}

// packSystemCalls buckets SVC numbers into 8 possible 24-bit bitmaps
// (bucket = svc/24, bit = svc%24).
func packSystemCalls(svcs []uint8) []uint32 {
	var buckets [8]uint32
	for _, v := range svcs {
		if v > maxSvcValue {
			continue
		}
		buckets[v/24] |= 1 << (uint(v) % 24)
	}

	var descs []uint32
	for i, b := range buckets {
		if b > 0 {
			descs = append(descs, makeKernelCapability(prefixSvcList|(uint32(i)<<24), b))
		}
	}
	return descs
}

func makeMappingDesc(prefix, address uint32, readOnly bool) uint32 {
	var ro uint32
	if readOnly {
		ro = 1
	}
	return makeKernelCapability(prefix, (address>>12)|(ro<<20))
}

func alignToPage(address uint32) uint32 {
	if address&0xFFF != 0 {
		return (address &^ 0xFFF) + 0x1000
	}
	return address
}

func packStaticMappings(mappings []MemoryMapping) []uint32 {
	var descs []uint32
	for _, m := range mappings {
		if m.Start == 0 {
			continue
		}
		if alignToPage(m.End) > m.Start {
			descs = append(descs, makeMappingDesc(prefixMappingStatic, m.Start, m.ReadOnly))
			descs = append(descs, makeMappingDesc(prefixMappingStatic, alignToPage(m.End), true))
		} else {
			descs = append(descs, makeMappingDesc(prefixMappingStatic, m.Start, m.ReadOnly))
			descs = append(descs, makeMappingDesc(prefixMappingStatic, m.Start+0x1000, true))
		}
	}
	return descs
}

// packIOMappings emits a single page-number descriptor per mapping. The
// original's setIOMapping has a two-descriptor ranged form that reuses the
// MAPPING_STATIC prefix for its "valid end" branch — almost certainly a
// copy-paste slip from setStaticMapping, since it would silently promote an
// I/O mapping into a static-memory one. We instead implement the single,
// unambiguous MAPPING_IO-prefixed descriptor (see DESIGN.md).
func packIOMappings(mappings []MemoryMapping) []uint32 {
	var descs []uint32
	for _, m := range mappings {
		if m.Start == 0 {
			continue
		}
		descs = append(descs, makeMappingDesc(prefixMappingIO, m.Start, false))
	}
	return descs
}

func buildArm9(a Arm9AccessControl) []byte {
	w := bytesx.NewWriter(arm9Size)
	w.PutU32LE(0x00, a.IORights)
	w.PutU8(0x0F, a.DescVersion)
	return w.Bytes()
}

func buildAccessDescriptor(arm11Local, arm11Kernel, arm9 []byte, ncchModulus []byte, signer *crypto.Signer) ([]byte, error) {
	w := bytesx.NewWriter(AccessDescriptorSize)

	modulusOff := crypto.SignatureSize
	if len(ncchModulus) == crypto.SignatureSize {
		w.PutBytes(modulusOff, ncchModulus)
	} else {
		w.Fill(modulusOff, crypto.SignatureSize, 0xFF)
	}

	capsOff := modulusOff + crypto.SignatureSize
	originalIdealProcessor := arm11Local[0x0E] & 0x3
	capsCopy := rewriteArm11Local(arm11Local, originalIdealProcessor)

	w.PutBytes(capsOff, capsCopy)
	w.PutBytes(capsOff+arm11LocalSize, arm11Kernel)
	w.PutBytes(capsOff+arm11LocalSize+arm11KernelSize, arm9)

	signed := w.Bytes()[modulusOff:]
	sig, err := signer.SignSha256(signed)
	if err != nil {
		return nil, err
	}
	w.PutBytes(0, sig)

	return w.Bytes(), nil
}

// rewriteArm11Local returns a copy of the Extended Header's Arm11Local
// capabilities block with ideal_processor replaced by 1<<original and
// thread_priority forced to 0, per cxi_extended_header's access-descriptor
// rules.
func rewriteArm11Local(arm11Local []byte, originalIdealProcessor byte) []byte {
	out := append([]byte(nil), arm11Local...)
	b := out[0x0E]
	affinityAndMode := b &^ 0x3
	out[0x0E] = affinityAndMode | (1 << originalIdealProcessor & 0x3)
	out[arm11LocalFieldThreadPriority] = 0
	return out
}
