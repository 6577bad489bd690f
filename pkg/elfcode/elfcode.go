// Package elfcode extracts the loadable code segments from an ARM32 ELF
// executable and lays them out into a single code blob ready for ExeFS
// packaging. ELF structure parsing itself is delegated to the standard
// library's debug/elf package (spec.md marks "ELF structure definitions"
// out of scope).
package elfcode

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
)

const pageSize = 0x1000

// SegmentKind identifies which of the three permission-classified ELF
// segments (plus the module-id blob) a CodeSegment represents.
type SegmentKind int

const (
	Text SegmentKind = iota
	Rodata
	Data
	ModuleID
)

func (k SegmentKind) String() string {
	switch k {
	case Text:
		return "text"
	case Rodata:
		return "rodata"
	case Data:
		return "data"
	case ModuleID:
		return "module-id"
	default:
		return "unknown"
	}
}

// pfCtrSdk is a vendor-specific program-header flag bit that is ignored
// when classifying segments by their low three permission bits.
const pfCtrSdk = 0x00800000

// CodeSegment is one PT_LOAD segment classified by permission, plus its
// derived layout fields (spec.md 3.1, 4.1).
type CodeSegment struct {
	Kind      SegmentKind
	Vaddr     uint32
	FileSize  uint32 // payload length on disk
	MemSize   uint32 // including BSS
	PageCount uint32
	Payload   []byte
}

// BSSSize returns data.MemSize - data.FileSize, the Extended Header's BSS field.
func (s CodeSegment) BSSSize() uint32 {
	if s.MemSize < s.FileSize {
		return 0
	}
	return s.MemSize - s.FileSize
}

// Extracted holds the four classified segments from an ELF image. Rodata
// and ModuleID can both be present: an R-only segment that is the last
// PT_LOAD segment is ModuleID, an earlier R-only segment is Rodata (if
// there are several, only the last of them is kept).
type Extracted struct {
	Text     *CodeSegment
	Rodata   *CodeSegment
	Data     *CodeSegment
	ModuleID *CodeSegment
}

// Extract reads program headers from an in-memory ELF image, validates its
// class/endianness/type/machine, and classifies each PT_LOAD segment.
func Extract(raw []byte) (*Extracted, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("not a valid ELF image: %w", err)
	}
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("unsupported ELF class %v, want ELFCLASS32", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported ELF data encoding %v, want little-endian", f.Data)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("unsupported ELF type %v, want ET_EXEC", f.Type)
	}
	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("unsupported ELF machine %v, want EM_ARM", f.Machine)
	}

	var loads []*elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
		}
	}
	if len(loads) == 0 {
		return nil, fmt.Errorf("ELF image has no PT_LOAD segments")
	}

	out := &Extracted{}
	for i, p := range loads {
		flags := uint32(p.Flags) &^ pfCtrSdk
		perm := flags & 0x7

		payload := make([]byte, p.Filesz)
		if p.Filesz > 0 {
			if _, err := io.ReadFull(p.Open(), payload); err != nil {
				return nil, fmt.Errorf("reading PT_LOAD segment %d: %w", i, err)
			}
		}

		seg := &CodeSegment{
			Vaddr:     uint32(p.Vaddr),
			FileSize:  uint32(p.Filesz),
			MemSize:   uint32(p.Memsz),
			PageCount: uint32((p.Filesz + pageSize - 1) / pageSize),
			Payload:   payload,
		}

		isLast := i == len(loads)-1
		switch {
		case perm == (elf.PF_R | elf.PF_X):
			seg.Kind = Text
			out.Text = seg
		case perm == elf.PF_R && isLast:
			seg.Kind = ModuleID
			out.ModuleID = seg
		case perm == elf.PF_R:
			seg.Kind = Rodata
			out.Rodata = seg
		case perm == (elf.PF_R | elf.PF_W):
			seg.Kind = Data
			out.Data = seg
		default:
			return nil, fmt.Errorf("PT_LOAD segment %d has unrecognized permission bits 0x%x", i, perm)
		}
	}

	if out.Text == nil {
		return nil, fmt.Errorf("ELF image has no text (R|X) segment")
	}
	if out.Data == nil {
		return nil, fmt.Errorf("ELF image has no data (R|W) segment")
	}
	return out, nil
}

// BlobLayout selects how segments are concatenated into a single code blob.
type BlobLayout int

const (
	// PageAligned pads each segment to page_count*0x1000 bytes (the normal case).
	PageAligned BlobLayout = iota
	// Packed concatenates segments at their raw FileSize (built-in sysmodule case).
	Packed
)

// Blob is the concatenated text+rodata+data code image handed to the
// ExeFS packer as the ".code" payload.
type Blob struct {
	Bytes  []byte
	Layout BlobLayout
}

// BuildBlob concatenates text, rodata (if present), and data per layout.
func (e *Extracted) BuildBlob(layout BlobLayout) *Blob {
	var buf bytes.Buffer
	segs := []*CodeSegment{e.Text, e.Rodata, e.Data}
	for _, s := range segs {
		if s == nil {
			continue
		}
		switch layout {
		case PageAligned:
			padded := make([]byte, s.PageCount*pageSize)
			copy(padded, s.Payload)
			buf.Write(padded)
		case Packed:
			buf.Write(s.Payload)
		}
	}
	return &Blob{Bytes: buf.Bytes(), Layout: layout}
}
