// Package ncch assembles the NCCH header that wraps every other section of
// a CXI container, finalizes the section layout, and orchestrates the full
// build pipeline from ELF + spec + assets down to a single output file.
package ncch

import (
	"fmt"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
)

// FormType packs bits 0-1 of the header's content_type byte.
type FormType uint8

const (
	FormUnassigned FormType = iota
	FormSimpleContent
	FormExecutableWithoutRomfs
	FormExecutable
)

// ContentType packs bits 2-7 of the header's content_type byte.
type ContentType uint8

const (
	ContentApplication ContentType = iota
	ContentSystemUpdate
	ContentManual
	ContentChild
	ContentTrial
	ContentExtendedSystemUpdate
)

// Platform identifies the target hardware generation.
type Platform uint8

const (
	PlatformCTR   Platform = 1
	PlatformSnake Platform = 2
)

// otherFlag bits, packed into the header's other_flag byte.
const (
	otherFlagFixedAesKey = 1 << 0
	otherFlagNoMountRomfs = 1 << 1
	otherFlagNoAes        = 1 << 2
	otherFlagSeedKey      = 1 << 5
)

const (
	// Size is the fixed on-disk size of the NCCH header, also its own
	// media-unit-aligned offset 0 slot.
	Size = 0x200

	defaultMediaUnit = 0x200

	offMagic       = 0x100
	offSize        = 0x104
	offTitleID     = 0x108
	offMakerCode   = 0x110
	offFormatVer   = 0x112
	offSeedCheck   = 0x114
	offProgramID   = 0x118
	offLogoHash    = 0x130
	offProductCode = 0x150
	offExhdrHash   = 0x160
	offExhdrSize   = 0x180
	offFlags       = 0x188
	offKeyXIndex   = offFlags + 3
	offPlatform    = offFlags + 4
	offContentType = offFlags + 5
	offBlockSize   = offFlags + 6
	offOtherFlag   = offFlags + 7
	offPlainRegion = 0x190
	offLogo        = 0x198
	offExefs       = 0x1A0
	offExefsHashSz = 0x1A8
	offRomfs       = 0x1B0
	offRomfsHashSz = 0x1B8
	offExefsHash   = 0x1C0
	offRomfsHash   = 0x1E0
)

// Header is the in-progress NCCH header, built up through a sequence of
// setter calls mirroring the original NcchHeader class, then finalized and
// signed by Build.
type Header struct {
	buf               *bytesx.Writer
	exheaderExtraSize uint32
}

// NewHeader returns a zeroed header with the "NCCH" magic and the default
// 0x200-byte media unit already set.
func NewHeader() *Header {
	h := &Header{buf: bytesx.NewWriter(Size)}
	h.buf.PutBytes(offMagic, []byte("NCCH"))
	h.SetBlockSize(defaultMediaUnit)
	return h
}

// SetTitleID sets the title id field (u64 LE).
func (h *Header) SetTitleID(id uint64) { h.buf.PutU64LE(offTitleID, id) }

// SetProgramID sets the program id field (u64 LE).
func (h *Header) SetProgramID(id uint64) { h.buf.PutU64LE(offProgramID, id) }

// SetMakerCode writes up to 2 ASCII bytes at the maker code field.
func (h *Header) SetMakerCode(code string) { h.buf.PutString(offMakerCode, code, 2) }

// SetProductCode writes up to 16 ASCII bytes at the product code field.
func (h *Header) SetProductCode(code string) { h.buf.PutString(offProductCode, code, 0x10) }

// SetNcchType packs form/content into the content_type byte and derives
// format_version and the NO_MOUNT_ROMFS other_flag bit, per the original's
// setNcchType: format_version is 2 for both executable form types (romfs or
// not) and 0 only for UNASSIGNED/SIMPLE_CONTENT — not "0 for romfs-less" as
// a literal reading of a looser summary might suggest.
func (h *Header) SetNcchType(content ContentType, form FormType) {
	h.buf.PutU8(offContentType, (uint8(form)&3)|(uint8(content)<<2))

	other := h.buf.Bytes()[offOtherFlag]
	if form == FormExecutableWithoutRomfs || form == FormUnassigned {
		other |= otherFlagNoMountRomfs
	}
	h.buf.PutU8(offOtherFlag, other)

	if form == FormExecutableWithoutRomfs || form == FormExecutable {
		h.buf.PutU16LE(offFormatVer, 2)
	} else {
		h.buf.PutU16LE(offFormatVer, 0)
	}
}

// SetPlatform sets the platform byte.
func (h *Header) SetPlatform(p Platform) { h.buf.PutU8(offPlatform, uint8(p)) }

// SetBlockSize sets the media-unit size via its log2-minus-9 encoding. size
// must be a power of two.
func (h *Header) SetBlockSize(size uint32) {
	shift := uint8(0)
	for v := size; v > defaultMediaUnit; v >>= 1 {
		shift++
	}
	h.buf.PutU8(offBlockSize, shift)
}

// SetNoCrypto clears FIXED_AES_KEY/SEED_KEY and sets NO_AES, matching the
// original's setNoCrypto — this tool never encrypts its output.
func (h *Header) SetNoCrypto() {
	other := h.buf.Bytes()[offOtherFlag]
	other &^= otherFlagNoAes | otherFlagFixedAesKey | otherFlagSeedKey
	other |= otherFlagNoAes
	h.buf.PutU8(offOtherFlag, other)
}

// blockSize returns 1 << (block_size_field + 9).
func (h *Header) blockSize() uint32 {
	return 1 << (uint32(h.buf.Bytes()[offBlockSize]) + 9)
}

// toBlockSize rounds size up to the next multiple of the media unit, then
// expresses it as a media-unit count.
func (h *Header) toBlockSize(size uint32) uint32 {
	return bytesx.Align32(size, h.blockSize()) / h.blockSize()
}

// SetExheaderData records the Extended Header's size (bytes) and hash. The
// Access Descriptor's size is folded into the layout as additionalSize — it
// always sits immediately after the Extended Header with no header field of
// its own, matching the original's m_ExheaderExtraSize.
func (h *Header) SetExheaderData(size, additionalSize uint32, hash [crypto.HashSize]byte) {
	h.buf.PutU32LE(offExhdrSize, size)
	h.exheaderExtraSize = additionalSize
	h.buf.PutBytes(offExhdrHash, hash[:])
}

// SetPlainRegionData records the plain region's size (module-id blob).
func (h *Header) SetPlainRegionData(size uint32) {
	h.buf.PutU32LE(offPlainRegion+4, h.toBlockSize(size))
}

// SetLogoData records the built-in logo blob's size and hash.
func (h *Header) SetLogoData(size uint32, hash [crypto.HashSize]byte) {
	h.buf.PutU32LE(offLogo+4, h.toBlockSize(size))
	h.buf.PutBytes(offLogoHash, hash[:])
}

// SetExefsData records the ExeFS image's size, its hashed-region size
// (always HeaderSize, see pkg/exefs), and its header hash.
func (h *Header) SetExefsData(size, hashedDataSize uint32, hash [crypto.HashSize]byte) {
	h.buf.PutU32LE(offExefs+4, h.toBlockSize(size))
	h.buf.PutU32LE(offExefsHashSz, h.toBlockSize(hashedDataSize))
	h.buf.PutBytes(offExefsHash, hash[:])
}

// SetRomfsData records the RomFS/IVFC image's size, its hashed-region size,
// and its hash.
func (h *Header) SetRomfsData(size, hashedDataSize uint32, hash [crypto.HashSize]byte) {
	h.buf.PutU32LE(offRomfs+4, h.toBlockSize(size))
	h.buf.PutU32LE(offRomfsHashSz, h.toBlockSize(hashedDataSize))
	h.buf.PutBytes(offRomfsHash, hash[:])
}

// Layout is the finalized set of absolute byte offsets for every section,
// derived by FinaliseLayout. A zero offset means the section is absent.
type Layout struct {
	TotalSize           uint32
	ExheaderOffset      uint32
	PlainRegionOffset   uint32
	LogoOffset          uint32
	ExefsOffset         uint32
	RomfsOffset         uint32
}

// FinaliseLayout walks the declared section sizes in fixed order (header,
// exheader, logo, plain region, exefs, romfs), assigning each non-empty
// section's offset field and advancing a media-unit cursor. RomFS is
// additionally re-aligned to a 0x1000 byte boundary before its offset is
// assigned. This ports finaliseNcchLayout() verbatim (spec.md 4.5.2).
func (h *Header) FinaliseLayout() Layout {
	b := h.buf
	cursor := h.toBlockSize(Size)

	var exheaderOffset uint32
	if exhdrSize := bytesx.ReadU32LE(b.Bytes(), offExhdrSize); exhdrSize != 0 {
		exheaderOffset = cursor
		cursor += h.toBlockSize(exhdrSize + h.exheaderExtraSize)
	}

	var logoOffset uint32
	if logoSize := bytesx.ReadU32LE(b.Bytes(), offLogo+4); logoSize != 0 {
		logoOffset = cursor
		b.PutU32LE(offLogo, cursor)
		cursor += logoSize
	}

	var plainOffset uint32
	if plainSize := bytesx.ReadU32LE(b.Bytes(), offPlainRegion+4); plainSize != 0 {
		plainOffset = cursor
		b.PutU32LE(offPlainRegion, cursor)
		cursor += plainSize
	}

	var exefsOffset uint32
	if exefsSize := bytesx.ReadU32LE(b.Bytes(), offExefs+4); exefsSize != 0 {
		exefsOffset = cursor
		b.PutU32LE(offExefs, cursor)
		cursor += exefsSize
	}

	var romfsOffset uint32
	if romfsSize := bytesx.ReadU32LE(b.Bytes(), offRomfs+4); romfsSize != 0 {
		cursor = h.toBlockSize(bytesx.Align32(cursor*h.blockSize(), 0x1000))
		romfsOffset = cursor
		b.PutU32LE(offRomfs, cursor)
		cursor += romfsSize
	}

	b.PutU32LE(offSize, cursor)

	unit := h.blockSize()
	return Layout{
		TotalSize:         cursor * unit,
		ExheaderOffset:    exheaderOffset * unit,
		PlainRegionOffset: plainOffset * unit,
		LogoOffset:        logoOffset * unit,
		ExefsOffset:       exefsOffset * unit,
		RomfsOffset:       romfsOffset * unit,
	}
}

// Build finalizes the layout (if not already done) and signs the header.
// Signing covers only the second half of the header (bytes 0x100..0x200,
// i.e. everything after the signature field itself), matching the
// original's `hashSha256(m_Header.magic, 0x100, hash)`.
func (h *Header) Build(signer *crypto.Signer) (Layout, []byte, error) {
	layout := h.FinaliseLayout()

	signed := h.buf.Bytes()[offMagic:]
	sig, err := signer.SignSha256(signed)
	if err != nil {
		return Layout{}, nil, fmt.Errorf("signing ncch header: %w", err)
	}
	h.buf.PutBytes(0, sig)

	return layout, h.buf.Bytes(), nil
}
