package ncch

import (
	"fmt"

	"github.com/jakcron/cxitool/internal/bytesx"
)

// Section describes one section's absolute byte offset and size, as read
// back from a built header.
type Section struct {
	Offset uint32
	Size   uint32
}

// Info is a read-only, display-oriented view over an on-disk NCCH header,
// used by the layout diagnostic command. It is deliberately a plain struct
// rather than a Header — nothing here round-trips back into a build.
type Info struct {
	TitleID       uint64
	ProgramID     uint64
	MakerCode     string
	ProductCode   string
	FormatVersion uint16
	ContentType   ContentType
	FormType      FormType
	Platform      Platform
	BlockSize     uint32
	OtherFlag     uint8
	TotalSize     uint32

	Exheader    Section
	PlainRegion Section
	Logo        Section
	Exefs       Section
	Romfs       Section
}

// ParseHeader reads the fixed 0x200-byte NCCH header out of a built
// container's first bytes. It does not validate the signature or walk any
// section contents — it only decodes the fields FinaliseLayout/the setters
// wrote, the read-side mirror of ncchheader.cpp's getters.
func ParseHeader(data []byte) (*Info, error) {
	if len(data) < Size {
		return nil, fmt.Errorf("truncated ncch header: got %d bytes, want at least %d", len(data), Size)
	}
	if string(data[offMagic:offMagic+4]) != "NCCH" {
		return nil, fmt.Errorf("bad magic %q, want \"NCCH\"", data[offMagic:offMagic+4])
	}

	blockSize := uint32(1) << (uint32(data[offBlockSize]) + 9)
	toBytes := func(mediaUnits uint32) uint32 { return mediaUnits * blockSize }

	section := func(geomOff int) Section {
		return Section{
			Offset: toBytes(bytesx.ReadU32LE(data, geomOff)),
			Size:   toBytes(bytesx.ReadU32LE(data, geomOff+4)),
		}
	}

	contentTypeByte := data[offContentType]

	exhdrSize := bytesx.ReadU32LE(data, offExhdrSize)
	var exhdrOffset uint32
	if exhdrSize != 0 {
		// The exheader always immediately follows the fixed-size header;
		// unlike every other section it has no offset field of its own
		// (ncchheader.cpp's getExheaderOffset returns a literal constant).
		exhdrOffset = Size
	}

	return &Info{
		TitleID:       bytesx.ReadU64LE(data, offTitleID),
		ProgramID:     bytesx.ReadU64LE(data, offProgramID),
		MakerCode:     trimNul(data[offMakerCode : offMakerCode+2]),
		ProductCode:   trimNul(data[offProductCode : offProductCode+0x10]),
		FormatVersion: uint16(data[offFormatVer]) | uint16(data[offFormatVer+1])<<8,
		ContentType:   ContentType(contentTypeByte >> 2),
		FormType:      FormType(contentTypeByte & 3),
		Platform:      Platform(data[offPlatform]),
		BlockSize:     blockSize,
		OtherFlag:     data[offOtherFlag],
		TotalSize:     toBytes(bytesx.ReadU32LE(data, offSize)),

		Exheader:    Section{Offset: exhdrOffset, Size: exhdrSize},
		PlainRegion: section(offPlainRegion),
		Logo:        section(offLogo),
		Exefs:       section(offExefs),
		Romfs:       section(offRomfs),
	}, nil
}

func trimNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
