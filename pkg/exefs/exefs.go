// Package exefs packs up to eight named file blobs into the fixed ExeFS
// archive format: a single 0x200-byte header of name/offset/size entries
// and per-entry hashes, followed by 0x200-aligned payloads.
package exefs

import (
	"fmt"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
)

const (
	// HeaderSize is the fixed size of the ExeFS header, and also the
	// length hashed into the NCCH header's exefs_hash field.
	HeaderSize = 0x200
	// MaxEntries is the number of named slots in an ExeFS archive.
	MaxEntries = 8
	// BlockSize is the payload alignment grid.
	BlockSize = 0x200
	nameSize  = 8
	entrySize = 16 // name[8] + offset_u32 + size_u32
	// hashesOff is where the per-entry hash table starts: 8 entries of
	// entrySize bytes (0x80) followed by an 0x80-byte reserved gap, per
	// original_source/src/exefs.h's sExefsHeader.
	hashesOff = 0x100
)

// File is one named payload to be packed into an ExeFS archive.
type File struct {
	Name    string
	Payload []byte
}

// Image is the fully assembled ExeFS archive: header + padded payloads.
type Image struct {
	Bytes      []byte
	HeaderHash [crypto.HashSize]byte // sha256 of Bytes[0:HeaderSize]
}

// Pack lays out files (at most MaxEntries) into an ExeFS image. Per-entry
// hashes are stored in reverse slot order (hashes[7-i] holds entry i's
// hash), and each hash covers exactly the entry's declared size, not its
// block padding.
func Pack(files []File) (*Image, error) {
	if len(files) > MaxEntries {
		return nil, fmt.Errorf("exefs: %d entries exceeds maximum of %d", len(files), MaxEntries)
	}
	for _, f := range files {
		if len(f.Name) > nameSize {
			return nil, fmt.Errorf("exefs: entry name %q exceeds %d characters", f.Name, nameSize)
		}
	}

	header := bytesx.NewWriter(HeaderSize)
	var payload []byte
	hashes := make([][crypto.HashSize]byte, MaxEntries)

	cursor := uint32(0)
	for i, f := range files {
		entryOff := i * entrySize
		header.PutString(entryOff, f.Name, nameSize)
		header.PutU32LE(entryOff+nameSize, cursor)
		header.PutU32LE(entryOff+nameSize+4, uint32(len(f.Payload)))

		hashes[i] = crypto.Sha256(f.Payload)

		padded := bytesx.PadTo(f.Payload, BlockSize)
		payload = append(payload, padded...)
		cursor += uint32(len(padded))
	}

	for i := 0; i < MaxEntries; i++ {
		header.PutBytes(hashesOff+(MaxEntries-1-i)*crypto.HashSize, hashes[i][:])
	}

	full := append(header.Bytes(), payload...)
	headerHash := crypto.Sha256(full[:HeaderSize])

	return &Image{Bytes: full, HeaderHash: headerHash}, nil
}
