// Package romfs builds the hash-bucketed directory/file table image (RomFS)
// consumed by the IVFC hash-tree wrapper.
package romfs

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/pkg/romfs/scan"
)

const (
	emptyOffset = 0xFFFFFFFF

	headerStructSize = 0x28
	dirEntrySize     = 24 // parent,sibling,child,file,hash,nameSize (6 x u32)
	fileEntrySize    = 32 // parent,sibling u32 x2, dataOffset,dataSize u64 x2, hash,nameSize u32 x2

	sectionDirHash  = 0
	sectionDirTable = 1
	sectionFileHash = 2
	sectionFileTable = 3
	numSections     = 4

	dataAlign = 0x10
)

// Image is the fully laid-out RomFS level-2 buffer (the "L2" input to IVFC).
type Image struct {
	Bytes []byte
	// TrueSize is the length before padding to the IVFC block size.
	TrueSize uint64
}

// bucketSize reproduces the original's "smallest prime-like value >= n"
// approximation exactly (spec.md 4.3.2); the minimum-3 floor makes the
// bucket_count==2 infinite-loop bug in the original chain-seeding routine
// unreachable, so that bug is not replicated here (see DESIGN.md).
func bucketSize(n uint32) uint32 {
	count := n
	switch {
	case count < 3:
		count = 3
	case count < 19:
		count |= 1
	default:
		for divisibleBySmallPrime(count) {
			count++
		}
	}
	return count
}

func divisibleBySmallPrime(v uint32) bool {
	for _, p := range [...]uint32{2, 3, 5, 7, 11, 13, 17} {
		if v%p == 0 {
			return true
		}
	}
	return false
}

// calcHash is the name-indexed bucket hash from spec.md 4.3.2.
func calcHash(parent uint32, name []uint16, bucketCount uint32) uint32 {
	h := parent ^ 123456789
	for _, c := range name {
		h = bytesx.Ror32(h, 5)
		h ^= uint32(c)
	}
	return h % bucketCount
}

type builder struct {
	dirHashTable  []uint32
	fileHashTable []uint32
	dirTable      []byte
	fileTable     []byte
	data          []byte
}

// Build constructs the RomFS level-2 image from a scanned directory tree.
// Per the original's own semantics, a directory tree with zero subdirectories
// and zero files produces no image at all (nil, nil) — callers should treat
// that as "no RomFS" rather than an empty-but-present filesystem.
func Build(root *scan.Dir) (*Image, error) {
	totalDirs := scan.DirCount(root)
	totalFiles := scan.FileCount(root)
	if totalDirs == 0 && totalFiles == 0 {
		return nil, nil
	}

	b := &builder{
		dirHashTable:  newFilledTable(bucketSize(totalDirs + 1)),
		fileHashTable: newFilledTable(bucketSize(totalFiles)),
	}

	rootOff, err := b.addDir(root, 0, emptyOffset)
	if err != nil {
		return nil, err
	}
	if err := b.addChildren(root, rootOff, rootOff); err != nil {
		return nil, err
	}

	dirHashBytes := encodeU32Table(b.dirHashTable)
	fileHashBytes := encodeU32Table(b.fileHashTable)

	prefix := headerStructSize + len(dirHashBytes) + len(b.dirTable) + len(fileHashBytes) + len(b.fileTable)
	prefixAligned := int(bytesx.Align(uint64(prefix), dataAlign))

	out := make([]byte, prefixAligned+len(b.data))
	header := bytesx.NewWriter(headerStructSize)
	header.PutU32LE(0, headerStructSize)

	offsets := [numSections]uint32{}
	sizes := [numSections]uint32{uint32(len(dirHashBytes)), uint32(len(b.dirTable)), uint32(len(fileHashBytes)), uint32(len(b.fileTable))}
	cursor := uint32(headerStructSize)
	for i := 0; i < numSections; i++ {
		offsets[i] = cursor
		cursor += sizes[i]
	}
	for i := 0; i < numSections; i++ {
		header.PutU32LE(4+i*8, offsets[i])
		header.PutU32LE(4+i*8+4, sizes[i])
	}
	header.PutU32LE(4+numSections*8, uint32(prefixAligned))

	copy(out, header.Bytes())
	copy(out[offsets[sectionDirHash]:], dirHashBytes)
	copy(out[offsets[sectionDirTable]:], b.dirTable)
	copy(out[offsets[sectionFileHash]:], fileHashBytes)
	copy(out[offsets[sectionFileTable]:], b.fileTable)
	copy(out[prefixAligned:], b.data)

	return &Image{Bytes: out, TrueSize: uint64(len(out))}, nil
}

func newFilledTable(n uint32) []uint32 {
	t := make([]uint32, n)
	for i := range t {
		t[i] = emptyOffset
	}
	return t
}

func encodeU32Table(t []uint32) []byte {
	out := make([]byte, len(t)*4)
	for i, v := range t {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// addDir appends dir's own directory-table entry (child/file offsets left
// empty, patched later by addChildren) and returns its byte offset.
func (b *builder) addDir(dir *scan.Dir, parent, sibling uint32) (uint32, error) {
	off := uint32(len(b.dirTable))

	entry := bytesx.NewWriter(dirEntrySize + int(bytesx.Align32(dir.NameSize, 4)))
	entry.PutU32LE(0, parent)
	entry.PutU32LE(4, sibling)
	entry.PutU32LE(8, emptyOffset) // child, patched later
	entry.PutU32LE(12, emptyOffset) // file, patched later

	hash := calcHash(parent, dir.Name, uint32(len(b.dirHashTable)))
	entry.PutU32LE(16, b.dirHashTable[hash])
	b.dirHashTable[hash] = off

	entry.PutU32LE(20, dir.NameSize)
	putUTF16Name(entry, dirEntrySize, dir.Name)

	b.dirTable = append(b.dirTable, entry.Bytes()...)
	return off, nil
}

// addChildren appends dir's files then its child directories (depth-first),
// patching dir's own childOffset/fileOffset fields at diroff in place.
func (b *builder) addChildren(dir *scan.Dir, parent, diroff uint32) error {
	if len(dir.Files) > 0 {
		fileOff := uint32(len(b.fileTable))
		patchU32(b.dirTable, int(diroff)+12, fileOff)
		for i, f := range dir.Files {
			sibling := uint32(emptyOffset)
			if i != len(dir.Files)-1 {
				sibling = uint32(len(b.fileTable)) + fileEntrySize + bytesx.Align32(f.NameSize, 4)
			}
			if err := b.addFile(f, diroff, sibling); err != nil {
				return err
			}
		}
	}

	if len(dir.Children) > 0 {
		childOff := uint32(len(b.dirTable))
		patchU32(b.dirTable, int(diroff)+8, childOff)

		childOffsets := make([]uint32, len(dir.Children))
		for i, c := range dir.Children {
			sibling := uint32(emptyOffset)
			if i != len(dir.Children)-1 {
				sibling = uint32(len(b.dirTable)) + dirEntrySize + bytesx.Align32(c.NameSize, 4)
			}
			off, err := b.addDir(c, diroff, sibling)
			if err != nil {
				return err
			}
			childOffsets[i] = off
		}
		for i, c := range dir.Children {
			if err := b.addChildren(c, diroff, childOffsets[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *builder) addFile(f *scan.File, parent, sibling uint32) error {
	entry := bytesx.NewWriter(fileEntrySize + int(bytesx.Align32(f.NameSize, 4)))
	entry.PutU32LE(0, parent)
	entry.PutU32LE(4, sibling)

	var dataOff uint64
	if f.Size > 0 {
		dataOff = bytesx.Align(uint64(len(b.data)), dataAlign)
		content, err := os.ReadFile(f.HostPath)
		if err != nil {
			return fmt.Errorf("failed to open file for romfs: %s: %w", f.HostPath, err)
		}
		if uint64(len(content)) != f.Size {
			return fmt.Errorf("file %s changed size since scan (was %d, now %d)", f.HostPath, f.Size, len(content))
		}
		padded := make([]byte, dataOff-uint64(len(b.data)))
		b.data = append(b.data, padded...)
		b.data = append(b.data, content...)
	}
	entry.PutU64LE(8, dataOff)
	entry.PutU64LE(16, f.Size)

	hash := calcHash(parent, f.Name, uint32(len(b.fileHashTable)))
	entry.PutU32LE(24, b.fileHashTable[hash])
	b.fileHashTable[hash] = uint32(len(b.fileTable))

	entry.PutU32LE(28, f.NameSize)
	putUTF16Name(entry, fileEntrySize, f.Name)

	b.fileTable = append(b.fileTable, entry.Bytes()...)
	return nil
}

func putUTF16Name(w *bytesx.Writer, off int, name []uint16) {
	for i, c := range name {
		w.PutU16LE(off+i*2, c)
	}
}

func patchU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}
