// Package ivfc builds the three-level Merkle hash tree that wraps a RomFS
// image for integrity verification.
package ivfc

import (
	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
)

const (
	// BlockSize is the fixed block granularity for every IVFC level.
	BlockSize = 0x1000
	blockSizeLog2 = 12

	magic        = "IVFC"
	typeRomFS    = 0x10000
	headerStructSize = 0x5C // magic+type+masterHashSize + 3*level(8+8+4+4) + optionalSize + reserved
	levelHeaderSize  = 24   // logicalOffset u64, size u64, blockSizeLog2 u32, reserved[4]
)

// Tree holds the assembled IVFC header and the two derived hash levels
// (L1 over L2 blocks, L0 over L1 blocks). L2 itself (the RomFS image) is
// owned by the caller and is not duplicated here.
type Tree struct {
	Header []byte
	L1     []byte
	L0     []byte

	// UsedHeaderSize is sizeof(header) + masterHashSize, rounded up to 0x10.
	UsedHeaderSize uint32
	// NCCHHashLen is UsedHeaderSize rounded up to 0x200 — the exact byte
	// range of Header that the NCCH header's romfs_hash covers.
	NCCHHashLen uint32
}

// Build wraps l2 (already the full padded-to-0x1000 RomFS image) given its
// true (unpadded) size, producing L1, L0, and the master-hash header.
func Build(l2 []byte, l2TrueSize uint64) *Tree {
	paddedL2 := bytesx.PadTo(l2, BlockSize)

	l1Raw := hashEachBlock(paddedL2)
	l1Size := uint64(len(l1Raw))
	paddedL1 := bytesx.PadTo(l1Raw, BlockSize)

	l0Raw := hashEachBlock(paddedL1)
	l0Size := uint64(len(l0Raw))
	paddedL0 := bytesx.PadTo(l0Raw, BlockSize)

	masterHash := hashEachBlock(paddedL0)
	masterHashSize := uint32(len(masterHash))

	// header slot semantics per spec.md 4.3.3: levels[0]=L2(romfs data),
	// levels[1]=L1(hash of L2), levels[2]=L0(hash of L1); logicalOffset
	// chains from levels[0]=0.
	logicalOffsets := [3]uint64{}
	sizes := [3]uint64{l2TrueSize, l1Size, l0Size}
	logicalOffsets[0] = 0
	for i := 1; i < 3; i++ {
		logicalOffsets[i] = bytesx.Align(logicalOffsets[i-1]+sizes[i-1], BlockSize)
	}

	header := bytesx.NewWriter(headerStructSize)
	header.PutBytes(0, []byte(magic))
	header.PutU32LE(4, typeRomFS)
	header.PutU32LE(8, masterHashSize)
	for i := 0; i < 3; i++ {
		off := 12 + i*levelHeaderSize
		header.PutU64LE(off, logicalOffsets[i])
		header.PutU64LE(off+8, sizes[i])
		header.PutU32LE(off+16, blockSizeLog2)
	}
	header.PutU32LE(12+3*levelHeaderSize, headerStructSize)

	usedHeaderSize := uint32(bytesx.Align(uint64(headerStructSize), 0x10)) + masterHashSize
	usedHeaderSize = uint32(bytesx.Align(uint64(usedHeaderSize), 0x10))

	headerBufSize := bytesx.Align(uint64(bytesx.Align(headerStructSize, 0x10))+uint64(masterHashSize), BlockSize)
	headerBuf := make([]byte, headerBufSize)
	copy(headerBuf, header.Bytes())
	copy(headerBuf[bytesx.Align(headerStructSize, 0x10):], masterHash)

	return &Tree{
		Header:         headerBuf,
		L1:             paddedL1,
		L0:             paddedL0,
		UsedHeaderSize: usedHeaderSize,
		NCCHHashLen:    uint32(bytesx.Align(uint64(usedHeaderSize), 0x200)),
	}
}

// RomFsHash returns the SHA-256 hash the NCCH header embeds for the RomFS
// section, covering exactly t.Header[0:t.NCCHHashLen].
func (t *Tree) RomFsHash() [crypto.HashSize]byte {
	n := int(t.NCCHHashLen)
	if n > len(t.Header) {
		n = len(t.Header)
	}
	return crypto.Sha256(t.Header[:n])
}

func hashEachBlock(buf []byte) []byte {
	nBlocks := len(buf) / BlockSize
	out := make([]byte, 0, nBlocks*crypto.HashSize)
	for i := 0; i < nBlocks; i++ {
		h := crypto.Sha256(buf[i*BlockSize : (i+1)*BlockSize])
		out = append(out, h[:]...)
	}
	return out
}
