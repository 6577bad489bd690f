package ivfc

import (
	"testing"

	"github.com/jakcron/cxitool/internal/bytesx"
	"github.com/jakcron/cxitool/internal/crypto"
	"github.com/stretchr/testify/require"
)

func TestBuildSmallL2(t *testing.T) {
	raw := make([]byte, 11)
	copy(raw, "hello world")
	l2 := bytesx.PadTo(raw, BlockSize)

	tree := Build(l2, uint64(len(raw)))
	require.Equal(t, "IVFC", string(tree.Header[:4]))
	require.Len(t, tree.L1, BlockSize) // one block of L2 -> 32 bytes -> padded to 0x1000
	require.Len(t, tree.L0, BlockSize)

	// L1 must equal sha256 of the single L2 block.
	wantL1 := crypto.Sha256(l2[:BlockSize])
	require.Equal(t, wantL1[:], tree.L1[:crypto.HashSize])

	wantL0 := crypto.Sha256(tree.L1[:BlockSize])
	require.Equal(t, wantL0[:], tree.L0[:crypto.HashSize])

	hash := tree.RomFsHash()
	require.Len(t, hash, crypto.HashSize)
}

func TestLogicalOffsetChaining(t *testing.T) {
	raw := make([]byte, 0x1001) // spans 2 blocks
	l2 := bytesx.PadTo(raw, BlockSize)
	tree := Build(l2, uint64(len(raw)))

	level1LogicalOffset := bytesx.ReadU64LE(tree.Header, 12+24)
	require.Equal(t, uint64(0x2000), level1LogicalOffset) // align(0+0x1001, 0x1000)
}
