// Package merkletree implements a persistent binary Merkle tree over BLAKE3
// chunk outputs, in both a fixed-capacity balanced form and a dynamically
// growing unbalanced form. Both variants store per-chunk [node.Output]
// records at their leaves and aggregate them into parent nodes using the
// same compression primitive [hazmat/compress] uses, with the PARENT flag
// and the unkeyed IV.
//
// The balanced tree's root is bit-compatible with standard BLAKE3 for any
// input whose chunk count is a power of two. The unbalanced tree uses a
// different promotion rule for unpaired nodes: see [UnbalancedTree].
package merkletree

import (
	"errors"
	"io"
	"math/bits"

	"github.com/codahale/b3tree/hazmat/blake3"
	"github.com/codahale/b3tree/hazmat/compress"
	"github.com/codahale/b3tree/hazmat/node"
)

// ErrUnsortedLeaves is returned by BulkInsertLeaves when the given leaf
// indices are not strictly ascending. The tree is left unmodified.
var ErrUnsortedLeaves = errors.New("merkletree: leaf indices are not strictly ascending")

// sentinelOutput is the Output used to fill unoccupied leaf (and padding)
// slots: IV as the chaining value, an all-zero block, no flags.
func sentinelOutput() node.Output {
	return node.Output{
		InputChainingValue: compress.IV,
		BlockLen:           compress.BlockLen,
	}
}

// nextPowerOfTwo returns the smallest power of two ≥ n. n must be positive.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Sum256 returns the 32-byte BLAKE3 digest of b, computed via a balanced
// tree over b's chunks. For inputs whose chunk count is a power of two, this
// equals standard BLAKE3; for all others it falls back to the reference
// streaming hasher, since only the balanced tree's bit-exactness is
// guaranteed.
func Sum256(b []byte) [32]byte {
	chunks := blake3.SplitChunks(b)

	var out [32]byte
	if len(chunks) > 0 && isPowerOfTwo(len(chunks)) {
		tree := NewBalancedTreeFromLeaves(chunks)
		tree.Root().RootOutputBytes(out[:])
		return out
	}

	h := blake3.New()
	_, _ = h.Write(b)
	h.OutputBytes(out[:])
	return out
}

// SumReader returns the 32-byte BLAKE3 digest of everything read from r,
// computed via the streaming reference hasher (it has no fixed-size buffer
// to split into chunks up front).
func SumReader(r io.Reader) ([32]byte, error) {
	h := blake3.New()
	var out [32]byte
	if _, err := io.Copy(h, r); err != nil {
		return out, err
	}
	h.OutputBytes(out[:])
	return out, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
