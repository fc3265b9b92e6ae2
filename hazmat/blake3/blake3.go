// Package blake3 implements the streaming, incremental-update-capable
// reference hasher that [github.com/codahale/b3tree/merkletree]'s Merkle trees are
// checked against: a [Hasher] that folds chunk chaining values onto a stack
// exactly as BLAKE3's own streaming interface does, plus [SplitChunks], which
// turns a buffer into the sequence of per-chunk [node.Output] records that
// seed a tree's leaves.
package blake3

import (
	"hash"

	"github.com/codahale/b3tree/hazmat/compress"
	"github.com/codahale/b3tree/hazmat/node"
)

// Size is the default output length in bytes.
const Size = 32

// maxStackDepth bounds the subtree-chaining-value stack at 54 entries, enough
// for 2^54 chunks (2^64 bytes, the largest input a uint64 chunk counter can
// address). Absorbing more input than that is a construction error.
const maxStackDepth = 54

// Hasher is an incremental BLAKE3 instance implementing [hash.Hash]. The zero
// Hasher is not usable; construct one with [New], [NewKeyed], or
// [NewDeriveKey].
type Hasher struct {
	chunkState node.ChunkState
	key        compress.ChainingValue
	flags      compress.Flags
	cvStack    [maxStackDepth]compress.ChainingValue
	cvStackLen int
}

var _ hash.Hash = (*Hasher)(nil)

// New returns a Hasher for the unkeyed hash function.
func New() *Hasher {
	return newHasher(compress.IV, 0)
}

// NewKeyed returns a Hasher for the keyed hash function, as used for
// message authentication.
func NewKeyed(key [32]byte) *Hasher {
	return newHasher(compress.WordsFromLEBytes(key[:]), compress.KeyedHash)
}

// NewDeriveKey returns a Hasher for the key-derivation function's second
// stage, keyed on context. Callers absorb key material into the returned
// Hasher and read derived key bytes from its output.
func NewDeriveKey(context string) *Hasher {
	ctxHasher := newHasher(compress.IV, compress.DeriveKeyContext)
	_, _ = ctxHasher.Write([]byte(context))

	var ctxKey [32]byte
	ctxHasher.OutputBytes(ctxKey[:])

	return newHasher(compress.WordsFromLEBytes(ctxKey[:]), compress.DeriveKeyMaterial)
}

func newHasher(key compress.ChainingValue, flags compress.Flags) *Hasher {
	return &Hasher{
		chunkState: *node.NewChunkState(key, 0, flags),
		key:        key,
		flags:      flags,
	}
}

// Write absorbs p into the hash, starting a new chunk each time the current
// one fills. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if h.chunkState.Len() == compress.ChunkLen {
			chunkCV := h.chunkState.Output().ChainingValue()
			totalChunks := h.chunkState.ChunkCounter() + 1
			h.addChunkChainingValue(chunkCV, totalChunks)
			h.chunkState = *node.NewChunkState(h.key, totalChunks, h.flags)
		}

		take := min(compress.ChunkLen-h.chunkState.Len(), len(p))
		h.chunkState.Update(p[:take])
		p = p[take:]
	}
	return n, nil
}

// addChunkChainingValue folds newCV onto the stack, merging it with completed
// subtrees from the top down while totalChunks (the 1-based count of chunks
// absorbed so far) has trailing zero bits.
func (h *Hasher) addChunkChainingValue(newCV compress.ChainingValue, totalChunks uint64) {
	for totalChunks&1 == 0 {
		if h.cvStackLen == 0 {
			panic("blake3: chaining value stack underflow")
		}
		h.cvStackLen--
		newCV = node.ParentCV(h.cvStack[h.cvStackLen], newCV, h.key, h.flags)
		totalChunks >>= 1
	}
	if h.cvStackLen == maxStackDepth {
		panic("blake3: input exceeds 2^54 chunks")
	}
	h.cvStack[h.cvStackLen] = newCV
	h.cvStackLen++
}

// finalOutput folds the chunk state and the chaining-value stack into the
// Output for the whole input, without mutating the Hasher.
func (h *Hasher) finalOutput() node.Output {
	output := h.chunkState.Output()
	for i := h.cvStackLen - 1; i >= 0; i-- {
		output = node.ParentOutput(h.cvStack[i], output.ChainingValue(), h.key, h.flags)
	}
	return output
}

// Sum appends the 32-byte hash to b without changing the underlying state.
func (h *Hasher) Sum(b []byte) []byte {
	var out [Size]byte
	h.finalOutput().RootOutputBytes(out[:])
	return append(b, out[:]...)
}

// OutputBytes fills out with as many root output bytes as it's long, without
// changing the underlying state. Unlike Sum, out may be any length.
func (h *Hasher) OutputBytes(out []byte) {
	h.finalOutput().RootOutputBytes(out)
}

// Reset restores the Hasher to its just-constructed state, retaining its key
// and flags.
func (h *Hasher) Reset() {
	h.chunkState = *node.NewChunkState(h.key, 0, h.flags)
	h.cvStackLen = 0
}

// Size returns the default output size in bytes.
func (h *Hasher) Size() int { return Size }

// BlockSize returns the compression function's block size in bytes.
func (h *Hasher) BlockSize() int { return compress.BlockLen }

// SplitChunks partitions input into the sequence of per-chunk Outputs that
// seed a Merkle tree's leaves, one per ChunkLen-byte (or shorter, for a
// final partial chunk) span. An empty input yields an empty sequence.
func SplitChunks(input []byte) []node.Output {
	if len(input) == 0 {
		return nil
	}

	var outputs []node.Output
	cs := node.NewChunkState(compress.IV, 0, 0)

	for len(input) > 0 {
		if cs.Len() == compress.ChunkLen {
			outputs = append(outputs, cs.Output())
			cs = node.NewChunkState(compress.IV, cs.ChunkCounter()+1, 0)
		}

		take := min(compress.ChunkLen-cs.Len(), len(input))
		cs.Update(input[:take])
		input = input[take:]
	}
	outputs = append(outputs, cs.Output())

	return outputs
}
