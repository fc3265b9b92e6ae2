// Package node implements the two kinds of tree node BLAKE3 compresses:
// chunk leaves (via [ChunkState]) and parents (via [ParentOutput]). Both
// produce an [Output], a deferred-finalization record that yields either an
// 8-word chaining value or, with the Root flag, an arbitrary-length output
// stream.
package node

import (
	"github.com/codahale/b3tree/hazmat/compress"
)

// Output captures everything needed to finalize a chunk or parent
// compression, either into a [ChainingValue] or into root output bytes. It is
// immutable and cheap to copy.
type Output struct {
	InputChainingValue compress.ChainingValue
	BlockWords         compress.BlockWords
	Counter            uint64
	BlockLen           uint32
	Flags              compress.Flags
}

// ChainingValue returns the 8-word subtree identity for this Output.
func (o Output) ChainingValue() compress.ChainingValue {
	out := compress.Compress(o.InputChainingValue, o.BlockWords, o.Counter, o.BlockLen, o.Flags)
	var cv compress.ChainingValue
	copy(cv[:], out[:8])
	return cv
}

// RootOutputBytes fills out with root output bytes, recompressing with the
// Root flag set once per 64-byte stride and incrementing only the
// output-block counter (o.Counter itself is never mutated).
func (o Output) RootOutputBytes(out []byte) {
	var blockCounter uint64
	var buf [4]byte
	for len(out) > 0 {
		words := compress.Compress(o.InputChainingValue, o.BlockWords, blockCounter, o.BlockLen, o.Flags|compress.Root)
		for i := 0; i < 16 && len(out) > 0; i++ {
			compress.PutWordLE(buf[:], words[i])
			n := copy(out, buf[:])
			out = out[n:]
		}
		blockCounter++
	}
}

// ParentOutput constructs the Output for a parent node combining left and
// right child chaining values under key (IV for tree-internal compressions).
func ParentOutput(left, right, key compress.ChainingValue, flags compress.Flags) Output {
	var block compress.BlockWords
	copy(block[:8], left[:])
	copy(block[8:], right[:])
	return Output{
		InputChainingValue: key,
		BlockWords:         block,
		Counter:            0,
		BlockLen:           compress.BlockLen,
		Flags:              compress.Parent | flags,
	}
}

// ParentCV returns the chaining value of ParentOutput(left, right, key, flags).
func ParentCV(left, right, key compress.ChainingValue, flags compress.Flags) compress.ChainingValue {
	return ParentOutput(left, right, key, flags).ChainingValue()
}

// ChunkState accumulates up to ChunkLen bytes of a single chunk, compressing
// each full 64-byte block as it fills and exposing the running state as an
// [Output] via Output. Callers must never present more than ChunkLen total
// bytes across the lifetime of one ChunkState.
type ChunkState struct {
	chainingValue    compress.ChainingValue
	chunkCounter     uint64
	block            [compress.BlockLen]byte
	blockLen         int
	blocksCompressed int
	flags            compress.Flags
}

// NewChunkState returns a ChunkState seeded with key (IV for an unkeyed
// hash), at the given chunk index, with base flags (excluding ChunkStart and
// ChunkEnd, which ChunkState manages itself).
func NewChunkState(key compress.ChainingValue, chunkCounter uint64, flags compress.Flags) *ChunkState {
	return &ChunkState{
		chainingValue: key,
		chunkCounter:  chunkCounter,
		flags:         flags,
	}
}

// Len returns the number of bytes absorbed so far.
func (c *ChunkState) Len() int {
	return compress.BlockLen*c.blocksCompressed + c.blockLen
}

// ChunkCounter returns the index of the chunk this state is accumulating.
func (c *ChunkState) ChunkCounter() uint64 {
	return c.chunkCounter
}

// StartFlag returns ChunkStart if no block has yet been compressed, else 0.
func (c *ChunkState) StartFlag() compress.Flags {
	if c.blocksCompressed == 0 {
		return compress.ChunkStart
	}
	return 0
}

// Update absorbs input into the chunk, compressing and chaining every full
// block as it's filled (as long as more input follows it).
func (c *ChunkState) Update(input []byte) {
	for len(input) > 0 {
		if c.blockLen == compress.BlockLen {
			words := compress.BlockWordsFromBytes(&c.block)
			out := compress.Compress(c.chainingValue, words, c.chunkCounter, compress.BlockLen, c.flags|c.StartFlag())
			copy(c.chainingValue[:], out[:8])
			c.blocksCompressed++
			c.block = [compress.BlockLen]byte{}
			c.blockLen = 0
		}

		take := min(compress.BlockLen-c.blockLen, len(input))
		copy(c.block[c.blockLen:], input[:take])
		c.blockLen += take
		input = input[take:]
	}
}

// Output returns the Output for the chunk as it currently stands, with
// ChunkEnd set. It does not mutate the ChunkState.
func (c *ChunkState) Output() Output {
	words := compress.BlockWordsFromBytes(&c.block)
	return Output{
		InputChainingValue: c.chainingValue,
		BlockWords:         words,
		Counter:            c.chunkCounter,
		BlockLen:           uint32(c.blockLen),
		Flags:              c.flags | c.StartFlag() | compress.ChunkEnd,
	}
}
