// Package compress implements the BLAKE3 compression function: seven rounds
// of a ChaCha-style mixing permutation over a 16-word state, seeded from an
// 8-word chaining value and a 16-word message block.
//
// It is a pure, stateless primitive with no notion of chunks, parents, or
// trees — those live in [github.com/codahale/b3tree/hazmat/node] and
// [github.com/codahale/b3tree/hazmat/blake3]. Compress has no SIMD or
// multi-lane variant; BLAKE3's block-parallelism is out of scope here.
package compress

import "math/bits"

const (
	// ChunkLen is the number of bytes in a chunk, the tree's leaf unit.
	ChunkLen = 1024

	// BlockLen is the number of bytes in a block, the compression function's
	// input unit. A chunk is composed of up to ChunkLen/BlockLen blocks.
	BlockLen = 64
)

// Flags is a bitmask of compression domain-separation flags.
type Flags uint32

// Flag bits, fixed to match BLAKE3 bit-for-bit.
const (
	ChunkStart        Flags = 1 << 0
	ChunkEnd          Flags = 1 << 1
	Parent            Flags = 1 << 2
	Root              Flags = 1 << 3
	KeyedHash         Flags = 1 << 4
	DeriveKeyContext  Flags = 1 << 5
	DeriveKeyMaterial Flags = 1 << 6
)

// ChainingValue is the 8-word subtree identity carried between compressions.
type ChainingValue [8]uint32

// BlockWords is a 64-byte block reinterpreted as 16 little-endian words.
type BlockWords [16]uint32

// IV is BLAKE3's fixed initial chaining value.
var IV = ChainingValue{
	0x6A09E667, 0xBB67AE85, 0x3C6EF372, 0xA54FF53A,
	0x510E527F, 0x9B05688C, 0x1F83D9AB, 0x5BE0CD19,
}

// msgPermutation is the fixed message-word schedule applied between rounds.
var msgPermutation = [16]int{2, 6, 3, 10, 7, 0, 4, 13, 1, 11, 12, 5, 9, 14, 15, 8}

// Compress runs the seven-round BLAKE3 mixing function over cv, block,
// counter, blockLen, and flags, returning the full 16-word output. Callers
// take either the first 8 words (a chaining value) or recompress with Root
// set to derive output bytes; see the node package.
func Compress(cv ChainingValue, block BlockWords, counter uint64, blockLen uint32, flags Flags) [16]uint32 {
	state := [16]uint32{
		cv[0], cv[1], cv[2], cv[3],
		cv[4], cv[5], cv[6], cv[7],
		IV[0], IV[1], IV[2], IV[3],
		uint32(counter), uint32(counter >> 32), blockLen, uint32(flags),
	}
	m := block

	for r := 0; r < 7; r++ {
		round(&state, &m)
		if r < 6 {
			permute(&m)
		}
	}

	for i := 0; i < 8; i++ {
		state[i] ^= state[i+8]
		state[i+8] ^= cv[i]
	}
	return state
}

func permute(m *BlockWords) {
	var out BlockWords
	for i, src := range msgPermutation {
		out[i] = m[src]
	}
	*m = out
}

func round(state *[16]uint32, m *BlockWords) {
	// Mix the columns.
	g(state, 0, 4, 8, 12, m[0], m[1])
	g(state, 1, 5, 9, 13, m[2], m[3])
	g(state, 2, 6, 10, 14, m[4], m[5])
	g(state, 3, 7, 11, 15, m[6], m[7])
	// Mix the diagonals.
	g(state, 0, 5, 10, 15, m[8], m[9])
	g(state, 1, 6, 11, 12, m[10], m[11])
	g(state, 2, 7, 8, 13, m[12], m[13])
	g(state, 3, 4, 9, 14, m[14], m[15])
}

func g(state *[16]uint32, a, b, c, d int, mx, my uint32) {
	state[a] += state[b] + mx
	state[d] = bits.RotateLeft32(state[d]^state[a], -16)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -12)
	state[a] += state[b] + my
	state[d] = bits.RotateLeft32(state[d]^state[a], -8)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -7)
}

// BlockWordsFromBytes reinterprets a (zero-padded, if short) 64-byte block as
// 16 little-endian words.
func BlockWordsFromBytes(block *[BlockLen]byte) BlockWords {
	var m BlockWords
	for i := range m {
		m[i] = uint32(block[4*i]) | uint32(block[4*i+1])<<8 | uint32(block[4*i+2])<<16 | uint32(block[4*i+3])<<24
	}
	return m
}

// WordsFromLEBytes reads key material (exactly 8 little-endian words) from a
// 32-byte slice, as used for keyed-hash and derive-key constructions.
func WordsFromLEBytes(b []byte) ChainingValue {
	var cv ChainingValue
	for i := range cv {
		cv[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return cv
}

// PutWordLE writes w into dst as little-endian bytes, truncating if dst is
// shorter than 4 bytes (used by Output.RootOutputBytes for unaligned output
// lengths).
func PutWordLE(dst []byte, w uint32) {
	var buf [4]byte
	buf[0] = byte(w)
	buf[1] = byte(w >> 8)
	buf[2] = byte(w >> 16)
	buf[3] = byte(w >> 24)
	copy(dst, buf[:])
}
