package merkletree

import (
	"bytes"
	"testing"

	"github.com/codahale/b3tree/hazmat/blake3"
	"github.com/codahale/b3tree/hazmat/compress"
	"github.com/codahale/b3tree/hazmat/node"
	"github.com/codahale/b3tree/internal/testdata"
)

func streamingHash(data []byte) []byte {
	h := blake3.New()
	_, _ = h.Write(data)
	return h.Sum(nil)
}

func treeRootBytes(data []byte) []byte {
	chunks := blake3.SplitChunks(data)
	tree := NewBalancedTreeFromLeaves(chunks)
	out := make([]byte, 32)
	tree.Root().RootOutputBytes(out)
	return out
}

// recomputeChunks returns a fresh Output for each given chunk index, read
// from data post-mutation, in the same order as indices.
func recomputeChunks(data []byte, indices []int) []node.Output {
	outputs := make([]node.Output, len(indices))
	for i, idx := range indices {
		start := idx * 1024
		end := min(start+1024, len(data))
		cs := node.NewChunkState(compress.IV, uint64(idx), 0)
		cs.Update(data[start:end])
		outputs[i] = cs.Output()
	}
	return outputs
}

// S1: a single 1024-byte chunk.
func TestBalancedSingleChunk(t *testing.T) {
	data := testdata.New("S1").Data(1024)
	if got, want := treeRootBytes(data), streamingHash(data); !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

// S2: 4 KiB, 4 chunks (2^2).
func TestBalancedFourChunks(t *testing.T) {
	data := testdata.New("S2").Data(4096)
	if got, want := treeRootBytes(data), streamingHash(data); !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

// S3: 1 MiB, 1024 chunks (2^10).
func TestBalancedOneMiB(t *testing.T) {
	data := testdata.New("S3").Data(1024 * 1024)
	if got, want := treeRootBytes(data), streamingHash(data); !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

// S4: flip a single byte, recompute its chunk, and insert it.
func TestBalancedSingleByteFlipInsertLeaf(t *testing.T) {
	data := testdata.New("S3").Data(1024 * 1024)
	tree := NewBalancedTreeFromLeaves(blake3.SplitChunks(data))

	const flipPos = 500000
	const chunkIdx = flipPos / 1024

	mutated := bytes.Clone(data)
	mutated[flipPos] ^= 0xFF

	newChunk := recomputeChunks(mutated, []int{chunkIdx})[0]
	tree.InsertLeaf(chunkIdx, newChunk)

	out := make([]byte, 32)
	tree.Root().RootOutputBytes(out)

	if want := streamingHash(mutated); !bytes.Equal(out, want) {
		t.Fatalf("got %x, want %x", out, want)
	}
}

// S5 / S6: bulk-inserting several mutated chunks in ascending order matches
// the streaming hash and matches applying InsertLeaf one at a time; the same
// indices in descending order are rejected, leaving the tree untouched.
func TestBalancedBulkInsertAndUnsortedRejection(t *testing.T) {
	data := testdata.New("S5").Data(1024 * 1024)
	drbg := testdata.New("S5 positions")

	chunkSet := make(map[int]struct{})
	mutated := bytes.Clone(data)
	raw := drbg.Data(4 * 500)
	for i := 0; i < 500; i++ {
		p := (int(raw[4*i])<<16 | int(raw[4*i+1])<<8 | int(raw[4*i+2])) % len(data)
		mutated[p] ^= 0xFF
		chunkSet[p/1024] = struct{}{}
	}

	chunkIndices := make([]int, 0, len(chunkSet))
	for c := range chunkSet {
		chunkIndices = append(chunkIndices, c)
	}
	for i := 1; i < len(chunkIndices); i++ {
		for j := i; j > 0 && chunkIndices[j-1] > chunkIndices[j]; j-- {
			chunkIndices[j-1], chunkIndices[j] = chunkIndices[j], chunkIndices[j-1]
		}
	}

	outputs := recomputeChunks(mutated, chunkIndices)

	bulkTree := NewBalancedTreeFromLeaves(blake3.SplitChunks(data))
	if err := bulkTree.BulkInsertLeaves(chunkIndices, outputs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bulkOut := make([]byte, 32)
	bulkTree.Root().RootOutputBytes(bulkOut)

	if want := streamingHash(mutated); !bytes.Equal(bulkOut, want) {
		t.Fatalf("bulk insert: got %x, want %x", bulkOut, want)
	}

	// Property 3: equals applying InsertLeaf one at a time, in ascending order.
	oneAtATimeTree := NewBalancedTreeFromLeaves(blake3.SplitChunks(data))
	for i, idx := range chunkIndices {
		oneAtATimeTree.InsertLeaf(idx, outputs[i])
	}
	oneAtATimeOut := make([]byte, 32)
	oneAtATimeTree.Root().RootOutputBytes(oneAtATimeOut)
	if !bytes.Equal(bulkOut, oneAtATimeOut) {
		t.Fatalf("bulk insert diverged from one-at-a-time InsertLeaf: %x != %x", bulkOut, oneAtATimeOut)
	}

	// S6: reversed (descending) indices must be rejected, atomically.
	rejectTree := NewBalancedTreeFromLeaves(blake3.SplitChunks(data))
	preRoot := rejectTree.Root()

	reversedIndices := make([]int, len(chunkIndices))
	reversedOutputs := make([]node.Output, len(outputs))
	for i := range chunkIndices {
		reversedIndices[i] = chunkIndices[len(chunkIndices)-1-i]
		reversedOutputs[i] = outputs[len(outputs)-1-i]
	}

	if err := rejectTree.BulkInsertLeaves(reversedIndices, reversedOutputs); err != ErrUnsortedLeaves {
		t.Fatalf("expected ErrUnsortedLeaves, got %v", err)
	}

	postRoot := rejectTree.Root()
	if preRoot != postRoot {
		t.Fatal("rejected bulk insert mutated the tree")
	}
}

// Property 5: repeated Root() calls without mutation return identical bytes.
func TestBalancedRootIsDeterministic(t *testing.T) {
	data := testdata.New("determinism").Data(4096)
	tree := NewBalancedTreeFromLeaves(blake3.SplitChunks(data))

	a := make([]byte, 32)
	b := make([]byte, 32)
	tree.Root().RootOutputBytes(a)
	tree.Root().RootOutputBytes(b)

	if !bytes.Equal(a, b) {
		t.Fatalf("Root() is not deterministic: %x != %x", a, b)
	}
}

func TestNewEmptyBalancedTreeRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a non-power-of-two capacity")
		}
	}()
	NewEmptyBalancedTree(3)
}

func TestNewBalancedTreeFromLeavesRejectsEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for zero leaves")
		}
	}()
	NewBalancedTreeFromLeaves(nil)
}
