package merkletree

import (
	"github.com/codahale/b3tree/hazmat/compress"
	"github.com/codahale/b3tree/hazmat/node"
)

// BalancedTree is a dense, 1-indexed array-backed Merkle tree over a
// power-of-two number of leaf slots. Index 0 is unused padding; index 1 is
// the root; for any internal index i, children live at 2i and 2i+1; leaves
// occupy [capacity, 2*capacity).
//
// A BalancedTree's capacity is fixed at construction.
// NewBalancedTreeFromLeaves places the supplied leaves in the last
// len(leaves) leaf slots; the leaf slots before them hold a sentinel Output,
// so NumLeaves() always
// reports the tree's full leaf capacity, not the count of leaves a caller
// has actually populated.
type BalancedTree struct {
	storage  []node.Output
	capacity int
}

// NewEmptyBalancedTree returns a BalancedTree of the given leaf capacity,
// entirely filled with sentinel leaves. capacity must be a power of two;
// violating that is a construction error and panics.
func NewEmptyBalancedTree(capacity int) *BalancedTree {
	if capacity <= 0 || !isPowerOfTwo(capacity) {
		panic("merkletree: capacity must be a power of two")
	}

	storage := make([]node.Output, 2*capacity)
	sentinel := sentinelOutput()
	for i := range storage {
		storage[i] = sentinel
	}

	return &BalancedTree{storage: storage, capacity: capacity}
}

// NewBalancedTreeFromLeaves builds a BalancedTree over leaves, sized to the
// next power of two of len(leaves). leaves must be non-empty; an empty slice
// is a construction error and panics.
func NewBalancedTreeFromLeaves(leaves []node.Output) *BalancedTree {
	if len(leaves) == 0 {
		panic("merkletree: a balanced tree needs at least one leaf")
	}

	t := NewEmptyBalancedTree(nextPowerOfTwo(len(leaves)))

	leafStart := 2*t.capacity - len(leaves)
	copy(t.storage[leafStart:2*t.capacity], leaves)

	type queued struct {
		index  int
		output node.Output
	}
	queue := make([]queued, 0, t.capacity)
	for i := t.capacity; i < 2*t.capacity; i++ {
		queue = append(queue, queued{index: i, output: t.storage[i]})
	}

	for len(queue) > 1 {
		left, right := queue[0], queue[1]
		queue = queue[2:]

		parentIndex := left.index / 2
		parent := node.ParentOutput(left.output.ChainingValue(), right.output.ChainingValue(), compress.IV, 0)
		t.storage[parentIndex] = parent

		queue = append(queue, queued{index: parentIndex, output: parent})
	}

	return t
}

// Root returns the tree's root Output, with the ROOT flag set. The returned
// value is a copy; mutating it has no effect on the tree.
func (t *BalancedTree) Root() node.Output {
	root := t.storage[1]
	root.Flags |= compress.Root
	return root
}

// NumLeaves returns the tree's leaf capacity.
func (t *BalancedTree) NumLeaves() int { return t.capacity }

// Len returns the total number of storage slots in use, 2*NumLeaves()-1.
func (t *BalancedTree) Len() int { return 2*t.capacity - 1 }

// InsertLeaf replaces the leaf at leafIndex and recomputes every ancestor on
// its path to the root.
func (t *BalancedTree) InsertLeaf(leafIndex int, newOutput node.Output) {
	p := leafIndex + t.capacity
	t.storage[p] = newOutput

	for p > 1 {
		sibling := p ^ 1
		left, right := p, sibling
		if p%2 != 0 {
			left, right = sibling, p
		}

		parentIndex := p / 2
		t.storage[parentIndex] = node.ParentOutput(t.storage[left].ChainingValue(), t.storage[right].ChainingValue(), compress.IV, 0)
		p = parentIndex
	}
}

// BulkInsertLeaves replaces the leaves at indices (which must be strictly
// ascending) with outputs, then recomputes every affected ancestor exactly
// once, deduplicating siblings that both changed. If indices is not strictly
// ascending, it returns ErrUnsortedLeaves and leaves the tree unmodified —
// ordering is validated before anything is written.
func (t *BalancedTree) BulkInsertLeaves(indices []int, outputs []node.Output) error {
	if len(indices) != len(outputs) {
		panic("merkletree: indices and outputs must be the same length")
	}

	offsets := make([]int, len(indices))
	for i, idx := range indices {
		offsets[i] = idx + t.capacity
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return ErrUnsortedLeaves
		}
	}

	for i, off := range offsets {
		t.storage[off] = outputs[i]
	}

	queue := offsets
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == 1 {
			continue
		}

		sibling := cur ^ 1
		if len(queue) > 0 && queue[0] == sibling {
			queue = queue[1:]
		}

		left, right := cur, sibling
		if cur%2 != 0 {
			left, right = sibling, cur
		}

		parentIndex := cur / 2
		t.storage[parentIndex] = node.ParentOutput(t.storage[left].ChainingValue(), t.storage[right].ChainingValue(), compress.IV, 0)
		queue = append(queue, parentIndex)
	}

	return nil
}
