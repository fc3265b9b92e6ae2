package merkletree

import (
	"math/bits"

	"github.com/codahale/b3tree/hazmat/compress"
	"github.com/codahale/b3tree/hazmat/node"
)

// UnbalancedTree is a Merkle tree over a true, possibly non-power-of-two
// leaf count, backed by the same dense array layout as [BalancedTree] but
// tracking how many of its leaf slots actually hold caller-supplied data.
//
// Where a left child has no live right sibling, UnbalancedTree promotes the
// left child's Output unchanged into the parent slot, rather than promoting
// just its chaining value as standard BLAKE3 does. A promoted Output is only
// ever consumed through its chaining value by a higher parent, so a tree built
// by NewUnbalancedTreeFromLeaves over
// [github.com/codahale/b3tree/hazmat/blake3.SplitChunks] output (or extended
// one leaf at a time with InsertLeaf) still has the standard BLAKE3 root.
// After an InsertLeaf or BulkInsertLeaves that leaves a gap of unfilled leaf
// slots, those slots hold sentinel Outputs and the root is not the BLAKE3
// hash of any input.
type UnbalancedTree struct {
	storage      []node.Output
	capacity     int
	actualLeaves int
}

// NewUnbalancedTreeFromLeaves builds an UnbalancedTree over leaves, sized to
// the next power of two of len(leaves). leaves must be non-empty.
func NewUnbalancedTreeFromLeaves(leaves []node.Output) *UnbalancedTree {
	if len(leaves) == 0 {
		panic("merkletree: an unbalanced tree needs at least one leaf")
	}

	capacity := nextPowerOfTwo(len(leaves))
	storage := make([]node.Output, 2*capacity)
	sentinel := sentinelOutput()
	for i := range storage {
		storage[i] = sentinel
	}

	t := &UnbalancedTree{storage: storage, capacity: capacity, actualLeaves: len(leaves)}
	copy(t.storage[capacity:capacity+len(leaves)], leaves)
	t.rebuildInternal()

	return t
}

// NumLeaves returns the true number of leaves a caller has populated, which
// may not be a power of two.
func (t *UnbalancedTree) NumLeaves() int { return t.actualLeaves }

// Root returns the tree's root Output, with the ROOT flag set.
func (t *UnbalancedTree) Root() node.Output {
	root := t.storage[1]
	root.Flags |= compress.Root
	return root
}

// isLive reports whether physical index p's subtree contains at least one
// actual (caller-supplied) leaf, generalizing the leaf-level "right <
// actual_leaves" test to every level of the tree.
func (t *UnbalancedTree) isLive(p int) bool {
	depth := bits.Len(uint(p)) - 1
	subtreeSize := t.capacity >> depth
	firstLeaf := (p - (1 << depth)) * subtreeSize
	return firstLeaf < t.actualLeaves
}

// rebuildInternal recomputes every internal node from the current leaf
// level and actualLeaves count, level by level, bottom-up.
func (t *UnbalancedTree) rebuildInternal() {
	levelStart := t.capacity
	liveCount := t.actualLeaves

	for levelStart > 1 {
		parentStart := levelStart / 2
		parentCount := (liveCount + 1) / 2

		for i := 0; i < parentCount; i++ {
			leftIdx := levelStart + 2*i
			rightIdx := leftIdx + 1
			parentIdx := parentStart + i

			if 2*i+1 >= liveCount {
				t.storage[parentIdx] = t.storage[leftIdx]
			} else {
				t.storage[parentIdx] = node.ParentOutput(t.storage[leftIdx].ChainingValue(), t.storage[rightIdx].ChainingValue(), compress.IV, 0)
			}
		}

		levelStart = parentStart
		liveCount = parentCount
	}
}

// growTo reallocates storage for a larger capacity, relocating the existing
// live leaves to their new physical positions and rebuilding every internal
// node from them. The caller is responsible for updating actualLeaves.
func (t *UnbalancedTree) growTo(newCapacity int) {
	newStorage := make([]node.Output, 2*newCapacity)
	sentinel := sentinelOutput()
	for i := range newStorage {
		newStorage[i] = sentinel
	}

	for i := 0; i < t.actualLeaves; i++ {
		newStorage[newCapacity+i] = t.storage[t.capacity+i]
	}

	t.storage = newStorage
	t.capacity = newCapacity
	t.rebuildInternal()
}

// InsertLeaf writes out at logical leaf index i, growing the tree to the
// next power-of-two capacity covering i+1 leaves if i is beyond the current
// leaf count, then recomputes every ancestor on i's path to the root.
func (t *UnbalancedTree) InsertLeaf(i int, out node.Output) {
	if i+1 > t.actualLeaves {
		newActual := i + 1
		if newCapacity := nextPowerOfTwo(newActual); newCapacity > t.capacity {
			t.growTo(newCapacity)
		}
		t.actualLeaves = newActual
	}

	p := t.capacity + i
	t.storage[p] = out

	for p > 1 {
		sibling := p ^ 1
		left, right := p, sibling
		if p%2 != 0 {
			left, right = sibling, p
		}

		parentIndex := p / 2
		if t.isLive(right) {
			t.storage[parentIndex] = node.ParentOutput(t.storage[left].ChainingValue(), t.storage[right].ChainingValue(), compress.IV, 0)
		} else {
			t.storage[parentIndex] = t.storage[left]
		}
		p = parentIndex
	}
}

// BulkInsertLeaves mirrors BalancedTree.BulkInsertLeaves, but applies the
// same promote-left-unchanged rule as InsertLeaf and grows the tree first if
// indices reach beyond the current leaf count. Indices must be strictly
// ascending; ordering is validated before anything is written or grown.
func (t *UnbalancedTree) BulkInsertLeaves(indices []int, outputs []node.Output) error {
	if len(indices) != len(outputs) {
		panic("merkletree: indices and outputs must be the same length")
	}
	if len(indices) == 0 {
		return nil
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return ErrUnsortedLeaves
		}
	}

	if newActual := indices[len(indices)-1] + 1; newActual > t.actualLeaves {
		if newCapacity := nextPowerOfTwo(newActual); newCapacity > t.capacity {
			t.growTo(newCapacity)
		}
		t.actualLeaves = newActual
	}

	offsets := make([]int, len(indices))
	for i, idx := range indices {
		offsets[i] = t.capacity + idx
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
		if t.isLive(right) {
			t.storage[parentIndex] = node.ParentOutput(t.storage[left].ChainingValue(), t.storage[right].ChainingValue(), compress.IV, 0)
		} else {
			t.storage[parentIndex] = t.storage[left]
		}
		queue = append(queue, parentIndex)
	}

	return nil
}
