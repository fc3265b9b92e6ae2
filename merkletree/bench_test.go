package merkletree

import (
	"testing"

	"github.com/codahale/b3tree/hazmat/blake3"
	"github.com/codahale/b3tree/internal/testdata"
)

func BenchmarkSum256(b *testing.B) {
	for _, size := range testdata.Sizes {
		b.Run(size.Name, func(b *testing.B) {
			msg := testdata.New("bench sum256").Data(size.N)
			b.SetBytes(int64(size.N))
			b.ReportAllocs()
			for b.Loop() {
				Sum256(msg)
			}
		})
	}
}

func BenchmarkBalancedTreeConstruction(b *testing.B) {
	for _, size := range testdata.Sizes {
		if size.N < 1024 {
			continue
		}
		b.Run(size.Name, func(b *testing.B) {
			msg := testdata.New("bench construct").Data(size.N)
			chunks := blake3.SplitChunks(msg)
			b.SetBytes(int64(size.N))
			b.ReportAllocs()
			for b.Loop() {
				NewBalancedTreeFromLeaves(chunks)
			}
		})
	}
}

func BenchmarkInsertLeaf(b *testing.B) {
	msg := testdata.New("bench insert").Data(1024 * 1024)
	chunks := blake3.SplitChunks(msg)
	tree := NewBalancedTreeFromLeaves(chunks)
	newLeaf := chunks[0]

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		tree.InsertLeaf(i%tree.NumLeaves(), newLeaf)
	}
}
