package blake3

import (
	"testing"

	"github.com/codahale/b3tree/internal/testdata"
)

func BenchmarkWrite(b *testing.B) {
	for _, size := range testdata.Sizes {
		b.Run(size.Name, func(b *testing.B) {
			msg := testdata.New("bench write").Data(size.N)
			out := make([]byte, Size)
			b.SetBytes(int64(size.N))
			b.ReportAllocs()
			for b.Loop() {
				h := New()
				_, _ = h.Write(msg)
				h.OutputBytes(out)
			}
		})
	}
}

func BenchmarkSplitChunks(b *testing.B) {
	for _, size := range testdata.Sizes {
		b.Run(size.Name, func(b *testing.B) {
			msg := testdata.New("bench split").Data(size.N)
			b.SetBytes(int64(size.N))
			b.ReportAllocs()
			for b.Loop() {
				SplitChunks(msg)
			}
		})
	}
}
