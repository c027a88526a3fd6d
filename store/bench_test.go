package store

import (
	"context"
	"strconv"
	"testing"

	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
)

func BenchmarkSet(b *testing.B) {
	for _, mode := range modes {
		b.Run(string(mode), func(b *testing.B) {
			s, err := Open(context.Background(), b.TempDir(), WithOptimize(mode))
			if err != nil {
				b.Fatalf("open: %v", err)
			}
			defer s.Close()
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Set(ctx, "key"+strconv.Itoa(i%1000), i, nil); err != nil {
					b.Fatalf("set: %v", err)
				}
			}
		})
	}
}

func BenchmarkGet_Parallel(b *testing.B) {
	s, err := Open(context.Background(), b.TempDir(), WithOptimize(index.ModeCompact), WithCacheMax(512))
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	const keys = 1000
	for i := 0; i < keys; i++ {
		for v := 0; v < 4; v++ {
			if _, err := s.Set(ctx, "key"+strconv.Itoa(i), v, nil); err != nil {
				b.Fatalf("set: %v", err)
			}
		}
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			item, err := s.Get(ctx, "key"+strconv.Itoa(i%keys), storage.ExactSequence(1))
			if err != nil || item == nil {
				b.Errorf("get: %v", err)
				return
			}
			i++
		}
	})
}
