package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		n, k  int
		sizes []int
	}{
		{"even", 8, 4, []int{2, 2, 2, 2}},
		{"remainder goes first", 10, 4, []int{3, 3, 2, 2}},
		{"more workers than records", 3, 8, []int{1, 1, 1}},
		{"single worker", 5, 1, []int{5}},
		{"zero workers", 5, 0, []int{5}},
		{"no records", 0, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shards := Split(tt.n, tt.k)
			var sizes []int
			next := 0
			for i, s := range shards {
				assert.Equal(t, i, s.ID)
				assert.Equal(t, next, s.Start, "shards must be contiguous")
				next = s.End
				sizes = append(sizes, s.Len())
			}
			assert.Equal(t, tt.sizes, sizes)
			if tt.n > 0 {
				assert.Equal(t, tt.n, next, "shards must cover every record")
			}
		})
	}
}

func double(_ context.Context, s Shard) ([]int, error) {
	out := make([]int, 0, s.Len())
	for i := s.Start; i < s.End; i++ {
		out = append(out, i*2)
	}
	return out, nil
}

func TestRunParallelPreservesOrder(t *testing.T) {
	const n = 103
	want, err := RunParallel(context.Background(), n, ParallelConfig{NumWorkers: 1}, double)
	require.NoError(t, err)
	require.Len(t, want, n)

	for _, k := range []int{2, 4, 8, 200} {
		got, err := RunParallel(context.Background(), n, ParallelConfig{NumWorkers: k, Logger: zaptest.NewLogger(t)}, double)
		require.NoError(t, err)
		assert.Equal(t, want, got, "num workers %d", k)
	}
}

func TestRunParallelSingleWorkerUsesOneShard(t *testing.T) {
	var shards []Shard
	_, err := RunParallel(context.Background(), 10, ParallelConfig{
		NumWorkers:  1,
		OnShardDone: func(s Shard, _ error) { shards = append(shards, s) },
	}, double)
	require.NoError(t, err)
	assert.Equal(t, []Shard{{ID: 0, Start: 0, End: 10}}, shards)
}

func TestRunParallelFailFast(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	var done []Shard
	var processed atomic.Int64

	_, err := RunParallel(context.Background(), 400, ParallelConfig{
		NumWorkers: 4,
		OnShardDone: func(s Shard, _ error) {
			mu.Lock()
			done = append(done, s)
			mu.Unlock()
		},
	}, func(ctx context.Context, s Shard) ([]int, error) {
		for i := s.Start; i < s.End; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if s.ID == 0 {
				return nil, boom
			}
			processed.Add(1)
		}
		return nil, nil
	})

	require.ErrorIs(t, err, boom)
	assert.Len(t, done, 4, "every shard reports completion")
	assert.Less(t, processed.Load(), int64(400))
}

func TestRunParallelEmpty(t *testing.T) {
	out, err := RunParallel(context.Background(), 0, ParallelConfig{NumWorkers: 4}, double)
	require.NoError(t, err)
	assert.Empty(t, out)
}
