// Package pipeline runs per-record work over contiguous shards of a dataset
// on a bounded worker pool.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Shard is the half-open record range [Start, End) handled by one worker.
type Shard struct {
	ID    int
	Start int
	End   int
}

// Len returns the number of records in the shard.
func (s Shard) Len() int { return s.End - s.Start }

// Split partitions n records into k contiguous, non-overlapping shards whose
// sizes differ by at most one. Earlier shards take the remainder. When k
// exceeds n only n shards are returned; n == 0 yields no shards.
func Split(n, k int) []Shard {
	if n <= 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	base, rem := n/k, n%k
	shards := make([]Shard, k)
	start := 0
	for i := range shards {
		size := base
		if i < rem {
			size++
		}
		shards[i] = Shard{ID: i, Start: start, End: start + size}
		start += size
	}
	return shards
}

// ShardFunc processes one shard and returns its outputs in record order.
// Implementations should check ctx between records so a failing sibling
// stops them early.
type ShardFunc[T any] func(ctx context.Context, shard Shard) ([]T, error)

// ParallelConfig configures RunParallel.
type ParallelConfig struct {
	// NumWorkers is the number of shards. Values below 2 run a single shard
	// in the caller's goroutine.
	NumWorkers int
	// Logger receives per-shard debug output. Nil disables it.
	Logger *zap.Logger
	// OnShardDone, when set, is called after each shard finishes.
	OnShardDone func(shard Shard, err error)
}

// RunParallel splits n records into shards, runs work on each shard
// concurrently and concatenates the outputs in shard order. The first error
// cancels the context passed to the other shards and is returned; no partial
// output is returned with it.
func RunParallel[T any](ctx context.Context, n int, cfg ParallelConfig, work ShardFunc[T]) ([]T, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.NumWorkers < 2 || n < 2 {
		shard := Shard{ID: 0, Start: 0, End: n}
		out, err := work(ctx, shard)
		if cfg.OnShardDone != nil {
			cfg.OnShardDone(shard, err)
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	shards := Split(n, cfg.NumWorkers)
	results := make([][]T, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		g.Go(func() error {
			start := time.Now()
			out, err := work(gctx, shard)
			if cfg.OnShardDone != nil {
				cfg.OnShardDone(shard, err)
			}
			if err != nil {
				log.Debug("shard failed",
					zap.Int("shard", shard.ID),
					zap.Error(err))
				return err
			}
			results[shard.ID] = out
			log.Debug("shard completed",
				zap.Int("shard", shard.ID),
				zap.Int("records", shard.Len()),
				zap.Duration("duration", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]T, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
