// Package testutil provides testing utilities for datalab
package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/operation"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger whose entries at level and above can be
// inspected through the returned observer.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TextDataset builds a dataset with a single "text" column.
func TextDataset(name string, texts ...string) *dataset.Dataset {
	records := make([]dataset.Record, len(texts))
	for i, s := range texts {
		records[i] = dataset.NewRecord([]string{"text"}, []interface{}{s})
	}
	return dataset.New(name, records)
}

// CallCounter counts invocations of wrapped callables. It is safe for
// concurrent use.
type CallCounter struct {
	n atomic.Int64
}

// Calls returns the number of invocations so far.
func (c *CallCounter) Calls() int64 { return c.n.Load() }

// Record wraps a PerRecord callable.
func (c *CallCounter) Record(fn operation.RecordFunc) operation.RecordFunc {
	return func(arg interface{}, res operation.Resources) (interface{}, error) {
		c.n.Add(1)
		return fn(arg, res)
	}
}

// Aggregate wraps an Aggregate callable.
func (c *CallCounter) Aggregate(fn operation.AggregateFunc) operation.AggregateFunc {
	return func(args []interface{}, res operation.Resources) (interface{}, error) {
		c.n.Add(1)
		return fn(args, res)
	}
}

// RequireSameRecords fails the test unless both datasets hold equal records
// in the same order.
func RequireSameRecords(t *testing.T, want, got *dataset.Dataset) {
	t.Helper()
	if want.Len() != got.Len() {
		t.Fatalf("record count: want %d, got %d", want.Len(), got.Len())
	}
	for i := 0; i < want.Len(); i++ {
		if !want.Record(i).Equal(got.Record(i)) {
			t.Fatalf("record %d: want %s, got %s", i, want.Record(i), got.Record(i))
		}
	}
}

// RequireNoError fails the test immediately if err is not nil.
// The msg parameter provides additional context in the failure message.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
