// Package engine applies operations to datasets. It resolves how an
// operation consumes records, runs it in one of three execution modes and
// keys persisted results by fingerprint.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/internal/pipeline"
	"github.com/ajitpratap0/datalab/pkg/cache"
	"github.com/ajitpratap0/datalab/pkg/config"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/fingerprint"
	"github.com/ajitpratap0/datalab/pkg/logger"
	"github.com/ajitpratap0/datalab/pkg/metrics"
	"github.com/ajitpratap0/datalab/pkg/observability"
	"github.com/ajitpratap0/datalab/pkg/operation"
	"github.com/ajitpratap0/datalab/pkg/schema"
)

// Engine applies operations. It is safe for concurrent use.
type Engine struct {
	store       cache.Store
	caching     atomic.Bool
	defaultMode Mode
	numProc     int
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the cache used by Persisting mode.
func WithStore(s cache.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDefaultMode sets the mode used when ApplyOptions.Mode is empty.
func WithDefaultMode(m Mode) Option {
	return func(e *Engine) { e.defaultMode = m }
}

// WithNumProc sets the worker count used when ApplyOptions.NumProc is 0.
func WithNumProc(n int) Option {
	return func(e *Engine) { e.numProc = n }
}

// WithCaching sets the initial state of the caching switch.
func WithCaching(enabled bool) Option {
	return func(e *Engine) { e.caching.Store(enabled) }
}

// New creates an engine. Caching starts enabled, but Persisting only uses the
// cache once a store is set.
func New(opts ...Option) *Engine {
	e := &Engine{
		defaultMode: Materializing,
		numProc:     1,
	}
	e.caching.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().With(zap.String("component", "engine"))
	}
	if e.numProc < 1 {
		e.numProc = 1
	}
	return e
}

// NewFromConfig creates an engine from configuration, opening the configured
// cache backend when caching is enabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := ParseMode(cfg.Engine.Mode)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid engine.mode")
	}
	opts := []Option{
		WithDefaultMode(mode),
		WithNumProc(cfg.Engine.WorkerCount()),
		WithCaching(cfg.Cache.Enabled),
	}
	if cfg.Cache.Enabled {
		store, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStore(store))
	}
	return New(opts...), nil
}

// EnableCaching turns the persisted cache on for subsequent calls.
func (e *Engine) EnableCaching() { e.caching.Store(true) }

// DisableCaching makes Persisting behave like Materializing until caching is
// enabled again. Fingerprints are still computed.
func (e *Engine) DisableCaching() { e.caching.Store(false) }

// CachingEnabled reports the state of the caching switch.
func (e *Engine) CachingEnabled() bool { return e.caching.Load() }

// Store returns the configured cache, or nil.
func (e *Engine) Store() cache.Store { return e.store }

// ApplyOptions control one apply call.
type ApplyOptions struct {
	// Mode overrides the engine default when set.
	Mode Mode
	// NumProc is the worker count for per-record operations in Materializing
	// and Persisting modes. 0 uses the engine default.
	NumProc int
}

// Result is the outcome of an apply call. Exactly one of Dataset and Stream
// is set.
type Result struct {
	Mode    Mode
	Dataset *dataset.Dataset
	Stream  *Stream
	// CacheHit is true when Dataset was loaded from the cache.
	CacheHit bool
	// Fingerprint is the output fingerprint. Empty for streams.
	Fingerprint dataset.Fingerprint
	RunID       string
}

// Apply applies desc to src. Field and category problems are reported
// before any record is processed.
func (e *Engine) Apply(ctx context.Context, src dataset.Source, desc *operation.Descriptor, opts ApplyOptions) (res *Result, err error) {
	if src == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "source dataset is required")
	}
	if desc == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "operation is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = e.defaultMode
	}
	if mode, err = ParseMode(string(mode)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid apply mode")
	}
	numProc := opts.NumProc
	if numProc < 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "num_proc must not be negative")
	}
	if numProc == 0 {
		numProc = e.numProc
	}

	r := &run{
		src:     src,
		desc:    desc,
		mode:    mode,
		numProc: numProc,
		runID:   uuid.NewString(),
		metrics: metrics.NewCollector(desc.Name(), string(mode)),
	}
	r.log = e.logger.With(
		zap.String("run_id", r.runID),
		zap.String("operation", desc.Name()),
		zap.String("mode", string(mode)),
	)

	ctx, span := observability.StartSpan(ctx, "engine.apply",
		attribute.String("operation", desc.Name()),
		attribute.String("mode", string(mode)),
		attribute.Int("num_proc", numProc),
	)
	timer := r.metrics.StartApply()
	defer func() {
		d := timer.Done(err)
		observability.EndSpan(span, err)
		if err != nil {
			r.log.Error("apply failed", zap.Duration("duration", d), zap.Error(err))
			return
		}
		r.log.Debug("apply finished", zap.Duration("duration", d), zap.Bool("cache_hit", res.CacheHit))
	}()

	if r.plan, err = Resolve(desc, src.Schema()); err != nil {
		return nil, err
	}
	if r.plan.Category == operation.Aggregate && numProc > 1 {
		r.log.Debug("num_proc ignored for aggregate operation", zap.Int("num_proc", numProc))
		r.numProc = 1
	}

	if mode == Streaming {
		return &Result{Mode: mode, Stream: newStream(r), RunID: r.runID}, nil
	}

	r.fp, r.hashable = r.fingerprint()
	span.SetAttributes(attribute.String("fingerprint", r.fp.String()))

	res = &Result{Mode: mode, Fingerprint: r.fp, RunID: r.runID}
	if mode == Persisting {
		res.Dataset, res.CacheHit, err = e.persist(ctx, r)
	} else {
		res.Dataset, err = r.materialize(ctx)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Materialize applies desc in Materializing mode with the engine's worker count.
func (e *Engine) Materialize(ctx context.Context, src dataset.Source, desc *operation.Descriptor) (*dataset.Dataset, error) {
	res, err := e.Apply(ctx, src, desc, ApplyOptions{Mode: Materializing})
	if err != nil {
		return nil, err
	}
	return res.Dataset, nil
}

// Stream applies desc in Streaming mode.
func (e *Engine) Stream(ctx context.Context, src dataset.Source, desc *operation.Descriptor) (*Stream, error) {
	res, err := e.Apply(ctx, src, desc, ApplyOptions{Mode: Streaming})
	if err != nil {
		return nil, err
	}
	return res.Stream, nil
}

func (e *Engine) persist(ctx context.Context, r *run) (*dataset.Dataset, bool, error) {
	if !r.hashable || !e.CachingEnabled() || e.store == nil {
		r.metrics.CacheLookup(metrics.CacheDisabled)
		ds, err := r.materialize(ctx)
		return ds, false, err
	}

	log := r.log.With(zap.String("fingerprint", r.fp.Short()))
	cached, err := e.store.Load(ctx, r.fp)
	switch {
	case err == nil:
		r.metrics.CacheLookup(metrics.CacheHit)
		log.Debug("cache hit")
		return cached, true, nil
	case stderrors.Is(err, cache.ErrNotFound):
		r.metrics.CacheLookup(metrics.CacheMiss)
		log.Debug("cache miss")
	case errors.IsType(err, errors.ErrorTypeCacheCorruption):
		r.metrics.CacheLookup(metrics.CacheCorrupt)
		log.Warn("discarding corrupt cache entry", zap.Error(err))
	default:
		return nil, false, err
	}

	ds, err := r.materialize(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := e.store.Save(ctx, r.fp, ds); err != nil {
		return nil, false, err
	}
	return ds, false, nil
}

// run carries the state of one apply call.
type run struct {
	src      dataset.Source
	desc     *operation.Descriptor
	plan     *Plan
	mode     Mode
	numProc  int
	runID    string
	fp       dataset.Fingerprint
	hashable bool
	log      *zap.Logger
	metrics  *metrics.Collector
}

// fingerprint derives the output fingerprint. Unhashable resources give a
// random fingerprint and disable caching for the call.
func (r *run) fingerprint() (dataset.Fingerprint, bool) {
	params := map[string]interface{}{}
	if r.plan.Category == operation.PerRecord {
		params["num_proc"] = r.numProc
	}
	fp, err := fingerprint.Compute(fingerprint.Input{
		Base:            r.src.Fingerprint(),
		Operation:       r.desc.Name(),
		Version:         r.desc.Version(),
		Category:        r.plan.Category.String(),
		Resources:       r.desc.Resources().ToMap(),
		ProcessedFields: r.desc.ProcessedFields(),
		GeneratedField:  r.desc.GeneratedField(),
		Mode:            string(r.mode),
		Params:          params,
	})
	if err != nil {
		r.log.Warn("operation is not hashable, caching skipped", zap.Error(err))
		return fingerprint.Random(), false
	}
	return fp, true
}

func (r *run) name() string {
	if n, ok := r.src.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

func (r *run) provenance(notes []string) []dataset.ProvenanceEntry {
	var prev []dataset.ProvenanceEntry
	if p, ok := r.src.(interface {
		Provenance() []dataset.ProvenanceEntry
	}); ok {
		prev = p.Provenance()
	}
	return append(prev, dataset.ProvenanceEntry{
		Operation:   r.desc.Name(),
		Fingerprint: r.fp,
		Mode:        string(r.mode),
		RunID:       r.runID,
		Notes:       notes,
		Timestamp:   time.Now().UTC(),
	})
}

func (r *run) materialize(ctx context.Context) (*dataset.Dataset, error) {
	records := dataset.Collect(r.src)
	if r.plan.Category == operation.Aggregate {
		return r.aggregate(records)
	}

	produced, err := r.mapRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordsProcessed(len(records))

	merged, err := schema.Merge(r.src.Schema(), schema.CollectProduced(produced), r.plan.Override)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.WithDetail(errors.DetailOperation, r.desc.Name())
		}
		return nil, err
	}
	for _, c := range merged.Changes {
		if c.Type != schema.ChangeTypeOverrideField {
			continue
		}
		r.log.Warn("operation overrides an existing field", zap.String("field", c.Field),
			zap.String("old_type", string(c.OldType)), zap.String("new_type", string(c.NewType)))
	}

	out := make([]dataset.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Merge(produced[i].Keys(), produced[i].Values())
	}
	return dataset.New(r.name(), out,
		dataset.WithSchema(merged.Schema),
		dataset.WithFingerprint(r.fp),
		dataset.WithProvenance(r.provenance(merged.Notes())...),
	), nil
}

// mapRecords invokes the per-record callable over records on the worker pool
// and returns the produced fields of each record, in input order.
func (r *run) mapRecords(ctx context.Context, records []dataset.Record) ([]dataset.Record, error) {
	parallel := r.numProc > 1 && len(records) > 1
	cfg := pipeline.ParallelConfig{
		NumWorkers: r.numProc,
		Logger:     r.log,
		OnShardDone: func(_ pipeline.Shard, err error) {
			r.metrics.ShardDone(err)
		},
	}
	return pipeline.RunParallel(ctx, len(records), cfg, func(ctx context.Context, shard pipeline.Shard) ([]dataset.Record, error) {
		out := make([]dataset.Record, 0, shard.Len())
		for i := shard.Start; i < shard.End; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := r.call(r.plan.Extract(records[i]))
			if err != nil {
				shardID := -1
				if parallel {
					shardID = shard.ID
				}
				return nil, r.callableError(err, i, shardID)
			}
			out = append(out, resultRecord(v, r.plan.OutputField))
		}
		return out, nil
	})
}

func (r *run) aggregate(records []dataset.Record) (*dataset.Dataset, error) {
	stats, err := r.statistics(records)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordsProcessed(len(records))
	return dataset.New(r.name(), records,
		dataset.WithSchema(r.src.Schema()),
		dataset.WithFingerprint(r.fp),
		dataset.WithStatistics(stats.ToMap()),
		dataset.WithProvenance(r.provenance(nil)...),
	), nil
}

// statistics invokes the aggregate callable exactly once over the extracted
// values of records.
func (r *run) statistics(records []dataset.Record) (dataset.Record, error) {
	args := make([]interface{}, len(records))
	for i, rec := range records {
		args[i] = r.plan.Extract(rec)
	}
	v, err := r.callAggregate(args)
	if err != nil {
		return dataset.Record{}, errors.Wrap(err, errors.ErrorTypeCallable,
			fmt.Sprintf("operation %s failed", r.desc.Name())).
			WithDetail(errors.DetailOperation, r.desc.Name())
	}
	return resultRecord(v, r.plan.OutputField), nil
}

func (r *run) call(arg interface{}) (out interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.desc.RecordFunc()(arg, r.desc.Resources())
}

func (r *run) callAggregate(args []interface{}) (out interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.desc.AggregateFunc()(args, r.desc.Resources())
}

// callableError wraps a per-record failure with the record's global index and,
// for parallel runs, the shard id. shard < 0 omits it.
func (r *run) callableError(err error, index, shard int) *errors.Error {
	msg := fmt.Sprintf("operation %s failed on record %d", r.desc.Name(), index)
	if shard >= 0 {
		msg = fmt.Sprintf("%s (shard %d)", msg, shard)
	}
	e := errors.Wrap(err, errors.ErrorTypeCallable, msg).
		WithDetail(errors.DetailOperation, r.desc.Name()).
		WithDetail(errors.DetailRecordIndex, index)
	if shard >= 0 {
		e.WithDetail(errors.DetailShard, shard)
	}
	return e
}

// resultRecord turns a callable result into the fields it produces. Mappings
// contribute every key; anything else is stored under field.
func resultRecord(v interface{}, field string) dataset.Record {
	switch x := v.(type) {
	case dataset.Record:
		return x
	case map[string]interface{}:
		return dataset.RecordFromMap(x)
	}
	if m, ok := dataset.NormalizeValue(v).(map[string]interface{}); ok {
		return dataset.RecordFromMap(m)
	}
	return dataset.NewRecord([]string{field}, []interface{}{v})
}
