package engine

import (
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/operation"
)

// Stream is the lazy output of a Streaming apply. Every call to All reads the
// source again and recomputes; nothing is cached. Stop ranging to cancel.
type Stream struct {
	r *run
}

func newStream(r *run) *Stream {
	return &Stream{r: r}
}

// All yields output records in source order. A failure is yielded once as a
// zero record with a non-nil error and ends the sequence. An aggregate
// operation yields a single record holding its statistics.
func (s *Stream) All() iter.Seq2[dataset.Record, error] {
	if s.r.plan.Category == operation.Aggregate {
		return s.aggregate()
	}
	return func(yield func(dataset.Record, error) bool) {
		r := s.r
		inputs := r.src.Schema()
		n := 0
		defer func() { r.metrics.RecordsProcessed(n) }()

		for i, rec := range r.src.Records() {
			v, err := r.call(r.plan.Extract(rec))
			if err != nil {
				yield(dataset.Record{}, r.callableError(err, i, -1))
				return
			}
			produced := resultRecord(v, r.plan.OutputField)
			if err := s.checkCollisions(inputs, produced, i); err != nil {
				yield(dataset.Record{}, err)
				return
			}
			n++
			if !yield(rec.Merge(produced.Keys(), produced.Values()), nil) {
				return
			}
		}
	}
}

func (s *Stream) aggregate() iter.Seq2[dataset.Record, error] {
	return func(yield func(dataset.Record, error) bool) {
		records := dataset.Collect(s.r.src)
		stats, err := s.r.statistics(records)
		if err != nil {
			yield(dataset.Record{}, err)
			return
		}
		s.r.metrics.RecordsProcessed(len(records))
		yield(stats, nil)
	}
}

// checkCollisions rejects produced fields that already exist in the input
// unless they are the declared override.
func (s *Stream) checkCollisions(inputs dataset.Schema, produced dataset.Record, index int) error {
	for _, k := range produced.Keys() {
		if !inputs.Has(k) || k == s.r.plan.Override {
			continue
		}
		return errors.New(errors.ErrorTypeFieldCollision,
			fmt.Sprintf("produced field %q already exists in the input schema", k)).
			WithDetail(errors.DetailField, k).
			WithDetail(errors.DetailOperation, s.r.desc.Name()).
			WithDetail(errors.DetailRecordIndex, index)
	}
	return nil
}

// Take returns up to n output records, computing only as many as needed.
func (s *Stream) Take(n int) ([]dataset.Record, error) {
	out := make([]dataset.Record, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	for rec, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Collect consumes the whole stream.
func (s *Stream) Collect() ([]dataset.Record, error) {
	var out []dataset.Record
	for rec, err := range s.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	s.r.log.Debug("stream consumed", zap.Int("records", len(out)))
	return out, nil
}
