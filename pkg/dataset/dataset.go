// Package dataset holds the in-memory data model: ordered records, schemas
// and immutable datasets carrying their content fingerprint, statistics and
// provenance.
package dataset

import (
	"fmt"
	"iter"
	"time"

	"github.com/ajitpratap0/datalab/pkg/fingerprint"
)

// Fingerprint is re-exported for callers that only deal with datasets.
type Fingerprint = fingerprint.Fingerprint

// Source is anything an operation can be applied to. Records must be
// restartable: every call yields the full sequence again from the start.
type Source interface {
	Records() iter.Seq2[int, Record]
	Schema() Schema
	Fingerprint() Fingerprint
}

// ProvenanceEntry records one operation applied on the way to a dataset.
type ProvenanceEntry struct {
	Operation   string      `json:"operation"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Mode        string      `json:"mode"`
	RunID       string      `json:"run_id,omitempty"`
	Notes       []string    `json:"notes,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Dataset is an immutable, ordered collection of records. Accessors return
// copies so a Dataset can be shared freely between goroutines.
type Dataset struct {
	name        string
	records     []Record
	schema      Schema
	fingerprint Fingerprint
	statistics  map[string]interface{}
	provenance  []ProvenanceEntry

	schemaSet bool
}

// Option configures a Dataset under construction.
type Option func(*Dataset)

// WithSchema sets the schema instead of inferring it from the records.
func WithSchema(s Schema) Option {
	return func(d *Dataset) {
		d.schema = s.Clone()
		d.schemaSet = true
	}
}

// WithFingerprint sets the fingerprint instead of hashing the content.
func WithFingerprint(fp Fingerprint) Option {
	return func(d *Dataset) { d.fingerprint = fp }
}

// WithStatistics attaches aggregate statistics. Values are normalized.
func WithStatistics(stats map[string]interface{}) Option {
	return func(d *Dataset) {
		if stats == nil {
			d.statistics = nil
			return
		}
		d.statistics = make(map[string]interface{}, len(stats))
		for k, v := range stats {
			d.statistics[k] = NormalizeValue(v)
		}
	}
}

// WithProvenance sets the provenance trail.
func WithProvenance(entries ...ProvenanceEntry) Option {
	return func(d *Dataset) {
		d.provenance = append([]ProvenanceEntry(nil), entries...)
	}
}

// New builds a dataset. Without WithSchema the schema is inferred, and
// without WithFingerprint the fingerprint is the content hash of schema and
// records.
func New(name string, records []Record, opts ...Option) *Dataset {
	d := &Dataset{
		name:    name,
		records: append([]Record(nil), records...),
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.schemaSet {
		d.schema = InferSchema(d.records)
	}
	if d.fingerprint.IsZero() {
		d.fingerprint = ContentFingerprint(d.schema, d.records)
	}
	return d
}

// FromMaps is a convenience constructor for tests and examples.
func FromMaps(name string, rows []map[string]interface{}, opts ...Option) *Dataset {
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = RecordFromMap(row)
	}
	return New(name, records, opts...)
}

// ContentFingerprint hashes a schema and records in order. Records that
// cannot be serialized make the fingerprint random, so such datasets never
// share a fingerprint with anything.
func ContentFingerprint(schema Schema, records []Record) Fingerprint {
	hs := fingerprint.NewHasher("datalab/content/v1")
	if err := hs.WriteValue(schema); err != nil {
		return fingerprint.Random()
	}
	for _, r := range records {
		if err := hs.WriteValue(r); err != nil {
			return fingerprint.Random()
		}
	}
	return hs.Sum()
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Records yields every record with its position. The sequence can be
// consumed any number of times.
func (d *Dataset) Records() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, r := range d.records {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Record returns the record at position i.
func (d *Dataset) Record(i int) Record { return d.records[i] }

// RecordSlice returns a copy of the records.
func (d *Dataset) RecordSlice() []Record {
	return append([]Record(nil), d.records...)
}

// Schema returns a copy of the schema.
func (d *Dataset) Schema() Schema { return d.schema.Clone() }

// Fingerprint returns the dataset fingerprint.
func (d *Dataset) Fingerprint() Fingerprint { return d.fingerprint }

// Statistics returns a copy of the aggregate statistics, or nil when no
// aggregate operation produced this dataset.
func (d *Dataset) Statistics() map[string]interface{} {
	if d.statistics == nil {
		return nil
	}
	return copyStats(d.statistics)
}

// Provenance returns a copy of the provenance trail.
func (d *Dataset) Provenance() []ProvenanceEntry {
	out := make([]ProvenanceEntry, len(d.provenance))
	for i, e := range d.provenance {
		e.Notes = append([]string(nil), e.Notes...)
		out[i] = e
	}
	return out
}

// Slice returns the records in [start, end) as a new dataset with the same
// schema. The slice gets its own content fingerprint.
func (d *Dataset) Slice(start, end int) (*Dataset, error) {
	if start < 0 || end > len(d.records) || start > end {
		return nil, fmt.Errorf("slice [%d:%d] out of range for %d records", start, end, len(d.records))
	}
	return New(d.name, d.records[start:end], WithSchema(d.schema)), nil
}

// Collect materializes any Source into a record slice.
func Collect(src Source) []Record {
	if d, ok := src.(*Dataset); ok {
		return d.RecordSlice()
	}
	var out []Record
	for _, r := range src.Records() {
		out = append(out, r)
	}
	return out
}

func copyStats(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
