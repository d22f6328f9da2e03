package cache

import (
	"bytes"
	"fmt"

	"github.com/ajitpratap0/datalab/pkg/compression"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/json"
)

// formatVersion is bumped when the envelope layout changes. Entries written
// with another version are treated as corrupt and recomputed.
const formatVersion = 1

// magic prefixes every cache entry.
var magic = []byte("DLC1")

// envelope is the persisted form of a dataset.
type envelope struct {
	FormatVersion int                       `json:"format_version"`
	Name          string                    `json:"name"`
	Fingerprint   string                    `json:"fingerprint"`
	Schema        dataset.Schema            `json:"schema"`
	Records       []dataset.Record          `json:"records"`
	Statistics    *dataset.Record           `json:"statistics,omitempty"`
	Provenance    []dataset.ProvenanceEntry `json:"provenance,omitempty"`
}

// Codec turns datasets into cache payloads and back. A payload is the magic
// header, one byte naming the compression algorithm and the compressed JSON
// envelope.
type Codec struct {
	comp compression.Compressor
	tag  byte
}

// NewCodec creates a codec compressing with cfg. A nil cfg uses
// compression.DefaultConfig.
func NewCodec(cfg *compression.Config) (*Codec, error) {
	comp, err := compression.NewCompressor(cfg)
	if err != nil {
		return nil, err
	}
	tag, err := compression.Tag(comp.Algorithm())
	if err != nil {
		return nil, err
	}
	return &Codec{comp: comp, tag: tag}, nil
}

// Encode serializes ds.
func (c *Codec) Encode(ds *dataset.Dataset) ([]byte, error) {
	env := envelope{
		FormatVersion: formatVersion,
		Name:          ds.Name(),
		Fingerprint:   ds.Fingerprint().String(),
		Schema:        ds.Schema(),
		Records:       ds.RecordSlice(),
		Provenance:    ds.Provenance(),
	}
	if env.Records == nil {
		env.Records = []dataset.Record{}
	}
	if stats := ds.Statistics(); stats != nil {
		r := dataset.RecordFromMap(stats)
		env.Statistics = &r
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding dataset %s: %w", ds.Name(), err)
	}
	packed, err := c.comp.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compressing dataset %s: %w", ds.Name(), err)
	}

	out := make([]byte, 0, len(magic)+1+len(packed))
	out = append(out, magic...)
	out = append(out, c.tag)
	out = append(out, packed...)
	return out, nil
}

// Decode parses a payload written by any codec configuration. Any problem is
// reported as ErrCorrupt.
func (c *Codec) Decode(data []byte) (*dataset.Dataset, error) {
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	alg, err := compression.FromTag(data[len(magic)])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	comp := c.comp
	if alg != comp.Algorithm() {
		comp, err = compression.NewCompressor(&compression.Config{Algorithm: alg})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	raw, err := comp.Decompress(data[len(magic)+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}

	var env envelope
	if err := json.UnmarshalUseNumber(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	if env.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: format version %d", ErrCorrupt, env.FormatVersion)
	}
	if env.Fingerprint == "" {
		return nil, fmt.Errorf("%w: missing fingerprint", ErrCorrupt)
	}

	opts := []dataset.Option{
		dataset.WithSchema(env.Schema),
		dataset.WithFingerprint(dataset.Fingerprint(env.Fingerprint)),
		dataset.WithProvenance(env.Provenance...),
	}
	if env.Statistics != nil {
		opts = append(opts, dataset.WithStatistics(env.Statistics.ToMap()))
	}
	return dataset.New(env.Name, env.Records, opts...), nil
}
