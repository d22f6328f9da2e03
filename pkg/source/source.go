// Package source loads datasets from JSONL and CSV files and writes records
// back as JSONL. Files ending in .gz, .zst, .lz4 or .sz are transparently
// decompressed on read and compressed on write.
package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/datalab/pkg/compression"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
)

// Format is a file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

var compressedSuffixes = map[string]compression.Algorithm{
	".gz":  compression.Gzip,
	".zst": compression.Zstd,
	".lz4": compression.LZ4,
	".sz":  compression.Snappy,
}

// Options configure ReadFile.
type Options struct {
	// Name of the dataset. Defaults to the file name without extensions.
	Name string
	// Format overrides detection from the file extension.
	Format Format
	// InferTypes parses CSV cells into int64, float64 and bool where possible.
	InferTypes bool
}

// DetectFormat derives the format and compression of path from its
// extensions, e.g. data.jsonl.zst.
func DetectFormat(path string) (Format, compression.Algorithm, error) {
	base := strings.ToLower(filepath.Base(path))
	algo := compression.None
	if a, ok := compressedSuffixes[filepath.Ext(base)]; ok {
		algo = a
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	switch filepath.Ext(base) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, algo, nil
	case ".csv":
		return FormatCSV, algo, nil
	}
	return "", algo, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("cannot detect format of %s", path))
}

// ReadFile loads a dataset. Its fingerprint is the content hash of the
// loaded schema and records.
func ReadFile(path string, opts Options) (*dataset.Dataset, error) {
	format, algo, err := DetectFormat(path)
	if opts.Format != "" {
		format, err = opts.Format, nil
	}
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = datasetName(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to read %s", path))
	}
	if algo != compression.None {
		c, err := compression.NewCompressor(&compression.Config{Algorithm: algo})
		if err != nil {
			return nil, err
		}
		if data, err = c.Decompress(data); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to decompress %s", path))
		}
	}

	switch format {
	case FormatJSONL:
		return ReadJSONL(bytes.NewReader(data), name)
	case FormatCSV:
		return ReadCSV(bytes.NewReader(data), name, opts.InferTypes)
	}
	return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("unsupported format %q", format))
}

// WriteFile writes records as JSONL to path, compressing by extension.
func WriteFile(path string, records []dataset.Record) error {
	_, algo, _ := DetectFormat(path)

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, records); err != nil {
		return err
	}
	data := buf.Bytes()
	if algo != compression.None {
		c, err := compression.NewCompressor(&compression.Config{Algorithm: algo})
		if err != nil {
			return err
		}
		if data, err = c.Compress(data); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to compress %s", path))
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to write %s", path))
	}
	return nil
}

func datasetName(path string) string {
	base := filepath.Base(path)
	for {
		ext := filepath.Ext(base)
		if ext == "" || ext == base {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}
