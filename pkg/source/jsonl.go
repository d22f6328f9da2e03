package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/json"
)

const maxLineSize = 16 << 20

// ReadJSONL reads one JSON object per line. Blank lines are skipped and field
// order follows the first occurrence in each line.
func ReadJSONL(r io.Reader, name string) (*dataset.Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []dataset.Record
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec dataset.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("%s: line %d is not a JSON object", name, line))
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("%s: read failed after line %d", name, line))
	}
	return dataset.New(name, records), nil
}

// WriteJSONL writes records one per line, preserving field order.
func WriteJSONL(w io.Writer, records []dataset.Record) error {
	bw := bufio.NewWriter(w)
	lw := json.NewLineWriter(bw)
	for i, rec := range records {
		if err := lw.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to write record %d", i))
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	return nil
}
