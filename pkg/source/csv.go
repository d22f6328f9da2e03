package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
)

// ReadCSV reads a CSV file whose first row is the header. Cells are strings
// unless inferTypes is set, in which case integers, floats and the literals
// true and false are converted and empty cells become null.
func ReadCSV(r io.Reader, name string, inferTypes bool) (*dataset.Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return dataset.New(name, nil), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("%s: invalid CSV header", name))
	}
	keys := append([]string(nil), header...)

	var records []dataset.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("%s: invalid CSV row %d", name, len(records)+1))
		}
		values := make([]interface{}, len(keys))
		for i, cell := range row {
			if inferTypes {
				values[i] = inferCell(cell)
			} else {
				values[i] = cell
			}
		}
		records = append(records, dataset.NewRecord(keys, values))
	}
	return dataset.New(name, records), nil
}

func inferCell(s string) interface{} {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
