package operation

import (
	"fmt"

	"github.com/ajitpratap0/datalab/pkg/dataset"
)

// TextFunc adapts a string callable into a RecordFunc. A non-string input is
// reported as an error.
func TextFunc(fn func(text string, res Resources) (interface{}, error)) RecordFunc {
	return func(arg interface{}, res Resources) (interface{}, error) {
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected string input, got %T", arg)
		}
		return fn(s, res)
	}
}

// TextAggregate adapts a callable over every record's string value.
func TextAggregate(fn func(texts []string, res Resources) (interface{}, error)) AggregateFunc {
	return func(args []interface{}, res Resources) (interface{}, error) {
		texts := make([]string, len(args))
		for i, a := range args {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("record %d: expected string input, got %T", i, a)
			}
			texts[i] = s
		}
		return fn(texts, res)
	}
}

// RecordsAggregate adapts a callable over whole records. It is meant for
// ShapeRecord aggregates.
func RecordsAggregate(fn func(records []dataset.Record, res Resources) (interface{}, error)) AggregateFunc {
	return func(args []interface{}, res Resources) (interface{}, error) {
		records := make([]dataset.Record, len(args))
		for i, a := range args {
			r, ok := a.(dataset.Record)
			if !ok {
				return nil, fmt.Errorf("record %d: expected dataset.Record, got %T", i, a)
			}
			records[i] = r
		}
		return fn(records, res)
	}
}
