package dataset

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"github.com/ajitpratap0/datalab/pkg/json"
)

// Record is an ordered mapping from field name to value. The zero value is an
// empty record. Records are immutable: every method that changes content
// returns a new Record and leaves the receiver untouched.
type Record struct {
	keys   []string
	values map[string]interface{}
}

// NewRecord builds a record from parallel key and value slices. Values are
// normalized with NormalizeValue. A repeated key keeps its first position and
// its last value.
func NewRecord(keys []string, values []interface{}) Record {
	if len(keys) != len(values) {
		panic(fmt.Sprintf("dataset: NewRecord got %d keys and %d values", len(keys), len(values)))
	}
	r := Record{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]interface{}, len(keys)),
	}
	for i, k := range keys {
		if _, seen := r.values[k]; !seen {
			r.keys = append(r.keys, k)
		}
		r.values[k] = NormalizeValue(values[i])
	}
	return r
}

// RecordFromMap builds a record from an unordered map. Keys are sorted so the
// result is deterministic.
func RecordFromMap(m map[string]interface{}) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return NewRecord(keys, values)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Keys returns the field names in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Values returns the field values in key order. Nested lists and maps are
// copies.
func (r Record) Values() []interface{} {
	out := make([]interface{}, len(r.keys))
	for i, k := range r.keys {
		out[i] = CloneValue(r.values[k])
	}
	return out
}

// Get returns the value of a field. Nested lists and maps are copies, so
// callers may modify them without affecting the record.
func (r Record) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return CloneValue(v), ok
}

// Has reports whether the field is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Range calls fn for each field in order until fn returns false. Nested
// lists and maps are passed as copies.
func (r Record) Range(fn func(key string, value interface{}) bool) {
	for _, k := range r.keys {
		if !fn(k, CloneValue(r.values[k])) {
			return
		}
	}
}

// With returns a copy of r with key set to value. An existing key keeps its
// position.
func (r Record) With(key string, value interface{}) Record {
	return r.Merge([]string{key}, []interface{}{value})
}

// Merge returns a copy of r with every key set to the matching value. New
// keys are appended in the given order.
func (r Record) Merge(keys []string, values []interface{}) Record {
	out := Record{
		keys:   make([]string, len(r.keys), len(r.keys)+len(keys)),
		values: make(map[string]interface{}, len(r.keys)+len(keys)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	for i, k := range keys {
		if _, exists := out.values[k]; !exists {
			out.keys = append(out.keys, k)
		}
		out.values[k] = NormalizeValue(values[i])
	}
	return out
}

// ToMap returns a shallow copy of the fields as a map.
func (r Record) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(r.keys))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Equal reports whether both records hold the same fields in the same order
// with deeply equal values.
func (r Record) Equal(other Record) bool {
	if len(r.keys) != len(other.keys) {
		return false
	}
	for i, k := range r.keys {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(r.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

// String renders the record as JSON.
func (r Record) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Record(%v)", r.keys)
	}
	return string(b)
}

// MarshalJSON encodes the record as a JSON object in field order. Floats keep
// a fraction ("3.0") so a decoded record holds the same types.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := appendValue(&buf, r.values[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the field order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("dataset: record must be a JSON object, got %v", tok)
	}

	var keys []string
	var values []interface{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("dataset: expected object key, got %v", tok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = NewRecord(keys, values)
	return nil
}
