package operation

import (
	"sort"

	"github.com/ajitpratap0/datalab/pkg/dataset"
)

// Resources are the static keyword parameters bound to an operation. They are
// read-only: values are copied in on construction and copied out by ToMap.
type Resources struct {
	values map[string]interface{}
}

// NewResources copies m into a Resources value.
func NewResources(m map[string]interface{}) Resources {
	if len(m) == 0 {
		return Resources{}
	}
	values := make(map[string]interface{}, len(m))
	for k, v := range m {
		values[k] = dataset.NormalizeValue(v)
	}
	return Resources{values: values}
}

// Len returns the number of parameters.
func (r Resources) Len() int { return len(r.values) }

// Get returns a parameter. Nested lists and maps are copies.
func (r Resources) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return dataset.CloneValue(v), ok
}

// Keys returns the parameter names, sorted.
func (r Resources) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a string parameter or def.
func (r Resources) String(key, def string) string {
	if v, ok := r.values[key].(string); ok {
		return v
	}
	return def
}

// Int returns an integer parameter or def.
func (r Resources) Int(key string, def int) int {
	switch v := r.values[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns a numeric parameter as float64 or def.
func (r Resources) Float(key string, def float64) float64 {
	switch v := r.values[key].(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// Bool returns a boolean parameter or def.
func (r Resources) Bool(key string, def bool) bool {
	if v, ok := r.values[key].(bool); ok {
		return v
	}
	return def
}

// ToMap returns a deep copy of the parameters. It returns nil when empty.
func (r Resources) ToMap() map[string]interface{} {
	if len(r.values) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = dataset.CloneValue(v)
	}
	return out
}

// merge returns r overlaid with other.
func (r Resources) merge(other Resources) Resources {
	m := r.ToMap()
	if m == nil {
		m = make(map[string]interface{}, other.Len())
	}
	for k, v := range other.values {
		m[k] = v
	}
	return NewResources(m)
}
