package dataset

import "strings"

// Field describes one column of a dataset.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
}

// Schema is the ordered list of fields of a dataset.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// NewSchema returns a schema holding a copy of fields.
func NewSchema(fields ...Field) Schema {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Schema{Fields: out}
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.Fields) }

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema declares the named field.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s.Fields[i], true
	}
	return Field{}, false
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a deep copy.
func (s Schema) Clone() Schema { return NewSchema(s.Fields...) }

// Equal reports whether both schemas list the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// String renders the schema as "name:type" pairs.
func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + string(f.Type)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObserveType folds a new observation into a previously recorded type.
// The first non-null observation wins; later disagreement yields TypeMixed.
// Mixing int64 and float64 is also reported as mixed.
func ObserveType(prev, next FieldType) FieldType {
	switch {
	case prev == "" || prev == TypeNull:
		return next
	case next == TypeNull || next == prev:
		return prev
	default:
		return TypeMixed
	}
}

// InferSchema derives a schema from records. Fields appear in first-seen order.
// A field is Required when every record carries a non-null value for it.
func InferSchema(records []Record) Schema {
	var fields []Field
	index := make(map[string]int)
	present := make(map[string]int)

	for _, r := range records {
		for _, k := range r.keys {
			v := r.values[k]
			t := TypeOf(v)
			i, ok := index[k]
			if !ok {
				i = len(fields)
				index[k] = i
				fields = append(fields, Field{Name: k})
			}
			fields[i].Type = ObserveType(fields[i].Type, t)
			if v != nil {
				present[k]++
			}
		}
	}

	for i := range fields {
		if fields[i].Type == "" {
			fields[i].Type = TypeNull
		}
		fields[i].Required = len(records) > 0 && present[fields[i].Name] == len(records)
	}
	return Schema{Fields: fields}
}
