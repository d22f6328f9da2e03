package operation

import (
	"fmt"
	"strings"
)

// Category decides how the engine feeds records to an operation. It is fixed
// when the descriptor is built.
type Category int

const (
	// PerRecord operations are invoked once per record and may add fields.
	PerRecord Category = iota + 1
	// Aggregate operations are invoked once per apply with every record's
	// value and produce dataset statistics.
	Aggregate
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case PerRecord:
		return "per_record"
	case Aggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return c == PerRecord || c == Aggregate }

// ParseCategory converts a name into a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per_record", "record", "map":
		return PerRecord, nil
	case "aggregate", "aggregating":
		return Aggregate, nil
	default:
		return 0, fmt.Errorf("unknown operation category: %q", s)
	}
}

// Shape is the input contract of an operation, independent of its Category.
type Shape string

const (
	// ShapeAny places no type contract on the processed fields.
	ShapeAny Shape = "any"
	// ShapeText requires the processed fields to hold strings.
	ShapeText Shape = "text"
	// ShapeStructured requires the processed fields to hold lists or maps.
	ShapeStructured Shape = "structured"
	// ShapeRecord passes whole records; processed fields are ignored.
	ShapeRecord Shape = "record"
)

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	switch s {
	case ShapeAny, ShapeText, ShapeStructured, ShapeRecord:
		return true
	}
	return false
}
