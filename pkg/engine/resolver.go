package engine

import (
	"fmt"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/operation"
)

// Plan is the resolved way of feeding records to an operation.
type Plan struct {
	Category operation.Category
	Shape    operation.Shape
	// Fields are the processed fields, nil for ShapeRecord operations.
	Fields []string
	// Extract returns the callable argument for one record.
	Extract func(dataset.Record) interface{}
	// OutputField receives scalar results.
	OutputField string
	// Override is the declared generated field allowed to replace an input
	// field, or "".
	Override string
}

// Resolve checks desc against schema and returns how to call it. A processed
// field missing from schema is a field_not_found error. An unknown category,
// a callable that does not match the category, or a shape contract the
// schema cannot satisfy is an unsupported_category error.
func Resolve(desc *operation.Descriptor, schema dataset.Schema) (*Plan, error) {
	if desc == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "operation is required")
	}
	name := desc.Name()

	switch desc.Category() {
	case operation.PerRecord:
		if desc.RecordFunc() == nil {
			return nil, unsupported(name, "per-record operation has no per-record callable")
		}
	case operation.Aggregate:
		if desc.AggregateFunc() == nil {
			return nil, unsupported(name, "aggregate operation has no aggregate callable")
		}
	default:
		return nil, unsupported(name, fmt.Sprintf("unknown category %s", desc.Category()))
	}

	plan := &Plan{
		Category:    desc.Category(),
		Shape:       desc.Shape(),
		OutputField: desc.OutputField(),
		Override:    desc.GeneratedField(),
	}

	if desc.Shape() == operation.ShapeRecord {
		plan.Extract = func(r dataset.Record) interface{} { return r }
		return plan, nil
	}

	fields := desc.ProcessedFields()
	for _, f := range fields {
		field, ok := schema.Field(f)
		if !ok {
			return nil, errors.New(errors.ErrorTypeFieldNotFound,
				fmt.Sprintf("operation %s: processed field %q not in schema %s", name, f, schema)).
				WithDetail(errors.DetailOperation, name).
				WithDetail(errors.DetailField, f)
		}
		if !shapeAccepts(desc.Shape(), field.Type) {
			return nil, unsupported(name, fmt.Sprintf("field %q has type %s, which a %s operation cannot process", f, field.Type, desc.Shape())).
				WithDetail(errors.DetailField, f)
		}
	}
	plan.Fields = fields

	if len(fields) == 1 {
		f := fields[0]
		plan.Extract = func(r dataset.Record) interface{} {
			v, _ := r.Get(f)
			return v
		}
		return plan, nil
	}
	plan.Extract = func(r dataset.Record) interface{} {
		tuple := make([]interface{}, len(fields))
		for i, f := range fields {
			tuple[i], _ = r.Get(f)
		}
		return tuple
	}
	return plan, nil
}

func unsupported(op, msg string) *errors.Error {
	return errors.New(errors.ErrorTypeUnsupportedCategory, fmt.Sprintf("operation %s: %s", op, msg)).
		WithDetail(errors.DetailOperation, op)
}

// shapeAccepts reports whether a column of type t can satisfy shape. Null and
// mixed columns are accepted; mismatching values then fail inside the
// callable.
func shapeAccepts(shape operation.Shape, t dataset.FieldType) bool {
	switch t {
	case dataset.TypeNull, dataset.TypeMixed:
		return true
	}
	switch shape {
	case operation.ShapeText:
		return t == dataset.TypeString
	case operation.ShapeStructured:
		return t == dataset.TypeList || t == dataset.TypeMap
	default:
		return true
	}
}
