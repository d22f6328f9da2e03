// Package operation describes named transformations over datasets: the
// callable, its category and input shape, the fields it reads and writes and
// the static resources bound to it.
package operation

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/datalab/pkg/errors"
)

// DefaultProcessedField is read when an operation does not name its inputs.
const DefaultProcessedField = "text"

// RecordFunc is the callable of a PerRecord operation. arg is the processed
// field value, a []interface{} tuple when several fields are processed, or
// the whole dataset.Record for ShapeRecord operations. The result is either a
// string-keyed mapping whose keys become fields, or a scalar written to the
// generated field.
type RecordFunc func(arg interface{}, res Resources) (interface{}, error)

// AggregateFunc is the callable of an Aggregate operation. args holds one
// element per record, in dataset order.
type AggregateFunc func(args []interface{}, res Resources) (interface{}, error)

// Descriptor is an immutable description of an operation.
type Descriptor struct {
	name            string
	category        Category
	shape           Shape
	recordFn        RecordFunc
	aggregateFn     AggregateFunc
	resources       Resources
	processedFields []string
	generatedField  string
	task            string
	description     string
	contributor     string
	version         string
}

// Option configures a Descriptor under construction.
type Option func(*Descriptor)

// WithResources binds static keyword parameters. Repeated use merges.
func WithResources(res map[string]interface{}) Option {
	return func(d *Descriptor) { d.resources = d.resources.merge(NewResources(res)) }
}

// WithProcessedFields names the record fields the operation reads.
func WithProcessedFields(fields ...string) Option {
	return func(d *Descriptor) { d.processedFields = append([]string(nil), fields...) }
}

// WithGeneratedField names the field a scalar result is written to.
func WithGeneratedField(field string) Option {
	return func(d *Descriptor) { d.generatedField = field }
}

// WithTask tags the operation with the task it serves, e.g. "text-classification".
func WithTask(task string) Option {
	return func(d *Descriptor) { d.task = task }
}

// WithDescription sets a human readable description.
func WithDescription(desc string) Option {
	return func(d *Descriptor) { d.description = desc }
}

// WithContributor records who wrote the operation.
func WithContributor(who string) Option {
	return func(d *Descriptor) { d.contributor = who }
}

// WithShape sets the input contract.
func WithShape(s Shape) Option {
	return func(d *Descriptor) { d.shape = s }
}

// WithVersion sets an identity suffix. Bumping it invalidates cached outputs
// of the operation.
func WithVersion(v string) Option {
	return func(d *Descriptor) { d.version = v }
}

// WithCategory overrides the category implied by the constructor. Descriptors
// whose category and callable disagree are rejected when applied.
func WithCategory(c Category) Option {
	return func(d *Descriptor) { d.category = c }
}

// New builds a PerRecord operation.
func New(name string, fn RecordFunc, opts ...Option) (*Descriptor, error) {
	if fn == nil {
		return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: nil callable", name))
	}
	d := &Descriptor{name: name, category: PerRecord, recordFn: fn}
	return d.build(opts)
}

// NewAggregate builds an Aggregate operation.
func NewAggregate(name string, fn AggregateFunc, opts ...Option) (*Descriptor, error) {
	if fn == nil {
		return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: nil callable", name))
	}
	d := &Descriptor{name: name, category: Aggregate, aggregateFn: fn}
	return d.build(opts)
}

// Must panics if err is non-nil. It is meant for package-level operation
// declarations.
func Must(d *Descriptor, err error) *Descriptor {
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) build(opts []Option) (*Descriptor, error) {
	d.shape = ShapeAny
	d.processedFields = []string{DefaultProcessedField}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptor) validate() error {
	if strings.TrimSpace(d.name) == "" {
		return errors.New(errors.ErrorTypeValidation, "operation name is required")
	}
	if !d.shape.Valid() {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: unknown shape %q", d.name, d.shape))
	}
	if d.shape == ShapeRecord {
		return nil
	}
	if len(d.processedFields) == 0 {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: processed fields must not be empty", d.name))
	}
	for _, f := range d.processedFields {
		if strings.TrimSpace(f) == "" {
			return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: blank processed field", d.name))
		}
	}
	return nil
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.processedFields = append([]string(nil), d.processedFields...)
	return &c
}

// WithProcessedFields returns a copy of d reading the given fields instead.
func (d *Descriptor) WithProcessedFields(fields ...string) (*Descriptor, error) {
	c := d.clone()
	c.processedFields = append([]string(nil), fields...)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithResources returns a copy of d with res merged over its resources.
func (d *Descriptor) WithResources(res map[string]interface{}) *Descriptor {
	c := d.clone()
	c.resources = c.resources.merge(NewResources(res))
	return c
}

// WithGeneratedField returns a copy of d writing scalar results to field.
func (d *Descriptor) WithGeneratedField(field string) *Descriptor {
	c := d.clone()
	c.generatedField = field
	return c
}

// Name returns the operation name.
func (d *Descriptor) Name() string { return d.name }

// Category returns the operation category.
func (d *Descriptor) Category() Category { return d.category }

// Shape returns the input contract.
func (d *Descriptor) Shape() Shape { return d.shape }

// RecordFunc returns the PerRecord callable, or nil.
func (d *Descriptor) RecordFunc() RecordFunc { return d.recordFn }

// AggregateFunc returns the Aggregate callable, or nil.
func (d *Descriptor) AggregateFunc() AggregateFunc { return d.aggregateFn }

// Resources returns the bound static parameters.
func (d *Descriptor) Resources() Resources { return d.resources }

// ProcessedFields returns a copy of the fields the operation reads.
func (d *Descriptor) ProcessedFields() []string {
	return append([]string(nil), d.processedFields...)
}

// GeneratedField returns the declared output field, or "".
func (d *Descriptor) GeneratedField() string { return d.generatedField }

// OutputField is the field a scalar result is written to: the generated
// field when declared, otherwise the operation name.
func (d *Descriptor) OutputField() string {
	if d.generatedField != "" {
		return d.generatedField
	}
	return d.name
}

// Task returns the task tag.
func (d *Descriptor) Task() string { return d.task }

// Description returns the description.
func (d *Descriptor) Description() string { return d.description }

// Contributor returns the contributor.
func (d *Descriptor) Contributor() string { return d.contributor }

// Version returns the identity suffix.
func (d *Descriptor) Version() string { return d.version }

// Info is the catalog view of a descriptor.
type Info struct {
	Name            string   `json:"name" yaml:"name"`
	Category        string   `json:"category" yaml:"category"`
	Shape           string   `json:"shape" yaml:"shape"`
	ProcessedFields []string `json:"processed_fields" yaml:"processed_fields"`
	GeneratedField  string   `json:"generated_field,omitempty" yaml:"generated_field,omitempty"`
	Task            string   `json:"task,omitempty" yaml:"task,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Contributor     string   `json:"contributor,omitempty" yaml:"contributor,omitempty"`
	Version         string   `json:"version,omitempty" yaml:"version,omitempty"`
}

// Info returns the catalog view of d.
func (d *Descriptor) Info() Info {
	return Info{
		Name:            d.name,
		Category:        d.category.String(),
		Shape:           string(d.shape),
		ProcessedFields: d.ProcessedFields(),
		GeneratedField:  d.generatedField,
		Task:            d.task,
		Description:     d.description,
		Contributor:     d.contributor,
		Version:         d.version,
	}
}
