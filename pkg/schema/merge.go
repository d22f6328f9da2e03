// Package schema computes the output schema of a per-record operation from
// the input schema and the fields the operation produced.
package schema

import (
	"fmt"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
)

// ChangeType represents the type of schema change
type ChangeType string

const (
	ChangeTypeAddField ChangeType = "ADD_FIELD"
	// ChangeTypeOverrideField replaces an input field with the operation's
	// declared generated field.
	ChangeTypeOverrideField ChangeType = "OVERRIDE_FIELD"
)

// Change represents a single change in a schema
type Change struct {
	Type    ChangeType        `json:"type"`
	Field   string            `json:"field"`
	OldType dataset.FieldType `json:"old_type,omitempty"`
	NewType dataset.FieldType `json:"new_type"`
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	Schema     dataset.Schema
	Changes    []Change
	Overridden []string
}

// Notes renders one human readable line per overridden field.
func (m MergeResult) Notes() []string {
	var notes []string
	for _, c := range m.Changes {
		if c.Type == ChangeTypeOverrideField {
			notes = append(notes, fmt.Sprintf("field %q overridden (%s -> %s)", c.Field, c.OldType, c.NewType))
		}
	}
	return notes
}

// Merge appends produced fields to old. The old fields keep their order and
// new fields follow in first-seen order. A produced field that already exists
// is a FieldCollision error unless its name equals override, in which case the
// existing field takes the produced type in place.
func Merge(old dataset.Schema, produced []dataset.Field, override string) (MergeResult, error) {
	out := old.Clone()
	var res MergeResult

	for _, f := range produced {
		i := out.Index(f.Name)
		if i < 0 {
			out.Fields = append(out.Fields, f)
			res.Changes = append(res.Changes, Change{Type: ChangeTypeAddField, Field: f.Name, NewType: f.Type})
			continue
		}
		if override == "" || f.Name != override {
			return MergeResult{}, errors.New(errors.ErrorTypeFieldCollision,
				fmt.Sprintf("produced field %q already exists in the input schema", f.Name)).
				WithDetail(errors.DetailField, f.Name)
		}
		res.Changes = append(res.Changes, Change{
			Type:    ChangeTypeOverrideField,
			Field:   f.Name,
			OldType: out.Fields[i].Type,
			NewType: f.Type,
		})
		res.Overridden = append(res.Overridden, f.Name)
		out.Fields[i] = f
	}

	res.Schema = out
	return res, nil
}

// CollectProduced gathers the fields present in per-record outputs, in
// first-seen order. Types follow dataset.ObserveType and a field is Required
// when every output carries a non-null value for it.
func CollectProduced(outputs []dataset.Record) []dataset.Field {
	return dataset.InferSchema(outputs).Fields
}
