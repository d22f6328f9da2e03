package operation

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/datalab/pkg/errors"
)

// Template builds a PerRecord operation that renders tmpl for every record.
// Placeholders are written {field} and are substituted with the field value;
// "{{" and "}}" produce literal braces. The placeholders become the processed
// fields, so a placeholder naming a missing field fails the apply before any
// record is rendered. Nothing in the template is evaluated.
func Template(name, tmpl string, opts ...Option) (*Descriptor, error) {
	parts, fields, err := parseTemplate(tmpl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("operation %s: invalid template", name))
	}
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("operation %s: template has no placeholders", name))
	}

	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		pos[f] = i
	}

	render := func(arg interface{}, _ Resources) (interface{}, error) {
		var values []interface{}
		if len(fields) == 1 {
			values = []interface{}{arg}
		} else {
			tuple, ok := arg.([]interface{})
			if !ok || len(tuple) != len(fields) {
				return nil, fmt.Errorf("expected %d values, got %T", len(fields), arg)
			}
			values = tuple
		}

		var sb strings.Builder
		for _, p := range parts {
			if !p.placeholder {
				sb.WriteString(p.text)
				continue
			}
			v := values[pos[p.text]]
			if s, ok := v.(string); ok {
				sb.WriteString(s)
			} else {
				fmt.Fprint(&sb, v)
			}
		}
		return sb.String(), nil
	}

	opts = append([]Option{
		WithProcessedFields(fields...),
		WithResources(map[string]interface{}{"template": tmpl}),
		WithTask("prompting"),
	}, opts...)
	return New(name, render, opts...)
}

type templatePart struct {
	text        string
	placeholder bool
}

// parseTemplate splits tmpl into literal and placeholder parts. fields lists
// each placeholder once, in first-seen order.
func parseTemplate(tmpl string) ([]templatePart, []string, error) {
	var parts []templatePart
	var fields []string
	seen := make(map[string]bool)
	var lit strings.Builder

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, nil, fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			field := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if field == "" || strings.ContainsAny(field, "{") {
				return nil, nil, fmt.Errorf("invalid placeholder at offset %d", i)
			}
			if lit.Len() > 0 {
				parts = append(parts, templatePart{text: lit.String()})
				lit.Reset()
			}
			parts = append(parts, templatePart{text: field, placeholder: true})
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
			i += end + 1
		case c == '}':
			return nil, nil, fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		parts = append(parts, templatePart{text: lit.String()})
	}
	return parts, fields, nil
}
