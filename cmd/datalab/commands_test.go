package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/datalab/pkg/errors"
)

func TestParseResources(t *testing.T) {
	got := parseResources(map[string]string{
		"n":         "3",
		"ratio":     "0.5",
		"lowercase": "true",
		"label":     "sentiment",
	})
	assert.Equal(t, map[string]interface{}{
		"n":         int64(3),
		"ratio":     0.5,
		"lowercase": true,
		"label":     "sentiment",
	}, got)
}

func TestResolveOperation(t *testing.T) {
	desc, err := resolveOperation(&applyFlags{
		op:             "get_length",
		fields:         []string{"body"},
		generatedField: "words",
		resources:      map[string]string{"k": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"body"}, desc.ProcessedFields())
	assert.Equal(t, "words", desc.GeneratedField())
	v, ok := desc.Resources().Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	desc, err = resolveOperation(&applyFlags{template: "Q: {question} A:"})
	require.NoError(t, err)
	assert.Equal(t, []string{"question"}, desc.ProcessedFields())
	assert.Equal(t, "prompt", desc.OutputField())

	_, err = resolveOperation(&applyFlags{op: "no_such_op"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
