package fingerprint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() Input {
	return Input{
		Base:            "0123456789abcdef",
		Operation:       "get_length",
		Category:        "per_record",
		Resources:       map[string]interface{}{"sep": " ", "min": 1},
		ProcessedFields: []string{"text"},
		Mode:            "persisting",
		Params:          map[string]interface{}{"num_proc": 1},
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute(baseInput())
	require.NoError(t, err)
	b, err := Compute(baseInput())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 32)
}

func TestComputeIgnoresResourceInsertionOrder(t *testing.T) {
	in := baseInput()
	in.Resources = map[string]interface{}{"min": 1, "sep": " "}
	a, err := Compute(in)
	require.NoError(t, err)
	b, err := Compute(baseInput())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeIsSensitiveToEveryComponent(t *testing.T) {
	ref, err := Compute(baseInput())
	require.NoError(t, err)

	mutations := map[string]func(*Input){
		"base":             func(in *Input) { in.Base = "fedcba9876543210" },
		"operation":        func(in *Input) { in.Operation = "lower" },
		"version":          func(in *Input) { in.Version = "2" },
		"category":         func(in *Input) { in.Category = "aggregate" },
		"resource value":   func(in *Input) { in.Resources["min"] = 2 },
		"resource added":   func(in *Input) { in.Resources["max"] = 9 },
		"resource type":    func(in *Input) { in.Resources["min"] = 1.0 },
		"nested type":      func(in *Input) { in.Resources["min"] = []interface{}{1} },
		"processed fields": func(in *Input) { in.ProcessedFields = []string{"body"} },
		"generated field":  func(in *Input) { in.GeneratedField = "length" },
		"mode":             func(in *Input) { in.Mode = "materializing" },
		"num_proc":         func(in *Input) { in.Params["num_proc"] = 4 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			got, err := Compute(in)
			require.NoError(t, err)
			assert.NotEqual(t, ref, got)
		})
	}
}

func TestComputeKeepsNumericTypesApart(t *testing.T) {
	withScale := func(v interface{}) Fingerprint {
		in := baseInput()
		in.Resources = map[string]interface{}{"scale": map[string]interface{}{"x": v}}
		fp, err := Compute(in)
		require.NoError(t, err)
		return fp
	}
	assert.NotEqual(t, withScale(int64(2)), withScale(2.0))
	assert.NotEqual(t, withScale("2"), withScale(int64(2)))
	assert.Equal(t, withScale(2), withScale(int64(2)), "integer kinds hash alike")
	assert.Equal(t, withScale(uint32(2)), withScale(int64(2)))
	assert.Equal(t, withScale(float32(0.5)), withScale(0.5))
}

func TestComputeFieldBoundaries(t *testing.T) {
	a := baseInput()
	a.ProcessedFields = []string{"ab", "c"}
	b := baseInput()
	b.ProcessedFields = []string{"a", "bc"}

	fa, err := Compute(a)
	require.NoError(t, err)
	fb, err := Compute(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

func TestComputeUnhashableResources(t *testing.T) {
	in := baseInput()
	in.Resources["fn"] = func() {}
	_, err := Compute(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnhashable))
}

func TestRandomIsUnique(t *testing.T) {
	assert.NotEqual(t, Random(), Random())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", Fingerprint("abc").Short())
	assert.Equal(t, "0123456789ab", Fingerprint("0123456789abcdef").Short())
}
