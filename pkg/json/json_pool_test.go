package json

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsMapKeys(t *testing.T) {
	a, err := Marshal(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(a))
}

func TestUnmarshalUseNumberKeepsIntegers(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, UnmarshalUseNumber([]byte(`{"n":3,"f":2.5}`), &out))

	n, ok := out["n"].(Number)
	require.True(t, ok)
	i, err := n.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), i)

	f, ok := out["f"].(Number)
	require.True(t, ok)
	assert.Equal(t, "2.5", f.String())
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf)
	require.NoError(t, lw.Write(map[string]string{"text": "<a b>"}))
	require.NoError(t, lw.Write(map[string]int{"length": 2}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"text":"<a b>"}`, lines[0])
	assert.Equal(t, `{"length":2}`, lines[1])
}

func TestMarshalToBuffer(t *testing.T) {
	buf, err := MarshalToBuffer([]int{1, 2})
	require.NoError(t, err)
	defer PutBuffer(buf)
	assert.Equal(t, "[1,2]\n", buf.String())
}

func BenchmarkMarshalRecordMap(b *testing.B) {
	rec := map[string]interface{}{"text": "a b c", "length": 3, "tags": []interface{}{"x", "y"}}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Marshal(rec); err != nil {
			b.Fatal(err)
		}
	}
}
