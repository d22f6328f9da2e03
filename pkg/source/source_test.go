package source

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/datalab/pkg/compression"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/testutil"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path   string
		format Format
		algo   compression.Algorithm
	}{
		{"a.jsonl", FormatJSONL, compression.None},
		{"dir/a.NDJSON", FormatJSONL, compression.None},
		{"a.csv", FormatCSV, compression.None},
		{"a.jsonl.zst", FormatJSONL, compression.Zstd},
		{"a.csv.gz", FormatCSV, compression.Gzip},
		{"a.jsonl.lz4", FormatJSONL, compression.LZ4},
	}
	for _, tc := range cases {
		f, a, err := DetectFormat(tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.format, f, tc.path)
		assert.Equal(t, tc.algo, a, tc.path)
	}
	_, _, err := DetectFormat("a.parquet")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestReadJSONL(t *testing.T) {
	in := "{\"text\":\"a b\",\"id\":1}\n\n{\"id\":2,\"text\":\"c\",\"score\":0.5}\n"
	ds, err := ReadJSONL(strings.NewReader(in), "docs")
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"text", "id", "score"}, ds.Schema().Names())
	assert.Equal(t, []string{"id", "text", "score"}, ds.Record(1).Keys())
	id, _ := ds.Record(0).Get("id")
	assert.Equal(t, int64(1), id)

	again, err := ReadJSONL(strings.NewReader(in), "other")
	require.NoError(t, err)
	assert.Equal(t, ds.Fingerprint(), again.Fingerprint())
}

func TestReadJSONLReportsLine(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"a\":1}\n[1,2]\n"), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadCSV(t *testing.T) {
	in := "text,count,ratio,ok\nhello,3,0.5,true\nworld,,x,false\n"

	raw, err := ReadCSV(strings.NewReader(in), "c", false)
	require.NoError(t, err)
	v, _ := raw.Record(0).Get("count")
	assert.Equal(t, "3", v)

	typed, err := ReadCSV(strings.NewReader(in), "c", true)
	require.NoError(t, err)
	r0 := typed.Record(0)
	count, _ := r0.Get("count")
	ratio, _ := r0.Get("ratio")
	ok, _ := r0.Get("ok")
	assert.Equal(t, int64(3), count)
	assert.Equal(t, 0.5, ratio)
	assert.Equal(t, true, ok)

	r1 := typed.Record(1)
	empty, _ := r1.Get("count")
	assert.Nil(t, empty)

	f, _ := typed.Schema().Field("ratio")
	assert.Equal(t, dataset.TypeMixed, f.Type)
	f, _ = typed.Schema().Field("count")
	assert.Equal(t, dataset.TypeInt, f.Type)
	assert.False(t, f.Required)

	empty2, err := ReadCSV(strings.NewReader(""), "e", true)
	require.NoError(t, err)
	assert.Zero(t, empty2.Len())
}

func TestWriteJSONLPreservesOrderAndFloats(t *testing.T) {
	rec := dataset.NewRecord([]string{"z", "a", "f"}, []interface{}{"x", 1, 2.0})
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []dataset.Record{rec}))
	assert.Equal(t, "{\"z\":\"x\",\"a\":1,\"f\":2.0}\n", buf.String())

	back, err := ReadJSONL(&buf, "rt")
	require.NoError(t, err)
	assert.True(t, rec.Equal(back.Record(0)))
}

func TestFileRoundTripWithCompression(t *testing.T) {
	dir := t.TempDir()
	src := testutil.TextDataset("d", "a b", "c d e")

	for _, name := range []string{"out.jsonl", "out.jsonl.zst", "out.jsonl.gz", "out.ndjson.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, src.RecordSlice()))

			back, err := ReadFile(path, Options{})
			require.NoError(t, err)
			assert.Equal(t, "out", back.Name())
			testutil.RequireSameRecords(t, src, back)
			assert.Equal(t, src.Fingerprint(), back.Fingerprint())
		})
	}
}

func TestReadFileGeneratedData(t *testing.T) {
	dir := t.TempDir()
	path := testutil.CreateTestData(t, dir, 5)

	ds, err := ReadFile(path, Options{Name: "gen"})
	require.NoError(t, err)
	assert.Equal(t, "gen", ds.Name())
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, []string{"id", "text"}, ds.Schema().Names())
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"), Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o644))
	_, err = ReadFile(path, Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	ds, err := ReadFile(path, Options{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}
