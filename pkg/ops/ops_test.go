package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/datalab/pkg/cache"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/engine"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/operation"
	"github.com/ajitpratap0/datalab/pkg/testutil"
)

func materialize(t *testing.T, src *dataset.Dataset, op *operation.Descriptor) *dataset.Dataset {
	t.Helper()
	e := engine.New(engine.WithLogger(zaptest.NewLogger(t)))
	out, err := e.Materialize(context.Background(), src, op)
	require.NoError(t, err)
	return out
}

func field(t *testing.T, r dataset.Record, name string) interface{} {
	t.Helper()
	v, ok := r.Get(name)
	require.True(t, ok, "missing field %s in %s", name, r)
	return v
}

func TestRegisterAll(t *testing.T) {
	reg := operation.NewRegistry()
	require.NoError(t, RegisterAll(reg))

	for _, name := range []string{
		"add_typo", "get_length", "lower", "strip_punctuation", "tokenize",
		"get_average_length", "get_vocabulary", "get_label_distribution",
		"get_feature_averages", "prompt_sentiment",
	} {
		assert.True(t, reg.Has(name), name)
	}
	assert.Len(t, reg.List(), len(All()))

	err := RegisterAll(reg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "registering twice is rejected")
}

func TestPreprocessing(t *testing.T) {
	src := testutil.TextDataset("d", "Hello, World!  Again")

	out := materialize(t, src, GetLength)
	assert.Equal(t, int64(3), field(t, out.Record(0), "length"))

	out = materialize(t, src, Lower)
	assert.Equal(t, "hello, world!  again", field(t, out.Record(0), "text_lower"))

	out = materialize(t, src, StripPunctuation)
	assert.Equal(t, "Hello World Again", field(t, out.Record(0), "text_stripped"))

	out = materialize(t, src, Tokenize)
	assert.Equal(t, []interface{}{"Hello,", "World!", "Again"}, field(t, out.Record(0), "text_tokenize"))

	out = materialize(t, src, Tokenize.WithResources(map[string]interface{}{"lowercase": true}))
	assert.Equal(t, []interface{}{"hello,", "world!", "again"}, field(t, out.Record(0), "text_tokenize"))
}

func isAdjacentSwap(orig, edited string) bool {
	a, b := []rune(orig), []rune(edited)
	if len(a) != len(b) {
		return false
	}
	for j := 0; j+1 < len(a); j++ {
		if a[j] != b[j] {
			return a[j] == b[j+1] && a[j+1] == b[j] && string(a[j+2:]) == string(b[j+2:])
		}
	}
	return false
}

func TestAddTypo(t *testing.T) {
	texts := []string{"abcdefgh ijklmnop", "qrstuvwx yz", "the quick brown fox", "a"}
	src := testutil.TextDataset("d", texts...)
	always := AddTypo.WithResources(map[string]interface{}{"prob": 1.0, "seed": 7})

	out := materialize(t, src, always)
	for i, text := range texts {
		got := field(t, out.Record(i), "text_typo").(string)
		words, edited := strings.Fields(text), strings.Fields(got)
		require.Len(t, edited, len(words))
		for j := range words {
			if len([]rune(words[j])) < 2 {
				assert.Equal(t, words[j], edited[j])
				continue
			}
			assert.True(t, isAdjacentSwap(words[j], edited[j]), "%q -> %q", words[j], edited[j])
		}
	}

	e := engine.New(engine.WithLogger(zaptest.NewLogger(t)), engine.WithNumProc(3))
	sharded, err := e.Materialize(context.Background(), src, always)
	require.NoError(t, err)
	testutil.RequireSameRecords(t, out, sharded)

	never := materialize(t, src, AddTypo.WithResources(map[string]interface{}{"prob": 0}))
	for i, text := range texts {
		assert.Equal(t, text, field(t, never.Record(i), "text_typo"))
	}

	_, err = e.Materialize(context.Background(), src, AddTypo.WithResources(map[string]interface{}{"prob": 2}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCallable))
}

func TestAddTypoSeedChangesCacheKey(t *testing.T) {
	store, err := cache.NewBlobStore(cache.NewMemoryBackend(), nil)
	require.NoError(t, err)
	e := engine.New(engine.WithLogger(zaptest.NewLogger(t)), engine.WithStore(store))
	src := testutil.TextDataset("d", "abcdefgh ijklmnop qrstuvwx", "yzabcdef ghijklmn")
	apply := func(seed int) *engine.Result {
		op := AddTypo.WithResources(map[string]interface{}{"prob": 1.0, "seed": seed})
		res, err := e.Apply(context.Background(), src, op, engine.ApplyOptions{Mode: engine.Persisting})
		require.NoError(t, err)
		return res
	}

	base := apply(0)
	assert.False(t, base.CacheHit)
	assert.True(t, apply(0).CacheHit)

	differs := false
	for seed := 1; seed <= 5; seed++ {
		res := apply(seed)
		assert.False(t, res.CacheHit, "seed %d", seed)
		assert.NotEqual(t, base.Fingerprint, res.Fingerprint)
		for i := 0; i < src.Len(); i++ {
			if !res.Dataset.Record(i).Equal(base.Dataset.Record(i)) {
				differs = true
			}
		}
	}
	assert.True(t, differs, "seeds produce different typos")
}

func TestTextOperationsRejectNumericFields(t *testing.T) {
	op, err := GetLength.WithProcessedFields("id")
	require.NoError(t, err)
	src := dataset.FromMaps("d", []map[string]interface{}{{"id": 7}})

	_, err = engine.New(engine.WithLogger(zaptest.NewLogger(t))).Materialize(context.Background(), src, op)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedCategory))
}

func TestAggregates(t *testing.T) {
	src := testutil.TextDataset("d", "a b", "c d e")

	out := materialize(t, src, GetAverageLength)
	assert.Equal(t, 2.5, out.Statistics()["avg_length"])

	out = materialize(t, testutil.TextDataset("d", "The cat", "the dog"), GetVocabulary)
	stats := out.Statistics()
	assert.Equal(t, map[string]interface{}{"the": int64(2), "cat": int64(1), "dog": int64(1)}, stats["vocabulary"])
	assert.Equal(t, int64(3), stats["vocabulary_size"])
}

func TestLabelDistribution(t *testing.T) {
	src := dataset.FromMaps("d", []map[string]interface{}{
		{"text": "good", "label": "pos"},
		{"text": "great", "label": "pos"},
		{"text": "bad", "label": "neg"},
		{"text": "fine", "label": "pos"},
	})
	out := materialize(t, src, GetLabelDistribution)
	stats := out.Statistics()
	assert.Equal(t, map[string]interface{}{"pos": int64(3), "neg": int64(1)}, stats["label_distribution"])
	assert.InDelta(t, 1.0/3.0, stats["imbalance_ratio"], 1e-9)

	relabeled := GetLabelDistribution.WithResources(map[string]interface{}{"label_field": "missing"})
	_, err := engine.New(engine.WithLogger(zaptest.NewLogger(t))).Materialize(context.Background(), src, relabeled)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCallable))
}

func TestFeatureAverages(t *testing.T) {
	src := dataset.FromMaps("d", []map[string]interface{}{
		{"text": "a", "length": 1, "score": 0.5, "label": 1},
		{"text": "b c d", "length": 3, "score": 1.5, "label": 0},
	})
	out := materialize(t, src, GetFeatureAverages)
	assert.Equal(t, map[string]interface{}{"length": 2.0, "score": 1.0}, out.Statistics())
}

func TestPrompts(t *testing.T) {
	out := materialize(t, testutil.TextDataset("d", "loved it"), PromptSentiment)
	assert.Equal(t, "Review: loved it\nSentiment:", field(t, out.Record(0), "prompt"))

	nli, err := PromptTemplate("prompt_nli", "{premise} Question: {hypothesis}? {{yes}}")
	require.NoError(t, err)
	assert.Equal(t, []string{"premise", "hypothesis"}, nli.ProcessedFields())

	src := dataset.FromMaps("d", []map[string]interface{}{{"premise": "It rains", "hypothesis": "it is wet"}})
	out = materialize(t, src, nli)
	assert.Equal(t, "It rains Question: it is wet? {yes}", field(t, out.Record(0), "prompt"))

	_, err = engine.New(engine.WithLogger(zaptest.NewLogger(t))).Materialize(context.Background(), testutil.TextDataset("d", "x"), nli)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFieldNotFound))
}
