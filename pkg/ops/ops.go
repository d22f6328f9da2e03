// Package ops provides the built-in featurizing, preprocessing, aggregating
// and prompting operations.
package ops

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/operation"
)

const contributor = "datalab"

// GetLength counts the whitespace separated words of a text.
var GetLength = operation.Must(operation.New("get_length",
	operation.TextFunc(func(text string, _ operation.Resources) (interface{}, error) {
		return map[string]interface{}{"length": len(strings.Fields(text))}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithTask("featurizing"),
	operation.WithContributor(contributor),
	operation.WithDescription("count the words of a text"),
))

// Lower lowercases a text into text_lower.
var Lower = operation.Must(operation.New("lower",
	operation.TextFunc(func(text string, _ operation.Resources) (interface{}, error) {
		return map[string]interface{}{"text_lower": strings.ToLower(text)}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithTask("preprocessing"),
	operation.WithContributor(contributor),
	operation.WithDescription("lowercase a text"),
))

// StripPunctuation removes Unicode punctuation and collapses the remaining
// whitespace.
var StripPunctuation = operation.Must(operation.New("strip_punctuation",
	operation.TextFunc(func(text string, _ operation.Resources) (interface{}, error) {
		stripped := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) {
				return -1
			}
			return r
		}, text)
		return strings.Join(strings.Fields(stripped), " "), nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithGeneratedField("text_stripped"),
	operation.WithTask("preprocessing"),
	operation.WithContributor(contributor),
	operation.WithDescription("remove punctuation from a text"),
))

// AddTypo swaps two adjacent letters in randomly chosen words, writing the
// result to text_typo. The "prob" resource is the chance that a word is
// edited and "seed" selects the edits. The random source is derived from the
// seed and the text, so a record gets the same typos however the dataset is
// sharded.
var AddTypo = operation.Must(operation.New("add_typo",
	operation.TextFunc(func(text string, res operation.Resources) (interface{}, error) {
		prob := res.Float("prob", 0.1)
		if prob < 0 || prob > 1 {
			return nil, fmt.Errorf("prob must be within [0, 1], got %v", prob)
		}
		rng := rand.New(rand.NewPCG(uint64(res.Int("seed", 0)), xxh3.HashString(text)))
		words := strings.Fields(text)
		for i, w := range words {
			runes := []rune(w)
			if len(runes) < 2 || rng.Float64() >= prob {
				continue
			}
			j := rng.IntN(len(runes) - 1)
			runes[j], runes[j+1] = runes[j+1], runes[j]
			words[i] = string(runes)
		}
		return map[string]interface{}{"text_typo": strings.Join(words, " ")}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithResources(map[string]interface{}{"seed": 0, "prob": 0.1}),
	operation.WithTask("editing"),
	operation.WithContributor(contributor),
	operation.WithDescription("inject adjacent-letter swap typos into a text"),
))

// Tokenize splits a text on whitespace into text_tokenize. The "lowercase"
// resource lowercases tokens.
var Tokenize = operation.Must(operation.New("tokenize",
	operation.TextFunc(func(text string, res operation.Resources) (interface{}, error) {
		return map[string]interface{}{"text_tokenize": tokens(text, res.Bool("lowercase", false))}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithTask("preprocessing"),
	operation.WithContributor(contributor),
	operation.WithDescription("split a text into tokens"),
))

// GetAverageLength computes the mean word count of all texts.
var GetAverageLength = operation.Must(operation.NewAggregate("get_average_length",
	operation.TextAggregate(func(texts []string, _ operation.Resources) (interface{}, error) {
		if len(texts) == 0 {
			return map[string]interface{}{"avg_length": 0.0}, nil
		}
		total := 0
		for _, t := range texts {
			total += len(strings.Fields(t))
		}
		return map[string]interface{}{"avg_length": float64(total) / float64(len(texts))}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithTask("aggregating"),
	operation.WithContributor(contributor),
	operation.WithDescription("average word count of a dataset"),
))

// GetVocabulary counts token occurrences over all texts. Tokens are
// lowercased unless the "lowercase" resource is false.
var GetVocabulary = operation.Must(operation.NewAggregate("get_vocabulary",
	operation.TextAggregate(func(texts []string, res operation.Resources) (interface{}, error) {
		lower := res.Bool("lowercase", true)
		vocab := make(map[string]interface{})
		for _, t := range texts {
			for _, tok := range tokens(t, lower) {
				n, _ := vocab[tok].(int)
				vocab[tok] = n + 1
			}
		}
		return map[string]interface{}{"vocabulary": vocab, "vocabulary_size": len(vocab)}, nil
	}),
	operation.WithShape(operation.ShapeText),
	operation.WithTask("aggregating"),
	operation.WithContributor(contributor),
	operation.WithDescription("token frequencies of a dataset"),
))

// GetLabelDistribution counts records per label and reports the ratio of
// the rarest to the most frequent label. The label field is named by the
// "label_field" resource and defaults to "label".
var GetLabelDistribution = operation.Must(operation.NewAggregate("get_label_distribution",
	operation.RecordsAggregate(func(records []dataset.Record, res operation.Resources) (interface{}, error) {
		field := res.String("label_field", "label")
		counts := make(map[string]int)
		for i, r := range records {
			v, ok := r.Get(field)
			if !ok {
				return nil, fmt.Errorf("record %d has no %q field", i, field)
			}
			counts[fmt.Sprint(v)]++
		}
		dist := make(map[string]interface{}, len(counts))
		lo, hi := 0, 0
		for label, n := range counts {
			dist[label] = n
			if lo == 0 || n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
		ratio := 0.0
		if hi > 0 {
			ratio = float64(lo) / float64(hi)
		}
		return map[string]interface{}{"label_distribution": dist, "imbalance_ratio": ratio}, nil
	}),
	operation.WithShape(operation.ShapeRecord),
	operation.WithResources(map[string]interface{}{"label_field": "label"}),
	operation.WithTask("text-classification"),
	operation.WithContributor(contributor),
	operation.WithDescription("label distribution of a classification dataset"),
))

// GetFeatureAverages averages every numeric field across records. The
// "label" field is skipped.
var GetFeatureAverages = operation.Must(operation.NewAggregate("get_feature_averages",
	operation.RecordsAggregate(func(records []dataset.Record, _ operation.Resources) (interface{}, error) {
		sums := make(map[string]float64)
		for _, r := range records {
			r.Range(func(k string, v interface{}) bool {
				if k == "label" {
					return true
				}
				switch x := v.(type) {
				case int64:
					sums[k] += float64(x)
				case float64:
					sums[k] += x
				}
				return true
			})
		}
		out := make(map[string]interface{}, len(sums))
		for k, s := range sums {
			out[k] = s / float64(len(records))
		}
		return out, nil
	}),
	operation.WithShape(operation.ShapeRecord),
	operation.WithTask("aggregating"),
	operation.WithContributor(contributor),
	operation.WithDescription("average of every numeric feature"),
))

// PromptSentiment renders a sentiment classification prompt from a text.
var PromptSentiment = operation.Must(operation.Template("prompt_sentiment",
	"Review: {text}\nSentiment:",
	operation.WithGeneratedField("prompt"),
	operation.WithContributor(contributor),
	operation.WithDescription("sentiment classification prompt"),
))

// PromptTemplate builds a prompting operation from a template with {field}
// placeholders. The rendered prompt is stored in the "prompt" field unless
// opts say otherwise.
func PromptTemplate(name, tmpl string, opts ...operation.Option) (*operation.Descriptor, error) {
	opts = append([]operation.Option{
		operation.WithGeneratedField("prompt"),
		operation.WithContributor(contributor),
	}, opts...)
	return operation.Template(name, tmpl, opts...)
}

// All returns every built-in operation, sorted by name.
func All() []*operation.Descriptor {
	all := []*operation.Descriptor{
		AddTypo,
		GetLength,
		Lower,
		StripPunctuation,
		Tokenize,
		GetAverageLength,
		GetVocabulary,
		GetLabelDistribution,
		GetFeatureAverages,
		PromptSentiment,
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}

// RegisterAll adds every built-in operation to reg.
func RegisterAll(reg *operation.Registry) error {
	for _, d := range All() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func tokens(text string, lower bool) []string {
	fields := strings.Fields(text)
	if lower {
		for i, f := range fields {
			fields[i] = strings.ToLower(f)
		}
	}
	return fields
}
