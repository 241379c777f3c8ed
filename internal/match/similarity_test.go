package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity_Unavailable(t *testing.T) {
	var nilMatcher *Similarity
	assert.False(t, nilMatcher.Available())
	assert.False(t, NewSimilarity(nil).Available())

	results, err := NewSimilarity(nil).Match(context.Background(),
		Candidate{EntityID: "src"}, []Candidate{{EntityID: "tgt"}})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestSimilarity_DiscountsScore(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Echo Foundation"}
	target := Candidate{EntityID: "tgt", Name: "Echo Fund"}

	emb := &stubEmbedder{vectors: map[string][]float32{
		source.text(): {1, 0},
		target.text(): {1, 0},
	}}

	results, err := NewSimilarity(emb).Match(context.Background(), source, []Candidate{target})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, similarityDiscount, results[0].Confidence, 1e-9,
		"perfect cosine must be discounted to 0.95")
}

func TestSimilarity_BelowMinScoreDropped(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Foxtrot Society"}
	target := Candidate{EntityID: "tgt", Name: "Orthogonal Concern"}

	emb := &stubEmbedder{vectors: map[string][]float32{
		source.text(): {1, 0},
		target.text(): {0, 1},
	}}

	results, err := NewSimilarity(emb).Match(context.Background(), source, []Candidate{target})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}
