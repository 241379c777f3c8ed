package match

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// similarityDiscount reflects that vector similarity is a weaker signal than
// identifier or name agreement.
const similarityDiscount = 0.95

// Embedder turns text into a fixed-length vector. The similarity strategy is
// an optional capability; a nil Embedder disables it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Similarity matches on embedding cosine similarity over a text
// representation of each candidate (name, type, location, description).
type Similarity struct {
	embedder Embedder

	// MinScore is the minimum cosine similarity to report. Zero means 0.5.
	MinScore float64
}

// NewSimilarity creates a Similarity matcher. A nil embedder yields a
// matcher whose Available reports false.
func NewSimilarity(embedder Embedder) *Similarity {
	return &Similarity{embedder: embedder}
}

// Available reports whether a similarity backend is configured.
func (s *Similarity) Available() bool {
	return s != nil && s.embedder != nil
}

// Match compares the source against candidates by embedding similarity.
func (s *Similarity) Match(ctx context.Context, source Candidate, candidates []Candidate) ([]Result, error) {
	if !s.Available() {
		return nil, nil
	}

	minScore := s.MinScore
	if minScore <= 0 {
		minScore = 0.5
	}

	srcVec, err := s.embedder.Embed(ctx, source.text())
	if err != nil {
		return nil, eris.Wrap(err, "match: embed source")
	}

	var results []Result
	for _, cand := range candidates {
		if cand.EntityID == source.EntityID {
			continue
		}
		candVec, err := s.embedder.Embed(ctx, cand.text())
		if err != nil {
			zap.L().Warn("similarity: embed candidate failed",
				zap.String("entity_id", cand.EntityID),
				zap.Error(err),
			)
			continue
		}

		score := cosine(srcVec, candVec)
		if score < minScore {
			continue
		}

		results = append(results, Result{
			Source:     source,
			Target:     cand,
			Strategy:   StrategySimilarity,
			Confidence: score * similarityDiscount,
			Details: map[string]string{
				"cosine": fmt.Sprintf("%.3f", score),
			},
		})
	}

	sortByConfidence(results)
	return results, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
