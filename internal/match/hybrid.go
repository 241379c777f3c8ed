package match

import (
	"context"

	"go.uber.org/zap"
)

// Hybrid cascades the strategies: deterministic first, then fuzzy over the
// unclaimed remainder, then similarity (when available) over what is left.
// A target appears at most once in the merged result set; the first strategy
// to claim it wins.
type Hybrid struct {
	Deterministic Deterministic
	Fuzzy         Fuzzy
	Similarity    *Similarity
}

// NewHybrid creates a hybrid matcher. similarity may be nil.
func NewHybrid(scoreFloor float64, similarity *Similarity) *Hybrid {
	return &Hybrid{
		Fuzzy:      Fuzzy{ScoreFloor: scoreFloor},
		Similarity: similarity,
	}
}

// Match runs the cascade and returns all surviving results sorted by
// confidence descending.
func (h *Hybrid) Match(ctx context.Context, source Candidate, candidates []Candidate) ([]Result, error) {
	claimed := make(map[string]bool, len(candidates))
	var merged []Result

	detResults := h.Deterministic.Match(source, candidates)
	for _, r := range detResults {
		claimed[r.Target.EntityID] = true
	}
	merged = append(merged, detResults...)

	remaining := unclaimed(candidates, claimed)
	fuzzyResults := h.Fuzzy.Match(source, remaining)
	for _, r := range fuzzyResults {
		claimed[r.Target.EntityID] = true
	}
	merged = append(merged, fuzzyResults...)

	if h.Similarity.Available() {
		remaining = unclaimed(candidates, claimed)
		simResults, err := h.Similarity.Match(ctx, source, remaining)
		if err != nil {
			// Similarity is a best-effort tier; its failure never masks the
			// deterministic and fuzzy results already in hand.
			zap.L().Warn("hybrid: similarity pass failed", zap.Error(err))
		} else {
			merged = append(merged, simResults...)
		}
	}

	sortByConfidence(merged)
	return merged, nil
}

func unclaimed(candidates []Candidate, claimed map[string]bool) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !claimed[c.EntityID] {
			out = append(out, c)
		}
	}
	return out
}
