// Package resolver decides whether a newly seen entity description maps to
// an existing entity, a review candidate, or a genuinely new entity, and
// carries out merges and human-review reconciliation.
package resolver

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/match"
)

// State classifies a resolution outcome.
type State string

const (
	StateResolved   State = "resolved"
	StateCandidate  State = "candidate"
	StateUnresolved State = "unresolved"
)

// Thresholds are the resolver's confidence bands.
type Thresholds struct {
	// Fuzzy is the minimum confidence for a candidate outcome.
	Fuzzy float64
	// AutoMerge is the minimum confidence for an automatic resolved outcome.
	AutoMerge float64
	// Review is the minimum confidence for queueing a reconciliation task in
	// the cross-jurisdiction path.
	Review float64
	// ScoreFloor is passed through to the fuzzy matcher.
	ScoreFloor float64
}

// DefaultThresholds mirror the engine's config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fuzzy:      0.75,
		AutoMerge:  0.92,
		Review:     0.75,
		ScoreFloor: 0.4,
	}
}

// Resolution is the outcome of one resolve call. Match is nil when
// unresolved with no surviving candidates.
type Resolution struct {
	State      State
	Match      *match.Result
	Confidence float64
	Strategy   match.Strategy
}

// Resolver runs the deterministic-then-fuzzy cascade and applies merges.
type Resolver struct {
	graph      entity.GraphStore
	hybrid     *match.Hybrid
	thresholds Thresholds
}

// New creates a Resolver. hybrid supplies the match strategies; its
// similarity tier is used only by the cross-jurisdiction path.
func New(graph entity.GraphStore, hybrid *match.Hybrid, thresholds Thresholds) *Resolver {
	return &Resolver{graph: graph, hybrid: hybrid, thresholds: thresholds}
}

// Resolve maps source onto one of the candidates. A deterministic identifier
// match is definitive; otherwise the best fuzzy result is banded into
// resolved, candidate, or unresolved.
func (r *Resolver) Resolve(_ context.Context, source match.Candidate, candidates []match.Candidate, autoMerge bool) Resolution {
	if det := r.hybrid.Deterministic.Match(source, candidates); len(det) > 0 {
		return Resolution{
			State:      StateResolved,
			Match:      &det[0],
			Confidence: det[0].Confidence,
			Strategy:   match.StrategyDeterministic,
		}
	}

	fuzzy := r.hybrid.Fuzzy.Match(source, candidates)
	if len(fuzzy) == 0 {
		return Resolution{State: StateUnresolved}
	}

	best := fuzzy[0]
	res := Resolution{
		Match:      &best,
		Confidence: best.Confidence,
		Strategy:   match.StrategyFuzzy,
	}
	switch {
	case best.Confidence >= r.thresholds.AutoMerge && autoMerge:
		res.State = StateResolved
	case best.Confidence >= r.thresholds.Fuzzy:
		res.State = StateCandidate
	default:
		res.State = StateUnresolved
	}
	return res
}

// DuplicatePair is one suspected duplicate found by FindDuplicates.
type DuplicatePair struct {
	Left       match.Candidate
	Right      match.Candidate
	Confidence float64
	Strategy   match.Strategy
}

// FindDuplicates scans all entities of a type for suspected duplicates. Each
// entity is resolved against the not-yet-checked remainder; both sides of a
// match are marked checked so a pair is reported once. Quadratic in the
// worst case, intended as an offline maintenance job.
func (r *Resolver) FindDuplicates(ctx context.Context, entityType string, limit int) ([]DuplicatePair, error) {
	entities, err := r.graph.ListByType(ctx, entityType, limit)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: load duplicate scan set")
	}

	candidates := make([]match.Candidate, len(entities))
	for i := range entities {
		candidates[i] = match.CandidateFrom(&entities[i])
	}

	checked := make(map[string]bool, len(candidates))
	var pairs []DuplicatePair
	for i, source := range candidates {
		if checked[source.EntityID] {
			continue
		}
		var rest []match.Candidate
		for j, c := range candidates {
			if j == i || checked[c.EntityID] {
				continue
			}
			rest = append(rest, c)
		}

		res := r.Resolve(ctx, source, rest, false)
		if res.State == StateUnresolved || res.Match == nil {
			continue
		}
		pairs = append(pairs, DuplicatePair{
			Left:       source,
			Right:      res.Match.Target,
			Confidence: res.Confidence,
			Strategy:   res.Strategy,
		})
		checked[source.EntityID] = true
		checked[res.Match.Target.EntityID] = true
	}
	return pairs, nil
}

// MergeOutcome reports what a merge actually did. Degraded means the store
// could not transfer relationships in bulk and the merge mark is all that
// was recorded.
type MergeOutcome struct {
	SourceID           string `json:"source_id"`
	TargetID           string `json:"target_id"`
	RelationshipsMoved int64  `json:"relationships_moved"`
	Degraded           bool   `json:"degraded"`
}

// MergeEntities re-points every relationship on sourceID onto targetID, then
// marks sourceID merged-into targetID. The source entity is never deleted.
// A store without bulk transfer yields a degraded outcome, never a silent
// success.
func (r *Resolver) MergeEntities(ctx context.Context, sourceID, targetID string) (*MergeOutcome, error) {
	if sourceID == targetID {
		return nil, eris.New("resolver: cannot merge an entity into itself")
	}

	outcome := &MergeOutcome{SourceID: sourceID, TargetID: targetID}

	moved, err := r.graph.TransferRelationships(ctx, sourceID, targetID)
	switch {
	case err == nil:
		outcome.RelationshipsMoved = moved
	case eris.Is(err, entity.ErrNoBulkTransfer):
		outcome.Degraded = true
		zap.L().Warn("merge degraded, relationships left for reconciler",
			zap.String("source_id", sourceID),
			zap.String("target_id", targetID),
		)
	default:
		return nil, eris.Wrap(err, "resolver: transfer relationships")
	}

	if err := r.graph.MarkMerged(ctx, sourceID, targetID); err != nil {
		return nil, eris.Wrap(err, "resolver: mark merged")
	}

	zap.L().Info("entities merged",
		zap.String("source_id", sourceID),
		zap.String("target_id", targetID),
		zap.Int64("relationships_moved", outcome.RelationshipsMoved),
		zap.Bool("degraded", outcome.Degraded),
	)
	return outcome, nil
}
