package resolver

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/match"
)

const (
	postalExactBoost  = 0.10
	postalPrefixBoost = 0.05

	crossJurisdictionCandidateLimit = 200
)

// ForeignRecord describes an entity as recorded in a foreign registry, to
// be matched against local entities.
type ForeignRecord struct {
	Name       string
	EntityType string
	City       string
	Region     string
	PostalCode string
}

// CrossJurisdictionAction is the three-way outcome of a foreign-record
// resolution.
type CrossJurisdictionAction string

const (
	ActionMerged  CrossJurisdictionAction = "merged"
	ActionReview  CrossJurisdictionAction = "queued_for_review"
	ActionNoMatch CrossJurisdictionAction = "no_match"
)

// CrossJurisdictionOutcome reports what a foreign-record resolution did.
type CrossJurisdictionOutcome struct {
	Action     CrossJurisdictionAction
	EntityID   string
	Confidence float64
	Merge      *MergeOutcome
	Task       *Task
}

// CrossJurisdiction specializes the resolver for "entity recorded abroad,
// funder is local" cases: candidates are restricted to the target
// jurisdiction and postal evidence boosts confidence.
type CrossJurisdiction struct {
	graph      entity.GraphStore
	resolver   *Resolver
	hybrid     *match.Hybrid
	tasks      TaskStore
	thresholds Thresholds
}

// NewCrossJurisdiction creates a cross-jurisdiction resolver.
func NewCrossJurisdiction(graph entity.GraphStore, r *Resolver, hybrid *match.Hybrid, tasks TaskStore) *CrossJurisdiction {
	return &CrossJurisdiction{
		graph:      graph,
		resolver:   r,
		hybrid:     hybrid,
		tasks:      tasks,
		thresholds: r.thresholds,
	}
}

// Resolve matches a foreign record against local entities in jurisdiction.
// Confidence at or above the auto-merge threshold merges the local entity
// into the foreign one's id immediately; the review band creates a
// reconciliation task; anything lower records nothing, left for a later
// pass once more local data exists.
func (c *CrossJurisdiction) Resolve(ctx context.Context, foreignEntityID string, rec ForeignRecord, jurisdiction string) (*CrossJurisdictionOutcome, error) {
	candidates, err := c.localCandidates(ctx, rec, jurisdiction)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &CrossJurisdictionOutcome{Action: ActionNoMatch}, nil
	}

	source := match.Candidate{
		EntityID:   foreignEntityID,
		EntityType: rec.EntityType,
		Name:       rec.Name,
		City:       rec.City,
		Region:     rec.Region,
		PostalCode: rec.PostalCode,
	}

	results, err := c.hybrid.Match(ctx, source, candidates)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: cross-jurisdiction match")
	}
	if len(results) == 0 {
		return &CrossJurisdictionOutcome{Action: ActionNoMatch}, nil
	}

	best := results[0]
	bestConf := boostPostal(best.Confidence, rec.PostalCode, best.Target.PostalCode)
	for _, r := range results[1:] {
		if conf := boostPostal(r.Confidence, rec.PostalCode, r.Target.PostalCode); conf > bestConf {
			best, bestConf = r, conf
		}
	}

	outcome := &CrossJurisdictionOutcome{
		EntityID:   best.Target.EntityID,
		Confidence: bestConf,
	}
	switch {
	case bestConf >= c.thresholds.AutoMerge:
		merge, err := c.resolver.MergeEntities(ctx, best.Target.EntityID, foreignEntityID)
		if err != nil {
			return nil, err
		}
		outcome.Action = ActionMerged
		outcome.Merge = merge
	case bestConf >= c.thresholds.Review:
		task, err := c.tasks.Create(ctx, &Task{
			SourceEntityID:    foreignEntityID,
			CandidateEntityID: best.Target.EntityID,
			Confidence:        bestConf,
			Strategy:          string(best.Strategy),
			Priority:          PriorityFor(bestConf, 1.0),
		})
		if err != nil {
			return nil, err
		}
		outcome.Action = ActionReview
		outcome.Task = task
	default:
		outcome.Action = ActionNoMatch
	}

	zap.L().Debug("cross-jurisdiction resolution",
		zap.String("foreign_entity_id", foreignEntityID),
		zap.String("jurisdiction", jurisdiction),
		zap.String("action", string(outcome.Action)),
		zap.Float64("confidence", bestConf),
	)
	return outcome, nil
}

// localCandidates loads the target jurisdiction's entities, same region
// first when the record names one.
func (c *CrossJurisdiction) localCandidates(ctx context.Context, rec ForeignRecord, jurisdiction string) ([]match.Candidate, error) {
	var entities []entity.Entity
	var err error

	if rec.Region != "" {
		entities, err = c.graph.ListByJurisdiction(ctx, rec.EntityType, jurisdiction, rec.Region, crossJurisdictionCandidateLimit)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: list regional candidates")
		}
	}
	if len(entities) == 0 {
		entities, err = c.graph.ListByJurisdiction(ctx, rec.EntityType, jurisdiction, "", crossJurisdictionCandidateLimit)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: list jurisdiction candidates")
		}
	}

	candidates := make([]match.Candidate, len(entities))
	for i := range entities {
		candidates[i] = match.CandidateFrom(&entities[i])
	}
	return candidates, nil
}

// boostPostal adds the forward-sortation-area boosts: +0.10 for an exact
// postal match, +0.05 for a matching 3-character prefix.
func boostPostal(confidence float64, recPostal, candPostal string) float64 {
	a := entity.NormalizePostal(recPostal)
	b := entity.NormalizePostal(candPostal)
	if a == "" || b == "" {
		return confidence
	}
	switch {
	case a == b:
		confidence += postalExactBoost
	case entity.PostalPrefix(a) != "" && entity.PostalPrefix(a) == entity.PostalPrefix(b):
		confidence += postalPrefixBoost
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
