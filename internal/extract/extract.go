// Package extract turns a processed entity's relationships into new
// discovery leads. Each extractor watches for one discovery pattern;
// the registry dispatches on entity type.
package extract

import (
	"context"
	"fmt"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
	"github.com/matbeedotcom/media-transparency-sub001/internal/session"
)

// Neighbor pairs a relationship with a snapshot of the counterpart entity.
// Entity may be nil when the counterpart has not been loaded.
type Neighbor struct {
	Relationship entity.Relationship
	Entity       *entity.Entity
}

// Extractor produces follow-up leads from one entity and its neighborhood.
type Extractor interface {
	Name() string
	EntityTypes() []string
	Extract(ctx context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead
}

// ShouldFollow applies the session config's lead filter. The returned reason
// is recorded as the skip reason when the lead is not followed.
func ShouldFollow(l lead.Lead, cfg session.Config) (bool, string) {
	if !cfg.TypeEnabled(l.Type) {
		return false, fmt.Sprintf("lead type %s disabled", l.Type)
	}
	if l.Confidence < cfg.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below minimum %.2f", l.Confidence, cfg.MinConfidence)
	}
	if cfg.MinFundingAmount > 0 && l.FundingAmount != nil && *l.FundingAmount < cfg.MinFundingAmount {
		return false, fmt.Sprintf("funding amount %.2f below minimum %.2f", *l.FundingAmount, cfg.MinFundingAmount)
	}
	return true, ""
}

// entityLead builds a lead targeting an already-known counterpart entity.
func entityLead(t lead.Type, counterpartID string, priority int, confidence float64, context, relLabel string) lead.Lead {
	return lead.Lead{
		Type:               t,
		TargetIdentifier:   counterpartID,
		IdentifierScheme:   entity.SchemeEntityID,
		Priority:           lead.ClampPriority(priority),
		Confidence:         confidence,
		Context:            context,
		SourceRelationship: relLabel,
	}
}

// relConfidence returns the relationship's confidence, or a default when
// the ingesting connector recorded none.
func relConfidence(r entity.Relationship, fallback float64) float64 {
	if r.Confidence != nil {
		return *r.Confidence
	}
	return fallback
}
