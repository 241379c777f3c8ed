// Package lead defines discovery leads and the durable, deduplicated
// priority queue they live in.
package lead

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// Type is the closed set of lead kinds the engine follows.
type Type string

const (
	TypeEntryPoint            Type = "entry_point"
	TypeOwnership             Type = "ownership"
	TypeFunding               Type = "funding"
	TypeCrossBorderFunding    Type = "cross_border_funding"
	TypePoliticalContribution Type = "political_contribution"
	TypeBeneficialOwnership   Type = "beneficial_ownership"
	TypeSharedAddress         Type = "shared_address"
)

// AllTypes lists every valid lead type.
var AllTypes = []Type{
	TypeEntryPoint,
	TypeOwnership,
	TypeFunding,
	TypeCrossBorderFunding,
	TypePoliticalContribution,
	TypeBeneficialOwnership,
	TypeSharedAddress,
}

// ParseType validates a stored lead-type string.
func ParseType(raw string) (Type, error) {
	for _, t := range AllTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", eris.Errorf("lead: unrecognized lead type %q", raw)
}

// Priorities: 1 is highest, 5 lowest.
const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// ClampPriority forces a priority into [1, 5].
func ClampPriority(p int) int {
	if p < PriorityHighest {
		return PriorityHighest
	}
	if p > PriorityLowest {
		return PriorityLowest
	}
	return p
}

// Status is a queued lead's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status ends the lead's lifecycle. Requeue is
// the only transition out of a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed:
		return true
	case StatusPending, StatusInProgress:
		return false
	}
	return false
}

// Lead is a proposed unit of discovery work.
type Lead struct {
	Type               Type          `json:"lead_type"`
	TargetIdentifier   string        `json:"target_identifier"`
	IdentifierScheme   entity.Scheme `json:"identifier_scheme"`
	Priority           int           `json:"priority"`
	Confidence         float64       `json:"confidence"`
	Context            string        `json:"context,omitempty"`
	SourceRelationship string        `json:"source_relationship,omitempty"`
	FundingAmount      *float64      `json:"funding_amount,omitempty"`
}

// Validate checks the invariants a lead must satisfy before it may be queued.
func (l Lead) Validate() error {
	if _, err := ParseType(string(l.Type)); err != nil {
		return err
	}
	if l.TargetIdentifier == "" {
		return eris.New("lead: target identifier is required")
	}
	if l.Priority < PriorityHighest || l.Priority > PriorityLowest {
		return eris.Errorf("lead: priority %d outside [1,5]", l.Priority)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return eris.Errorf("lead: confidence %f outside [0,1]", l.Confidence)
	}
	return nil
}

// Result summarizes a completed lead.
type Result struct {
	EntityID             string `json:"entity_id"`
	NewEntity            bool   `json:"new_entity"`
	RelationshipsCreated int    `json:"relationships_created"`
	LeadsGenerated       int    `json:"leads_generated"`
}

// Queued is a Lead bound to a session in the durable queue.
type Queued struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Lead

	SourceEntityID string  `json:"source_entity_id,omitempty"`
	Depth          int     `json:"depth"`
	Status         Status  `json:"status"`
	Result         *Result `json:"result,omitempty"`
	SkipReason     string  `json:"skip_reason,omitempty"`
	Error          string  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stats aggregates a session's queue state.
type Stats struct {
	Total                 int            `json:"total"`
	ByStatus              map[Status]int `json:"by_status"`
	ByType                map[Type]int   `json:"by_type"`
	ByPriority            map[int]int    `json:"by_priority"`
	PendingMeanConfidence float64        `json:"pending_mean_confidence"`
}

// Pending returns the count of pending leads.
func (s *Stats) Pending() int {
	if s == nil {
		return 0
	}
	return s.ByStatus[StatusPending]
}
