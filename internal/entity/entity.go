// Package entity defines the graph data model: entity snapshots, typed
// relationships, and the graph store contract.
package entity

import (
	"encoding/json"
	"time"
)

// Entity types.
const (
	TypeOrganization = "organization"
	TypePerson       = "person"
	TypeCommittee    = "committee"
)

// Entity is a node in the discovery graph.
type Entity struct {
	ID           string            `json:"id" db:"id"`
	Type         string            `json:"entity_type" db:"entity_type"`
	Name         string            `json:"name" db:"name"`
	Identifiers  map[Scheme]string `json:"identifiers,omitempty"`
	Jurisdiction string            `json:"jurisdiction,omitempty" db:"jurisdiction"`
	City         string            `json:"city,omitempty" db:"city"`
	Region       string            `json:"region,omitempty" db:"region"`
	PostalCode   string            `json:"postal_code,omitempty" db:"postal_code"`
	Description  string            `json:"description,omitempty" db:"description"`

	// MergedInto is set when this entity has been merged away; the entity row
	// is never deleted, to preserve provenance.
	MergedInto string `json:"merged_into,omitempty" db:"merged_into"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Relationship types.
const (
	RelOwns          = "owns"
	RelSubsidiaryOf  = "subsidiary_of"
	RelFundedBy      = "funded_by"
	RelGrantedTo     = "granted_to"
	RelContributedTo = "contributed_to"
	RelControlledBy  = "controlled_by"
	RelOfficerOf     = "officer_of"
	RelSharesAddress = "shares_address"
	RelSameAs        = "same_as"
)

// Relationship is a typed, directed edge between two entities.
type Relationship struct {
	ID         string          `json:"id" db:"id"`
	SourceID   string          `json:"source_id" db:"source_id"`
	TargetID   string          `json:"target_id" db:"target_id"`
	Type       string          `json:"rel_type" db:"rel_type"`
	Amount     *float64        `json:"amount,omitempty" db:"amount"`
	Confidence *float64        `json:"confidence,omitempty" db:"confidence"`
	Attributes json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// CounterpartOf returns the entity on the other side of the edge, or "" when
// the edge does not touch entityID.
func (r Relationship) CounterpartOf(entityID string) string {
	switch entityID {
	case r.SourceID:
		return r.TargetID
	case r.TargetID:
		return r.SourceID
	}
	return ""
}

// CrossJurisdiction reports whether the two entities sit in different,
// known jurisdictions.
func CrossJurisdiction(a, b *Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Jurisdiction != "" && b.Jurisdiction != "" && a.Jurisdiction != b.Jurisdiction
}
