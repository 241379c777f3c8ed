package extract

import (
	"context"
	"fmt"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
)

// Ownership follows owns / subsidiary_of / controlled_by edges to the
// corporate parents and children of an organization.
type Ownership struct{}

func (Ownership) Name() string { return "ownership" }

func (Ownership) EntityTypes() []string {
	return []string{entity.TypeOrganization}
}

func (Ownership) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		switch n.Relationship.Type {
		case entity.RelOwns, entity.RelSubsidiaryOf, entity.RelControlledBy:
		default:
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}
		out = append(out, entityLead(
			lead.TypeOwnership, counterpart, 2,
			relConfidence(n.Relationship, 0.8),
			fmt.Sprintf("%s edge from %s", n.Relationship.Type, e.Name),
			n.Relationship.Type,
		))
	}
	return out
}

// Funding follows money: funded_by and granted_to edges, carrying the
// amount so the session's funding floor can filter small grants.
type Funding struct{}

func (Funding) Name() string { return "funding" }

func (Funding) EntityTypes() []string {
	return []string{entity.TypeOrganization, entity.TypeCommittee}
}

func (Funding) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		switch n.Relationship.Type {
		case entity.RelFundedBy, entity.RelGrantedTo:
		default:
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}

		priority := 3
		if n.Relationship.Amount != nil && *n.Relationship.Amount >= 100000 {
			priority = 2
		}
		l := entityLead(
			lead.TypeFunding, counterpart, priority,
			relConfidence(n.Relationship, 0.75),
			fmt.Sprintf("%s edge from %s", n.Relationship.Type, e.Name),
			n.Relationship.Type,
		)
		l.FundingAmount = n.Relationship.Amount
		out = append(out, l)
	}
	return out
}

// CrossBorderFunding raises a high-priority lead when a funding edge spans
// jurisdictions; foreign money into local entities is the engine's core
// signal.
type CrossBorderFunding struct{}

func (CrossBorderFunding) Name() string { return "cross_border_funding" }

func (CrossBorderFunding) EntityTypes() []string {
	return []string{entity.TypeOrganization, entity.TypeCommittee}
}

func (CrossBorderFunding) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		switch n.Relationship.Type {
		case entity.RelFundedBy, entity.RelGrantedTo, entity.RelContributedTo:
		default:
			continue
		}
		if !entity.CrossJurisdiction(e, n.Entity) {
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}

		l := entityLead(
			lead.TypeCrossBorderFunding, counterpart, 1,
			relConfidence(n.Relationship, 0.8),
			fmt.Sprintf("%s funding across %s/%s", n.Relationship.Type,
				e.Jurisdiction, n.Entity.Jurisdiction),
			n.Relationship.Type,
		)
		l.FundingAmount = n.Relationship.Amount
		out = append(out, l)
	}
	return out
}

// PoliticalContribution follows contributed_to edges that touch a
// committee on either side.
type PoliticalContribution struct{}

func (PoliticalContribution) Name() string { return "political_contribution" }

func (PoliticalContribution) EntityTypes() []string {
	return []string{entity.TypeOrganization, entity.TypePerson, entity.TypeCommittee}
}

func (PoliticalContribution) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		if n.Relationship.Type != entity.RelContributedTo {
			continue
		}
		if e.Type != entity.TypeCommittee && (n.Entity == nil || n.Entity.Type != entity.TypeCommittee) {
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}

		l := entityLead(
			lead.TypePoliticalContribution, counterpart, 2,
			relConfidence(n.Relationship, 0.75),
			fmt.Sprintf("contribution edge from %s", e.Name),
			n.Relationship.Type,
		)
		l.FundingAmount = n.Relationship.Amount
		out = append(out, l)
	}
	return out
}

// BeneficialOwnership surfaces the people behind an organization: officer
// and control edges involving a person.
type BeneficialOwnership struct{}

func (BeneficialOwnership) Name() string { return "beneficial_ownership" }

func (BeneficialOwnership) EntityTypes() []string {
	return []string{entity.TypeOrganization, entity.TypePerson}
}

func (BeneficialOwnership) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		switch n.Relationship.Type {
		case entity.RelOfficerOf, entity.RelControlledBy:
		default:
			continue
		}
		if e.Type != entity.TypePerson && (n.Entity == nil || n.Entity.Type != entity.TypePerson) {
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}
		out = append(out, entityLead(
			lead.TypeBeneficialOwnership, counterpart, 2,
			relConfidence(n.Relationship, 0.7),
			fmt.Sprintf("%s edge from %s", n.Relationship.Type, e.Name),
			n.Relationship.Type,
		))
	}
	return out
}

// SharedAddress follows shares_address edges. Address co-location is weak
// evidence, so these leads carry low priority and confidence.
type SharedAddress struct{}

func (SharedAddress) Name() string { return "shared_address" }

func (SharedAddress) EntityTypes() []string {
	return []string{entity.TypeOrganization, entity.TypeCommittee}
}

func (SharedAddress) Extract(_ context.Context, e *entity.Entity, neighbors []Neighbor) []lead.Lead {
	var out []lead.Lead
	for _, n := range neighbors {
		if n.Relationship.Type != entity.RelSharesAddress {
			continue
		}
		counterpart := n.Relationship.CounterpartOf(e.ID)
		if counterpart == "" {
			continue
		}
		out = append(out, entityLead(
			lead.TypeSharedAddress, counterpart, 4,
			relConfidence(n.Relationship, 0.55),
			fmt.Sprintf("shared address with %s", e.Name),
			n.Relationship.Type,
		))
	}
	return out
}
