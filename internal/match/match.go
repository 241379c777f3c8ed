// Package match implements the entity matching strategies: deterministic
// identifier comparison, fuzzy name comparison, optional vector similarity,
// and the hybrid cascade that combines them.
package match

import (
	"sort"
	"strings"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// Strategy identifies which matcher produced a result.
type Strategy string

const (
	StrategyDeterministic Strategy = "deterministic"
	StrategyFuzzy         Strategy = "fuzzy"
	StrategySimilarity    Strategy = "similarity"
)

// Candidate is a comparable snapshot of an entity.
type Candidate struct {
	EntityID     string
	EntityType   string
	Name         string
	Identifiers  map[entity.Scheme]string
	City         string
	Region       string
	PostalCode   string
	Jurisdiction string
	Description  string
}

// CandidateFrom builds a Candidate from an entity snapshot.
func CandidateFrom(e *entity.Entity) Candidate {
	return Candidate{
		EntityID:     e.ID,
		EntityType:   e.Type,
		Name:         e.Name,
		Identifiers:  e.Identifiers,
		City:         e.City,
		Region:       e.Region,
		PostalCode:   e.PostalCode,
		Jurisdiction: e.Jurisdiction,
		Description:  e.Description,
	}
}

// Result is the outcome of comparing a source against one candidate.
// Confidence is always in [0, 1].
type Result struct {
	Source     Candidate
	Target     Candidate
	Strategy   Strategy
	Confidence float64
	Details    map[string]string
}

// sortByConfidence orders results by descending confidence, breaking ties by
// target id for determinism.
func sortByConfidence(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Target.EntityID < results[j].Target.EntityID
	})
}

// text returns the representation embedded by the similarity strategy.
func (c Candidate) text() string {
	parts := []string{c.Name, c.EntityType}
	if c.City != "" || c.Region != "" {
		parts = append(parts, strings.TrimSpace(c.City+" "+c.Region))
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, " | ")
}
