package match

import (
	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// deterministicSchemes are the identifier namespaces eligible for exact
// matching. Names are excluded; they belong to the fuzzy strategy.
var deterministicSchemes = []entity.Scheme{
	entity.SchemeTaxID,
	entity.SchemeBusinessNumber,
	entity.SchemeRegistryProfile,
}

// Deterministic matches on shared registry identifiers. Any exact match on a
// recognized scheme after scheme-specific normalization yields confidence
// exactly 1.0. A candidate sharing no scheme with the source produces no
// result at all.
type Deterministic struct{}

// Match compares the source against every candidate.
func (Deterministic) Match(source Candidate, candidates []Candidate) []Result {
	var results []Result
	for _, cand := range candidates {
		if cand.EntityID == source.EntityID {
			continue
		}
		if scheme, value, ok := sharedIdentifier(source, cand); ok {
			results = append(results, Result{
				Source:     source,
				Target:     cand,
				Strategy:   StrategyDeterministic,
				Confidence: 1.0,
				Details: map[string]string{
					"scheme": scheme.String(),
					"value":  value,
				},
			})
		}
	}
	sortByConfidence(results)
	return results
}

func sharedIdentifier(a, b Candidate) (entity.Scheme, string, bool) {
	for _, scheme := range deterministicSchemes {
		av, aok := a.Identifiers[scheme]
		bv, bok := b.Identifiers[scheme]
		if !aok || !bok {
			continue
		}
		na := scheme.NormalizeIdentifier(av)
		nb := scheme.NormalizeIdentifier(bv)
		if na != "" && na == nb {
			return scheme, na, true
		}
	}
	return entity.SchemeUnknown, "", false
}
