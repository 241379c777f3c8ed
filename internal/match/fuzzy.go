package match

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/matbeedotcom/media-transparency-sub001/internal/entity"
)

// Fuzzy confidence shaping: the name ratio maps proportionally into
// [fuzzyBandLow, fuzzyBandHigh]; location agreement adds small boosts,
// capped at fuzzyCap.
const (
	fuzzyBandLow      = 0.5
	fuzzyBandHigh     = 0.9
	fuzzyCityBoost    = 0.05
	fuzzyRegionBoost  = 0.05
	fuzzyCap          = 0.95
	citySimilarityMin = 0.9
)

// Fuzzy matches on normalized entity names using a weighted edit-distance
// ratio. Candidates whose ratio falls below ScoreFloor are not returned.
type Fuzzy struct {
	// ScoreFloor is the minimum raw name ratio for a candidate to be
	// considered at all. Zero means the default of 0.4.
	ScoreFloor float64
}

// Match compares the source name against every candidate name.
func (f Fuzzy) Match(source Candidate, candidates []Candidate) []Result {
	floor := f.ScoreFloor
	if floor <= 0 {
		floor = 0.4
	}

	srcName := entity.NormalizeName(source.Name)
	if srcName == "" {
		return nil
	}

	var results []Result
	for _, cand := range candidates {
		if cand.EntityID == source.EntityID {
			continue
		}
		candName := entity.NormalizeName(cand.Name)
		if candName == "" {
			continue
		}

		ratio := levenshtein.Match(srcName, candName, nil)
		if ratio < floor {
			continue
		}

		confidence := fuzzyBandLow + ratio*(fuzzyBandHigh-fuzzyBandLow)
		details := map[string]string{
			"name_ratio": fmt.Sprintf("%.3f", ratio),
		}

		if citiesMatch(source.City, cand.City) {
			confidence += fuzzyCityBoost
			details["city"] = "match"
		}
		if regionsMatch(source.Region, cand.Region) {
			confidence += fuzzyRegionBoost
			details["region"] = "match"
		}
		if confidence > fuzzyCap {
			confidence = fuzzyCap
		}

		results = append(results, Result{
			Source:     source,
			Target:     cand,
			Strategy:   StrategyFuzzy,
			Confidence: confidence,
			Details:    details,
		})
	}

	sortByConfidence(results)
	return results
}

func citiesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	return levenshtein.Similarity(strings.ToUpper(a), strings.ToUpper(b), nil) >= citySimilarityMin
}

func regionsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
