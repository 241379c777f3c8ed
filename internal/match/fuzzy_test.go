package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuzzy_SuffixVariantsMatchHigh(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Alpha Family Foundation"}
	target := Candidate{EntityID: "tgt", Name: "Alpha Family Foundation Inc."}

	results := Fuzzy{}.Match(source, []Candidate{target})
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Confidence, 0.9,
		"identical normalized names must land at the top of the fuzzy band")
	assert.Equal(t, StrategyFuzzy, results[0].Strategy)
}

func TestFuzzy_NeverExceedsCap(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Northern Media Group", City: "Toronto", Region: "ON"}
	target := Candidate{EntityID: "tgt", Name: "Northern Media Group Inc", City: "Toronto", Region: "ON"}

	results := Fuzzy{}.Match(source, []Candidate{target})
	require.Len(t, results, 1)
	assert.LessOrEqual(t, results[0].Confidence, 0.95)
	assert.Equal(t, "match", results[0].Details["city"])
	assert.Equal(t, "match", results[0].Details["region"])
}

func TestFuzzy_LocationBoosts(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Harbor Trust Alliance"}
	plain := Candidate{EntityID: "plain", Name: "Harbour Trust Aliance"}
	boosted := Candidate{EntityID: "boosted", Name: "Harbour Trust Aliance", City: "Halifax", Region: "NS"}

	source.City, source.Region = "Halifax", "NS"

	plainRes := Fuzzy{}.Match(source, []Candidate{{EntityID: "plain", Name: plain.Name}})
	boostedRes := Fuzzy{}.Match(source, []Candidate{boosted})

	require.Len(t, plainRes, 1)
	require.Len(t, boostedRes, 1)
	assert.InDelta(t, plainRes[0].Confidence+fuzzyCityBoost+fuzzyRegionBoost,
		boostedRes[0].Confidence, 1e-9)
}

func TestFuzzy_BelowFloorNotReturned(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Quiet Rivers Conservancy"}
	target := Candidate{EntityID: "tgt", Name: "Metropolitan Ballet Company"}

	results := Fuzzy{ScoreFloor: 0.6}.Match(source, []Candidate{target})
	assert.Empty(t, results)
}

func TestFuzzy_EmptyNamesIgnored(t *testing.T) {
	assert.Empty(t, Fuzzy{}.Match(Candidate{EntityID: "src"}, []Candidate{{EntityID: "tgt", Name: "X"}}))
	assert.Empty(t, Fuzzy{}.Match(Candidate{EntityID: "src", Name: "X"}, []Candidate{{EntityID: "tgt"}}))
}

func TestFuzzy_OrderedByConfidence(t *testing.T) {
	source := Candidate{EntityID: "src", Name: "Global Press Institute"}
	candidates := []Candidate{
		{EntityID: "far", Name: "Global Press Foundation"},
		{EntityID: "near", Name: "Global Press Institute Inc"},
	}

	results := Fuzzy{}.Match(source, candidates)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Target.EntityID)
	assert.GreaterOrEqual(t, results[0].Confidence, results[1].Confidence)
}
