package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/model"
)

func ranksOf(r Ranking) []int {
	var out []int
	for _, e := range r.Entries {
		if e.Rank != nil {
			out = append(out, *e.Rank)
		}
	}
	return out
}

func TestRankDenseTies(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Available(90),
		"10200": model.Available(90),
		"10300": model.Available(80),
	})

	r := Rank(s, RankOptions{})
	assert.Equal(t, []int{1, 1, 2}, ranksOf(r))
	assert.Equal(t, "10100", r.Entries[0].CBSA) // tie broken by code
	assert.Equal(t, "10200", r.Entries[1].CBSA)
	assert.Equal(t, "10300", r.Entries[2].CBSA)
}

func TestRankOrdinalTies(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Available(90),
		"10200": model.Available(90),
		"10300": model.Available(80),
	})

	r := Rank(s, RankOptions{Ties: TiesOrdinal})
	assert.Equal(t, []int{1, 1, 3}, ranksOf(r))
}

func TestRankDescendingByDefault(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Available(10),
		"10200": model.Available(30),
		"10300": model.Available(20),
	})

	r := Rank(s, RankOptions{})
	assert.Equal(t, "10200", r.Entries[0].CBSA)
	assert.Equal(t, "10300", r.Entries[1].CBSA)
	assert.Equal(t, "10100", r.Entries[2].CBSA)

	asc := Rank(s, RankOptions{Ascending: true})
	assert.Equal(t, "10100", asc.Entries[0].CBSA)
}

func TestRankGapEntriesUnranked(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Available(90),
		"10200": model.Gap(),
		"10300": model.Available(80),
	})

	r := Rank(s, RankOptions{})
	require.Len(t, r.Entries, 3)
	assert.Equal(t, 2, r.Ranked())

	last := r.Entries[2]
	assert.Equal(t, "10200", last.CBSA)
	assert.Nil(t, last.Rank)
	assert.Equal(t, InsufficientData, last.Label)
	assert.Equal(t, model.StatusGap, last.Status)
}

func TestRankQuartileLabelsInclusiveLower(t *testing.T) {
	// Quartile boundaries sit on 20, 40 and 60; boundary scores take the
	// lower category.
	s := NewSeries("score", "2023")
	scores := map[string]float64{
		"10100": 10, "10200": 20, "10300": 30, "10400": 40,
		"10500": 50, "10600": 60, "10700": 70, "10800": 80,
	}
	for code, v := range scores {
		s.Set(code, model.Available(v))
	}

	r := Rank(s, RankOptions{})
	labels := make(map[string]string)
	for _, e := range r.Entries {
		labels[e.CBSA] = e.Label
	}

	assert.Equal(t, "Low", labels["10100"])
	assert.Equal(t, "Low", labels["10200"])
	assert.Equal(t, "Moderate", labels["10300"])
	assert.Equal(t, "Moderate", labels["10400"])
	assert.Equal(t, "High", labels["10500"])
	assert.Equal(t, "High", labels["10600"])
	assert.Equal(t, "Very High", labels["10700"])
	assert.Equal(t, "Very High", labels["10800"])
}

func TestRankAllGaps(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Gap(),
		"10200": model.Gap(),
	})

	r := Rank(s, RankOptions{})
	assert.Equal(t, 0, r.Ranked())
	for _, e := range r.Entries {
		assert.Nil(t, e.Rank)
		assert.Equal(t, InsufficientData, e.Label)
	}
}

func TestRankingTop(t *testing.T) {
	s := seriesOf("score", map[string]model.Value{
		"10100": model.Available(90),
		"10200": model.Available(70),
		"10300": model.Available(50),
		"10400": model.Gap(),
	})

	r := Rank(s, RankOptions{})
	top := r.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "10100", top[0].CBSA)
	assert.Equal(t, "10200", top[1].CBSA)

	// Top never reaches past the ranked entries.
	assert.Len(t, r.Top(10), 3)
}
