//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/pipeline"
)

func intPtr(n int) *int { return &n }

func testMarkets() []market.Market {
	return []market.Market{
		{
			CBSA:         "19740",
			Title:        "Denver-Aurora-Lakewood, CO",
			Rank:         intPtr(1),
			Label:        "Very High",
			MarketStatus: market.StatusUnderserved,
			Underserved:  model.Available(89.4),
		},
		{
			CBSA:         "41860",
			Title:        "San Francisco-Oakland-Berkeley, CA",
			Rank:         intPtr(2),
			Label:        "High",
			MarketStatus: market.StatusCompetitive,
			Underserved:  model.Partial(54.1, 0.94),
		},
		{
			CBSA:         "16980",
			Title:        "Chicago-Naperville-Elgin, IL-IN-WI",
			Rank:         nil,
			Label:        metrics.InsufficientData,
			MarketStatus: metrics.InsufficientData,
			Underserved:  model.Gap(),
		},
	}
}

func TestFormatMarketsTable_RankedOnly(t *testing.T) {
	var buf bytes.Buffer
	formatMarketsTable(&buf, testMarkets(), 0)

	output := buf.String()
	assert.Contains(t, output, "Denver-Aurora-Lakewood, CO")
	assert.Contains(t, output, "89.4")
	assert.Contains(t, output, "Underserved")
	assert.Contains(t, output, "San Francisco-Oakland-Berkeley, CA")
	assert.Contains(t, output, "54.1")
	// Unrankable markets stay out of the summary table.
	assert.NotContains(t, output, "Chicago")
}

func TestFormatMarketsTable_Limit(t *testing.T) {
	var buf bytes.Buffer
	formatMarketsTable(&buf, testMarkets(), 1)

	output := buf.String()
	assert.Contains(t, output, "Denver-Aurora-Lakewood, CO")
	assert.NotContains(t, output, "San Francisco")
}

func TestFormatMarketsTable_TruncatesLongTitles(t *testing.T) {
	markets := []market.Market{
		{
			CBSA:         "35620",
			Title:        "New York-Newark-Jersey City, NY-NJ-PA Combined Metropolitan Region",
			Rank:         intPtr(1),
			Label:        "High",
			MarketStatus: market.StatusCompetitive,
			Underserved:  model.Available(61.0),
		},
	}

	var buf bytes.Buffer
	formatMarketsTable(&buf, markets, 0)

	output := buf.String()
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "Combined Metropolitan Region")
}

func TestFormatAnalyzeSummary(t *testing.T) {
	tbl := model.NewCbsaTable("combined", "2024")
	tbl.Row("19740").Set(market.ScoreUnderserved, model.Available(89.4))
	tbl.Row("41860").Set(market.ScoreUnderserved, model.Available(54.1))
	tbl.Row("16980").Set(market.ScoreUnderserved, model.Gap())

	res := &pipeline.Result{
		RunID:   "3f2a9c71-1b2d-4a7e-9f00-aabbccddeeff",
		Period:  "2024",
		Domains: []string{"acs", "fdic_sod", "oews"},
		Table:   tbl,
		Screen: &market.Result{
			Period: "2024",
			Ranking: metrics.Ranking{
				Metric: market.ScoreUnderserved,
				Period: "2024",
				Entries: []metrics.RankedEntry{
					{CBSA: "19740", Rank: intPtr(1), Score: 89.4, Label: "Very High"},
					{CBSA: "41860", Rank: intPtr(2), Score: 54.1, Label: "High"},
					{CBSA: "16980", Rank: nil, Label: metrics.InsufficientData},
				},
			},
			Markets: testMarkets(),
		},
	}

	var buf bytes.Buffer
	formatAnalyzeSummary(&buf, res, 15)

	output := buf.String()
	assert.Contains(t, output, "3f2a9c71")
	assert.NotContains(t, output, "aabbccddeeff")
	assert.Contains(t, output, "2024")
	assert.Contains(t, output, "acs, fdic_sod, oews")
	assert.Contains(t, output, "Ranked:")
	assert.Contains(t, output, "Denver-Aurora-Lakewood, CO")
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "89.4", formatScore(model.Available(89.4)))
	assert.Equal(t, "54.1", formatScore(model.Partial(54.06, 0.94)))
	assert.Equal(t, "-", formatScore(model.Gap()))
}
