package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

func marketStore(t *testing.T) *crosswalk.Store {
	t.Helper()
	b := crosswalk.NewBuilder()
	b.Add(crosswalk.Row{CountyFIPS: "06001", CbsaCode: "41860", Title: "San Francisco-Oakland-Fremont, CA", Kind: crosswalk.Metropolitan})
	b.Add(crosswalk.Row{CountyFIPS: "48113", CbsaCode: "19100", Title: "Dallas-Fort Worth-Arlington, TX", Kind: crosswalk.Metropolitan})
	b.Add(crosswalk.Row{CountyFIPS: "40013", CbsaCode: "20460", Title: "Durant, OK", Kind: crosswalk.Micropolitan})
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func underservedTable() *model.CbsaTable {
	tbl := model.NewCbsaTable("combined", "2023")
	set := func(code string, fields map[string]float64) {
		row := tbl.Row(code)
		for f, v := range fields {
			row.Set(f, model.Available(v))
		}
	}
	// 41860 dominates every wealth and growth input; advisors are scarce
	// there, so both potential and coverage normalize to 100.
	set("41860", map[string]float64{
		IndexHNWIDensity:     80,
		DerivedHighIncomePct: 20,
		DerivedLuxuryHomePct: 10,
		DerivedGDPCAGR:       0.10,
		IndexVitality:        60,
		DerivedAdvisorPer10k: 1,
	})
	set("19100", map[string]float64{
		IndexHNWIDensity:     20,
		DerivedHighIncomePct: 10,
		DerivedLuxuryHomePct: 5,
		DerivedGDPCAGR:       0.02,
		IndexVitality:        30,
		DerivedAdvisorPer10k: 3,
	})
	// 20460 has no data at all.
	tbl.Row("20460")
	return tbl
}

func TestIdentifyUnderserved(t *testing.T) {
	res, err := IdentifyUnderserved(underservedTable(), marketStore(t))
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.Underserved.Get("41860").Amount, 1e-9)
	assert.InDelta(t, 0.0, res.Underserved.Get("19100").Amount, 1e-9)
	assert.True(t, res.Underserved.Get("20460").IsGap())

	require.Len(t, res.Markets, 3)
	first := res.Markets[0]
	assert.Equal(t, "41860", first.CBSA)
	require.NotNil(t, first.Rank)
	assert.Equal(t, 1, *first.Rank)
	assert.Equal(t, "San Francisco-Oakland-Fremont, CA", first.Title)
	assert.Equal(t, []string{"06"}, first.States)
	assert.Equal(t, StatusUnderserved, first.MarketStatus)

	second := res.Markets[1]
	assert.Equal(t, "19100", second.CBSA)
	assert.Equal(t, StatusLowOpportunity, second.MarketStatus)

	last := res.Markets[2]
	assert.Equal(t, "20460", last.CBSA)
	assert.Nil(t, last.Rank)
	assert.Equal(t, metrics.InsufficientData, last.Label)
	assert.Equal(t, metrics.InsufficientData, last.MarketStatus)
	assert.Equal(t, "Durant, OK", last.Title)
}

func TestIdentifyUnderservedScoreBlend(t *testing.T) {
	res, err := IdentifyUnderserved(underservedTable(), marketStore(t))
	require.NoError(t, err)

	// underserved = 0.6*potential + 0.4*coverage, checked per CBSA.
	for _, code := range []string{"41860", "19100"} {
		p := res.Potential.Get(code).Amount
		c := res.Coverage.Get(code).Amount
		assert.InDelta(t, 0.6*p+0.4*c, res.Underserved.Get(code).Amount, 1e-9, "cbsa %s", code)
	}
}

func TestIdentifyUnderservedWithoutGrowthInputs(t *testing.T) {
	tbl := underservedTable()
	for _, code := range tbl.Codes() {
		row := tbl.Row(code)
		row.Set(DerivedGDPCAGR, model.Gap())
		row.Set(IndexVitality, model.Gap())
	}

	res, err := IdentifyUnderserved(tbl, marketStore(t))
	require.NoError(t, err)
	assert.Nil(t, res.Growth)
	// Potential falls back to wealth alone at full weight.
	assert.InDelta(t, res.Wealth.Get("41860").Amount, res.Potential.Get("41860").Amount, 1e-9)
}

func TestIdentifyUnderservedNoAdvisorData(t *testing.T) {
	tbl := underservedTable()
	for _, code := range tbl.Codes() {
		tbl.Row(code).Set(DerivedAdvisorPer10k, model.Gap())
	}

	_, err := IdentifyUnderserved(tbl, marketStore(t))
	assert.Error(t, err)
}

func TestMarketStatusQuadrants(t *testing.T) {
	tests := []struct {
		name      string
		potential float64
		coverage  float64
		want      string
	}{
		{"underserved", 70, 70, StatusUnderserved},
		{"competitive", 70, 30, StatusCompetitive},
		{"low opportunity", 30, 30, StatusLowOpportunity},
		{"oversaturated", 30, 70, StatusOversaturated},
		{"balanced middle", 50, 50, StatusBalanced},
		{"boundary sits balanced", 60, 40, StatusBalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := marketStatus(model.Available(tt.potential), model.Available(tt.coverage))
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, metrics.InsufficientData, marketStatus(model.Gap(), model.Available(50)))
	assert.Equal(t, metrics.InsufficientData, marketStatus(model.Available(50), model.Gap()))
}
