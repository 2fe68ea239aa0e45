package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// twoMarketTable builds a combined table where every derived metric favors
// 41860 over 19100, so normalized values land on 100 and 0.
func twoMarketTable() *model.CbsaTable {
	tbl := model.NewCbsaTable("combined", "2023")
	set := func(code string, fields map[string]float64) {
		row := tbl.Row(code)
		for f, v := range fields {
			row.Set(f, model.Available(v))
		}
	}
	set("41860", map[string]float64{
		DerivedHighIncomePct: 20,
		DerivedLuxuryHomePct: 10,
		DerivedDepositPC:     100,
		DerivedCollegePct:    40,
		DerivedAdvisorPer10k: 1,
		DerivedBranchPer100k: 30,
		DerivedHNWIAdvisor:   40,
		DerivedGDPCAGR:       0.10,
		DerivedWealthConc:    0.25,
		DerivedExecDensity:   100,
	})
	set("19100", map[string]float64{
		DerivedHighIncomePct: 10,
		DerivedLuxuryHomePct: 5,
		DerivedDepositPC:     50,
		DerivedCollegePct:    20,
		DerivedAdvisorPer10k: 3,
		DerivedBranchPer100k: 10,
		DerivedHNWIAdvisor:   20,
		DerivedGDPCAGR:       0.05,
		DerivedWealthConc:    0.10,
		DerivedExecDensity:   50,
	})
	return tbl
}

func TestHnwiGroup(t *testing.T) {
	out, err := hnwiGroup(context.Background(), twoMarketTable())
	require.NoError(t, err)
	require.Len(t, out, 1)

	idx := out[0]
	assert.Equal(t, IndexHNWIDensity, idx.Name)
	assert.InDelta(t, 100.0, idx.Get("41860").Amount, 1e-9)
	assert.InDelta(t, 0.0, idx.Get("19100").Amount, 1e-9)
}

func TestHnwiGroupSkipsEmptyComponents(t *testing.T) {
	// Deposits entirely missing: the index is the mean of the remaining
	// three components instead of gapping everywhere.
	tbl := twoMarketTable()
	for _, code := range tbl.Codes() {
		tbl.Row(code).Set(DerivedDepositPC, model.Gap())
	}

	out, err := hnwiGroup(context.Background(), tbl)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out[0].Get("41860").Amount, 1e-9)
}

func TestHnwiGroupNoData(t *testing.T) {
	_, err := hnwiGroup(context.Background(), model.NewCbsaTable("combined", "2023"))
	assert.Error(t, err)
}

func TestVitalityGroupClampsDecline(t *testing.T) {
	tbl := model.NewCbsaTable("combined", "2023")
	tbl.Row("41860").Set(DerivedGDPCAGR, model.Available(0.10))
	tbl.Row("19100").Set(DerivedGDPCAGR, model.Available(-0.05))
	tbl.Row("31080").Set(DerivedGDPCAGR, model.Available(0))

	out, err := vitalityGroup(context.Background(), tbl)
	require.NoError(t, err)

	idx := out[0]
	assert.Equal(t, IndexVitality, idx.Name)
	// The decline clamps to zero growth, tying it with the flat market.
	assert.InDelta(t, idx.Get("31080").Amount, idx.Get("19100").Amount, 1e-9)
	assert.Greater(t, idx.Get("41860").Amount, idx.Get("19100").Amount)
}

func TestFinservGroupRequiresData(t *testing.T) {
	_, err := finservGroup(context.Background(), model.NewCbsaTable("combined", "2023"))
	assert.Error(t, err)
}

func TestRunGroupsIsolatesFailure(t *testing.T) {
	// No advisor fields at all: finserv fails, the other groups succeed.
	tbl := twoMarketTable()
	for _, code := range tbl.Codes() {
		row := tbl.Row(code)
		row.Set(DerivedAdvisorPer10k, model.Gap())
		row.Set(DerivedBranchPer100k, model.Gap())
		row.Set(DerivedHNWIAdvisor, model.Gap())
	}

	results := RunGroups(context.Background(), tbl, Groups(), 2)
	require.Len(t, results, 3)

	byName := make(map[string]GroupResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Error(t, byName["finserv"].Err)
	require.NoError(t, byName["hnwi"].Err)
	require.NoError(t, byName["vitality"].Err)
	assert.NotEmpty(t, byName["hnwi"].Series)
}

func TestRunGroupsResultsSorted(t *testing.T) {
	results := RunGroups(context.Background(), twoMarketTable(), Groups(), 0)
	require.Len(t, results, 3)
	assert.Equal(t, "finserv", results[0].Name)
	assert.Equal(t, "hnwi", results[1].Name)
	assert.Equal(t, "vitality", results[2].Name)
}

func TestRunGroupsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunGroups(ctx, twoMarketTable(), Groups(), 1)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Error(t, r.Err, "group %s", r.Name)
	}
}

func TestClampLow(t *testing.T) {
	s := metrics.NewSeries("x", "2023")
	s.Set("a", model.Available(-1))
	s.Set("b", model.Available(2))
	s.Set("c", model.Gap())

	out := clampLow(s, 0)
	assert.Equal(t, 0.0, out.Get("a").Amount)
	assert.Equal(t, 2.0, out.Get("b").Amount)
	assert.True(t, out.Get("c").IsGap())
}
