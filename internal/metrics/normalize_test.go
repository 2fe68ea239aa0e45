package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketscope/internal/model"
)

func seriesOf(name string, points map[string]model.Value) *Series {
	s := NewSeries(name, "2023")
	for code, v := range points {
		s.Set(code, v)
	}
	return s
}

func TestNormalizeMinMax(t *testing.T) {
	s := seriesOf("income", map[string]model.Value{
		"10100": model.Available(0),
		"10200": model.Available(50),
		"10300": model.Available(100),
	})

	n := Normalize(s, HigherIsBetter)
	assert.Equal(t, 0.0, n.Get("10100").Amount)
	assert.Equal(t, 50.0, n.Get("10200").Amount)
	assert.Equal(t, 100.0, n.Get("10300").Amount)
}

func TestNormalizeDegenerateDistribution(t *testing.T) {
	// No spread means no information: everyone sits at the midpoint.
	s := seriesOf("income", map[string]model.Value{
		"10100": model.Available(10),
		"10200": model.Available(10),
		"10300": model.Available(10),
	})

	n := Normalize(s, HigherIsBetter)
	for _, code := range n.Codes() {
		assert.Equal(t, 50.0, n.Get(code).Amount, "cbsa %s", code)
	}
}

func TestNormalizeLowerIsBetterInverts(t *testing.T) {
	s := seriesOf("advisor_per_10k", map[string]model.Value{
		"10100": model.Available(1),
		"10200": model.Available(2),
		"10300": model.Available(3),
	})

	n := Normalize(s, LowerIsBetter)
	assert.Equal(t, 100.0, n.Get("10100").Amount)
	assert.Equal(t, 50.0, n.Get("10200").Amount)
	assert.Equal(t, 0.0, n.Get("10300").Amount)
	assert.Greater(t, n.Get("10100").Amount, n.Get("10300").Amount)
}

func TestNormalizeGapPassthrough(t *testing.T) {
	s := seriesOf("income", map[string]model.Value{
		"10100": model.Available(10),
		"10200": model.Gap(),
		"10300": model.Available(30),
	})

	n := Normalize(s, HigherIsBetter)
	assert.True(t, n.Get("10200").IsGap())
	// The gap is excluded from the bounds: 10 and 30 span the range.
	assert.Equal(t, 0.0, n.Get("10100").Amount)
	assert.Equal(t, 100.0, n.Get("10300").Amount)
}

func TestNormalizePreservesStatusAndCoverage(t *testing.T) {
	s := seriesOf("income", map[string]model.Value{
		"10100": model.Partial(10, 0.6),
		"10300": model.Available(30),
	})

	n := Normalize(s, HigherIsBetter)
	got := n.Get("10100")
	assert.Equal(t, model.StatusPartial, got.Status)
	assert.Equal(t, 0.6, got.Coverage)
}

func TestNormalizeAllGaps(t *testing.T) {
	s := seriesOf("income", map[string]model.Value{
		"10100": model.Gap(),
		"10200": model.Gap(),
	})

	n := Normalize(s, HigherIsBetter)
	assert.True(t, n.Get("10100").IsGap())
	assert.True(t, n.Get("10200").IsGap())
}
