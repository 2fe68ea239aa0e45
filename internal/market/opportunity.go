package market

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// WeightedField is one component of the opportunity composite. Weights are
// scaled by the sum of absolute weights at build time, so a tweaked config
// need not re-balance to exactly 1.0.
type WeightedField struct {
	Field  string  `yaml:"field"`
	Weight float64 `yaml:"weight"`
	Invert bool    `yaml:"invert,omitempty"` // lower raw value = better
}

// DefaultOpportunityWeights mirror the advisory-market scoring model:
// affluence density and demand carry most of the weight, advisor scarcity
// is rewarded (inverted), and demand per advisor rounds it out.
func DefaultOpportunityWeights() []WeightedField {
	return []WeightedField{
		{Field: IndexHNWIDensity, Weight: 0.25},
		{Field: DerivedHighIncomePct, Weight: 0.15},
		{Field: DerivedGDPCAGR, Weight: 0.15},
		{Field: DerivedAdvisorPer10k, Weight: 0.25, Invert: true},
		{Field: DerivedHNWIAdvisor, Weight: 0.20},
	}
}

// LoadWeights reads opportunity weights from a YAML file with a top-level
// "weights" list.
func LoadWeights(path string) ([]WeightedField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "market: read weights %s", path)
	}
	return ParseWeights(data)
}

// ParseWeights parses and validates a YAML weights document.
func ParseWeights(data []byte) ([]WeightedField, error) {
	var wrapper struct {
		Weights []WeightedField `yaml:"weights"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "market: parse weights")
	}
	if len(wrapper.Weights) == 0 {
		return nil, eris.New("market: parse weights: no weights declared")
	}
	for i, w := range wrapper.Weights {
		if w.Field == "" {
			return nil, eris.Errorf("market: parse weights: entry %d has no field", i)
		}
	}
	return wrapper.Weights, nil
}

// OpportunityScore builds the weighted opportunity composite over freshly
// normalized components. Any CBSA missing a component gaps rather than
// scoring as zero.
func OpportunityScore(tbl *model.CbsaTable, weights []WeightedField) (*metrics.Series, error) {
	if len(weights) == 0 {
		return nil, eris.New("market: opportunity score: no weights configured")
	}

	var total float64
	for _, w := range weights {
		total += math.Abs(w.Weight)
	}
	if total == 0 {
		return nil, eris.New("market: opportunity score: weights sum to zero")
	}

	comps := make([]metrics.Component, 0, len(weights))
	for _, w := range weights {
		dir := metrics.HigherIsBetter
		if w.Invert {
			dir = metrics.LowerIsBetter
		}
		comps = append(comps, metrics.Component{
			Series: metrics.Normalize(metrics.FromTable(tbl, w.Field), dir),
			Weight: math.Abs(w.Weight) / total,
		})
	}
	return metrics.BuildComposite(ScoreOpportunity, tbl.Period, comps), nil
}

// OverallScore blends the three headline indexes. The inputs are already
// on the 0-100 scale, so they combine directly without re-normalizing.
func OverallScore(period string, hnwi, opportunity, vitality *metrics.Series) *metrics.Series {
	return metrics.BuildComposite(ScoreOverall, period, []metrics.Component{
		{Series: hnwi, Weight: 0.4},
		{Series: opportunity, Weight: 0.4},
		{Series: vitality, Weight: 0.2},
	})
}
