package market

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// Market status quadrants: wealth potential crossed with advisor scarcity.
const (
	StatusUnderserved    = "Underserved"     // high potential, thin coverage
	StatusCompetitive    = "Competitive"     // high potential, crowded
	StatusLowOpportunity = "Low Opportunity" // little potential, little supply
	StatusOversaturated  = "Oversaturated"   // little potential, crowded
	StatusBalanced       = "Balanced"
)

// Market is one CBSA's underserved-market assessment.
type Market struct {
	CBSA          string         `json:"cbsa"`
	Title         string         `json:"title"`
	States        []string       `json:"states"`
	Kind          crosswalk.Kind `json:"kind"`
	Rank          *int           `json:"rank"`
	Label         string         `json:"label"`
	MarketStatus  string         `json:"market_status"`
	Underserved   model.Value    `json:"underserved_score"`
	Potential     model.Value    `json:"market_potential"`
	Coverage      model.Value    `json:"advisor_coverage"`
	AdvisorPer10k model.Value    `json:"advisor_per_10k"`
	HNWIDensity   model.Value    `json:"hnwi_density_index"`
}

// Result carries the ranked underserved screen and its component series.
type Result struct {
	Period      string
	Ranking     metrics.Ranking
	Markets     []Market // ranking order, unrankable markets last
	Wealth      *metrics.Series
	Growth      *metrics.Series // nil when no growth inputs exist
	Potential   *metrics.Series
	Coverage    *metrics.Series
	Underserved *metrics.Series
}

// IdentifyUnderserved scores every CBSA on market potential against advisor
// coverage and ranks by the blend. High coverage scores mean scarce
// advisors: those are the markets worth entering.
func IdentifyUnderserved(tbl *model.CbsaTable, cw *crosswalk.Store) (*Result, error) {
	wealthComponents, err := normalizedPresent(tbl, []string{
		IndexHNWIDensity,
		DerivedHighIncomePct,
		DerivedLuxuryHomePct,
	})
	if err != nil {
		return nil, eris.Wrap(err, "market: underserved: wealth inputs")
	}
	wealth := metrics.BuildMeanIndex(ScoreWealthPotential, tbl.Period, wealthComponents)

	growth := growthSeries(tbl)

	var potential *metrics.Series
	if growth != nil {
		potential = metrics.BuildComposite(ScoreMarketPotential, tbl.Period, []metrics.Component{
			{Series: wealth, Weight: 0.7},
			{Series: growth, Weight: 0.3},
		})
	} else {
		potential = metrics.BuildComposite(ScoreMarketPotential, tbl.Period, []metrics.Component{
			{Series: wealth, Weight: 1.0},
		})
	}

	advisorRaw := metrics.FromTable(tbl, DerivedAdvisorPer10k)
	if advisorRaw.EligibleCount() == 0 {
		return nil, eris.New("market: underserved: no advisor density data")
	}
	coverage := metrics.Normalize(advisorRaw, metrics.LowerIsBetter)
	coverage.Name = ScoreAdvisorCoverage

	underserved := metrics.BuildComposite(ScoreUnderserved, tbl.Period, []metrics.Component{
		{Series: potential, Weight: 0.6},
		{Series: coverage, Weight: 0.4},
	})

	ranking := metrics.Rank(underserved, metrics.RankOptions{})

	res := &Result{
		Period:      tbl.Period,
		Ranking:     ranking,
		Wealth:      wealth,
		Growth:      growth,
		Potential:   potential,
		Coverage:    coverage,
		Underserved: underserved,
	}

	for _, e := range ranking.Entries {
		m := Market{
			CBSA:          e.CBSA,
			Rank:          e.Rank,
			Label:         e.Label,
			MarketStatus:  marketStatus(potential.Get(e.CBSA), coverage.Get(e.CBSA)),
			Underserved:   underserved.Get(e.CBSA),
			Potential:     potential.Get(e.CBSA),
			Coverage:      coverage.Get(e.CBSA),
			AdvisorPer10k: advisorRaw.Get(e.CBSA),
			HNWIDensity:   tbl.Get(e.CBSA, IndexHNWIDensity),
		}
		if ent, err := cw.Area(e.CBSA); err == nil {
			m.Title = ent.Title
			m.States = ent.States
			m.Kind = ent.Kind
		}
		res.Markets = append(res.Markets, m)
	}
	return res, nil
}

// growthSeries blends GDP growth and economic vitality when either exists.
func growthSeries(tbl *model.CbsaTable) *metrics.Series {
	candidates := []*metrics.Series{
		clampLow(metrics.FromTable(tbl, DerivedGDPCAGR), 0),
		metrics.FromTable(tbl, IndexVitality),
	}

	var norm []*metrics.Series
	for _, s := range candidates {
		if s.EligibleCount() == 0 {
			continue
		}
		norm = append(norm, metrics.Normalize(s, metrics.HigherIsBetter))
	}
	if len(norm) == 0 {
		return nil
	}
	return metrics.BuildMeanIndex(ScoreGrowthPotential, tbl.Period, norm)
}

func marketStatus(potential, coverage model.Value) string {
	if !potential.Eligible() || !coverage.Eligible() {
		return metrics.InsufficientData
	}
	p, c := potential.Amount, coverage.Amount
	switch {
	case p > 60 && c > 60:
		return StatusUnderserved
	case p > 60 && c < 40:
		return StatusCompetitive
	case p < 40 && c < 40:
		return StatusLowOpportunity
	case p < 40 && c > 60:
		return StatusOversaturated
	default:
		return StatusBalanced
	}
}
