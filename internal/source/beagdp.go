package source

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
	"github.com/sells-group/marketscope/pkg/bea"
)

// BEAGDP implements the BEA county real GDP source (Regional table CAGDP9,
// all-industries line). It stages both endpoints of the growth window so
// the CAGR can be computed after aggregation.
type BEAGDP struct {
	client    bea.Client
	spanYears int
}

// NewBEAGDP creates the source. spanYears is the width of the CAGR window.
func NewBEAGDP(client bea.Client, spanYears int) *BEAGDP {
	return &BEAGDP{client: client, spanYears: spanYears}
}

func (s *BEAGDP) Name() string     { return "beagdp" }
func (s *BEAGDP) Domain() string   { return "bea_gdp" }
func (s *BEAGDP) Cadence() Cadence { return Annual }

func (s *BEAGDP) ShouldRun(now time.Time, lastSync *time.Time) bool {
	// County GDP for the prior year comes out each December.
	return AnnualAfter(now, lastSync, time.December)
}

func (s *BEAGDP) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Fields: map[string]rollup.FieldRule{
			market.FieldGDPEnd:   {Kind: rollup.RuleSum},
			market.FieldGDPStart: {Kind: rollup.RuleSum},
		},
	}
}

// Sync probes for the newest published vintage, then pulls the window's
// two endpoint years. full has no effect: the source always stages the
// complete window it needs.
func (s *BEAGDP) Sync(ctx context.Context, st store.Store, _ fetcher.Fetcher, _ string, _ bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "beagdp"))

	span := s.spanYears
	if span < 1 {
		span = 1
	}

	thisYear := time.Now().Year()
	candidates := []int{thisYear - 1, thisYear - 2, thisYear - 3, thisYear - 4}
	obs, err := s.client.Regional(ctx, bea.RegionalQuery{
		TableName: "CAGDP9",
		LineCode:  "1",
		Years:     candidates,
	})
	if err != nil {
		return nil, eris.Wrap(err, "beagdp: probe real GDP vintages")
	}

	endYear := latestYear(obs)
	if endYear == 0 {
		return nil, eris.New("beagdp: no county real GDP published in the last four years")
	}
	startYear := endYear - span

	startObs, err := s.client.Regional(ctx, bea.RegionalQuery{
		TableName: "CAGDP9",
		LineCode:  "1",
		Years:     []int{startYear},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "beagdp: real GDP year %d", startYear)
	}

	period := strconv.Itoa(endYear)
	acc := newCountyAccumulator(period)
	for _, o := range obs {
		if o.TimePeriod != period {
			continue
		}
		if fips, v, ok := countyValue(o); ok {
			acc.set(fips, market.FieldGDPEnd, v)
		}
	}
	for _, o := range startObs {
		if fips, v, ok := countyValue(o); ok {
			acc.set(fips, market.FieldGDPStart, v)
		}
	}

	tbl := acc.table(s.Domain())
	if len(tbl.Records) == 0 {
		return nil, eris.Errorf("beagdp: no county rows for %d", endYear)
	}
	if err := st.SaveCountyTable(ctx, tbl); err != nil {
		return nil, eris.Wrapf(err, "beagdp: save %s", period)
	}

	log.Info("staged county real GDP",
		zap.Int("end_year", endYear),
		zap.Int("start_year", startYear),
		zap.Int("counties", len(tbl.Records)),
	)

	return &SyncResult{
		RowsSynced: int64(len(tbl.Records)),
		Metadata:   map[string]any{"start_year": startYear, "end_year": endYear},
	}, nil
}

// countyValue extracts the county FIPS and value from an observation.
// State and national aggregates (FIPS ending in 000) and withheld cells
// are rejected.
func countyValue(o bea.Observation) (string, float64, bool) {
	if len(o.GeoFips) != 5 || strings.HasSuffix(o.GeoFips, "000") || o.Value == nil {
		return "", 0, false
	}
	return o.GeoFips, *o.Value, true
}

// latestYear returns the newest TimePeriod carrying data, or 0.
func latestYear(obs []bea.Observation) int {
	var best int
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		y, err := strconv.Atoi(o.TimePeriod)
		if err != nil {
			continue
		}
		if y > best {
			best = y
		}
	}
	return best
}
