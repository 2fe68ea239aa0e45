package source

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
	"github.com/sells-group/marketscope/pkg/bea"
)

// CAINC5N lines summed into wealth_industry_earnings: manufacturing
// (0400), finance and insurance (0700), real estate (0800), professional
// services (0900), and management of companies (1102). The wage and
// proprietors'-income component lines overlap these, so they stay out of
// the sum.
var wealthIndustryLines = map[string]struct{}{
	"0400": {},
	"0700": {},
	"0800": {},
	"0900": {},
	"1102": {},
}

// BEAIncome implements the BEA county personal income source: CAINC1 for
// total personal income and CAINC5N for earnings in wealth-creating
// industries.
type BEAIncome struct {
	client bea.Client
}

func NewBEAIncome(client bea.Client) *BEAIncome {
	return &BEAIncome{client: client}
}

func (s *BEAIncome) Name() string     { return "beainc" }
func (s *BEAIncome) Domain() string   { return "bea_income" }
func (s *BEAIncome) Cadence() Cadence { return Annual }

func (s *BEAIncome) ShouldRun(now time.Time, lastSync *time.Time) bool {
	// County personal income for the prior year comes out each November.
	return AnnualAfter(now, lastSync, time.November)
}

func (s *BEAIncome) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Fields: map[string]rollup.FieldRule{
			market.FieldPersonalIncome: {Kind: rollup.RuleSum},
			market.FieldWealthEarnings: {Kind: rollup.RuleSum},
		},
	}
}

// Sync probes CAINC1 for the newest vintage, stages total personal income
// from its line 1, and adds the CAINC5N wealth-industry earnings for the
// same year. Both tables publish in thousands of dollars. full has no
// effect.
func (s *BEAIncome) Sync(ctx context.Context, st store.Store, _ fetcher.Fetcher, _ string, _ bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "beainc"))

	thisYear := time.Now().Year()
	candidates := []int{thisYear - 1, thisYear - 2, thisYear - 3, thisYear - 4}
	incObs, err := s.client.Regional(ctx, bea.RegionalQuery{
		TableName: "CAINC1",
		Years:     candidates,
	})
	if err != nil {
		return nil, eris.Wrap(err, "beainc: probe personal income vintages")
	}

	endYear := latestYear(incObs)
	if endYear == 0 {
		return nil, eris.New("beainc: no county personal income published in the last four years")
	}
	period := strconv.Itoa(endYear)

	acc := newCountyAccumulator(period)
	for _, o := range incObs {
		// CAINC1 line 1 is personal income; lines 2 and 3 (population,
		// per-capita income) are covered by the ACS profile.
		if o.TimePeriod != period || o.LineCode != "1" {
			continue
		}
		if fips, v, ok := countyValue(o); ok {
			acc.set(fips, market.FieldPersonalIncome, v)
		}
	}

	earnObs, err := s.client.Regional(ctx, bea.RegionalQuery{
		TableName: "CAINC5N",
		Years:     []int{endYear},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "beainc: earnings by industry year %d", endYear)
	}
	for _, o := range earnObs {
		if _, wealth := wealthIndustryLines[o.LineCode]; !wealth {
			continue
		}
		if fips, v, ok := countyValue(o); ok {
			acc.add(fips, market.FieldWealthEarnings, v)
		}
	}

	tbl := acc.table(s.Domain())
	if len(tbl.Records) == 0 {
		return nil, eris.Errorf("beainc: no county rows for %d", endYear)
	}
	if err := st.SaveCountyTable(ctx, tbl); err != nil {
		return nil, eris.Wrapf(err, "beainc: save %s", period)
	}

	log.Info("staged county personal income",
		zap.Int("year", endYear),
		zap.Int("counties", len(tbl.Records)),
	)

	return &SyncResult{
		RowsSynced: int64(len(tbl.Records)),
		Metadata:   map[string]any{"year": endYear},
	}, nil
}
