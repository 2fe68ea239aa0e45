package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
)

// csvHeader lists the exported columns in order. Scores and rates are raw
// numbers; gap values export as empty cells so spreadsheet consumers never
// mistake missing data for zero.
var csvHeader = []string{
	"rank",
	"cbsa",
	"title",
	"states",
	"kind",
	"label",
	"market_status",
	"underserved_score",
	"market_potential",
	"advisor_coverage",
	"advisor_per_10k",
	"hnwi_density_index",
	"population",
	"high_income_household_pct",
	"luxury_home_pct",
	"deposit_per_capita",
	"gdp_cagr",
	"status",
	"coverage",
}

// WriteCSV exports every market in ranking order. tbl supplies the
// supporting demographic columns and may be nil.
func WriteCSV(w io.Writer, res *market.Result, tbl *model.CbsaTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}

	for _, m := range res.Markets {
		rec := []string{
			csvRank(m.Rank),
			m.CBSA,
			m.Title,
			strings.Join(m.States, "|"),
			string(m.Kind),
			m.Label,
			m.MarketStatus,
			csvNum(m.Underserved, 1),
			csvNum(m.Potential, 1),
			csvNum(m.Coverage, 1),
			csvNum(m.AdvisorPer10k, 2),
			csvNum(m.HNWIDensity, 1),
			csvNum(extra(tbl, m.CBSA, market.FieldPopulation), 0),
			csvNum(extra(tbl, m.CBSA, market.DerivedHighIncomePct), 2),
			csvNum(extra(tbl, m.CBSA, market.DerivedLuxuryHomePct), 2),
			csvNum(extra(tbl, m.CBSA, market.DerivedDepositPC), 2),
			csvNum(extra(tbl, m.CBSA, market.DerivedGDPCAGR), 4),
			string(m.Underserved.Status),
			strconv.FormatFloat(m.Underserved.Coverage, 'f', 4, 64),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "report: write csv row for %s", m.CBSA)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

func csvRank(r *int) string {
	if r == nil {
		return ""
	}
	return strconv.Itoa(*r)
}

func csvNum(v model.Value, prec int) string {
	if !v.Eligible() {
		return ""
	}
	return strconv.FormatFloat(v.Amount, 'f', prec, 64)
}
