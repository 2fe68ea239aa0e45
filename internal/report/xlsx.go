package report

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
)

var xlsxHeader = []string{
	"Rank", "CBSA", "Market", "States", "Kind", "Opportunity", "Market Status",
	"Underserved Score", "Market Potential", "Advisor Coverage",
	"Advisors per 10k", "HNWI Density", "Population", "High Income %",
	"Luxury Homes %", "Deposits per Capita", "GDP CAGR",
}

// WriteXLSX writes the ranked screen as a workbook: one sheet of markets,
// plus a data-gaps sheet when availability counts were recorded. Numeric
// cells stay numeric so the workbook sorts and filters cleanly; gap values
// are blank, never zero.
func WriteXLSX(path string, res *market.Result, tbl *model.CbsaTable, counts map[string]gaps.StatusCounts) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Underserved Markets")
	if err != nil {
		return eris.Wrap(err, "report: add markets sheet")
	}
	writeMarketsSheet(sheet, res, tbl)

	if len(counts) > 0 {
		gs, err := f.AddSheet("Data Gaps")
		if err != nil {
			return eris.Wrap(err, "report: add gaps sheet")
		}
		writeGapsSheet(gs, counts)
	}

	return eris.Wrapf(f.Save(path), "report: save workbook %s", path)
}

func writeMarketsSheet(sheet *xlsx.Sheet, res *market.Result, tbl *model.CbsaTable) {
	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}

	for _, m := range res.Markets {
		row := sheet.AddRow()
		if m.Rank != nil {
			row.AddCell().SetInt(*m.Rank)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(m.CBSA)
		row.AddCell().SetString(m.Title)
		row.AddCell().SetString(strings.Join(m.States, ", "))
		row.AddCell().SetString(string(m.Kind))
		row.AddCell().SetString(m.Label)
		row.AddCell().SetString(m.MarketStatus)
		valueCell(row, m.Underserved)
		valueCell(row, m.Potential)
		valueCell(row, m.Coverage)
		valueCell(row, m.AdvisorPer10k)
		valueCell(row, m.HNWIDensity)
		valueCell(row, extra(tbl, m.CBSA, market.FieldPopulation))
		valueCell(row, extra(tbl, m.CBSA, market.DerivedHighIncomePct))
		valueCell(row, extra(tbl, m.CBSA, market.DerivedLuxuryHomePct))
		valueCell(row, extra(tbl, m.CBSA, market.DerivedDepositPC))
		valueCell(row, extra(tbl, m.CBSA, market.DerivedGDPCAGR))
	}
}

// valueCell writes a numeric cell, blank for gaps.
func valueCell(row *xlsx.Row, v model.Value) {
	if !v.Eligible() {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetFloat(v.Amount)
}

func writeGapsSheet(sheet *xlsx.Sheet, counts map[string]gaps.StatusCounts) {
	header := sheet.AddRow()
	for _, h := range []string{"Metric", "Available", "Partial", "Gap", "Total"} {
		header.AddCell().SetString(h)
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := counts[name]
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetInt(c.Available)
		row.AddCell().SetInt(c.Partial)
		row.AddCell().SetInt(c.Gap)
		row.AddCell().SetInt(c.Total())
	}
}
