package market

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/model"
)

// Combine merges aggregated domain tables into one working table keyed by
// CBSA. Field names are disjoint across domains; a collision keeps the
// first value and warns, so a misconfigured policy is visible instead of
// silently overwritten.
func Combine(period string, tables ...*model.CbsaTable) *model.CbsaTable {
	log := zap.L().With(zap.String("component", "market"))
	out := model.NewCbsaTable("combined", period)

	for _, tbl := range tables {
		if tbl == nil {
			continue
		}
		codes := make([]string, 0, len(tbl.Rows))
		for code := range tbl.Rows {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		for _, code := range codes {
			src := tbl.Rows[code]
			dst := out.Row(code)
			for field, v := range src.Fields {
				if _, exists := dst.Fields[field]; exists {
					log.Warn("field collision while combining domains, keeping first",
						zap.String("field", field), zap.String("domain", tbl.Domain))
					continue
				}
				dst.Set(field, v)
			}
		}
		out.Unsupported = append(out.Unsupported, tbl.Unsupported...)
	}
	sort.Strings(out.Unsupported)
	return out
}

// Derive computes the CBSA-level derived metrics from the combined table in
// place. Any missing or zero-denominator input gaps the derived field;
// statuses and coverage propagate from the weakest input. gdpYears is the
// span of the GDP CAGR window.
func Derive(tbl *model.CbsaTable, gdpYears int) {
	for _, code := range tbl.Codes() {
		row := tbl.Row(code)

		pop := row.Get(FieldPopulation)
		households := row.Get(FieldHouseholds)

		row.Set(DerivedHighIncomePct, ratio(row.Get(FieldHighIncomeHouseholds), households, 100))
		row.Set(DerivedLuxuryHomePct, ratio(row.Get(FieldLuxuryHomes), row.Get(FieldOwnerUnits), 100))
		row.Set(DerivedCollegePct, ratio(row.Get(FieldCollegeDegrees), row.Get(FieldPop25Plus), 100))
		row.Set(DerivedWealthAgePct, ratio(row.Get(FieldPop45to64), pop, 100))
		row.Set(DerivedHighAGIPct, ratio(row.Get(FieldHighAGIReturns), row.Get(FieldTotalReturns), 100))
		row.Set(DerivedAvgAGI, ratio(row.Get(FieldTotalAGI), row.Get(FieldTotalReturns), 1000)) // $k per return → $
		row.Set(DerivedDepositPC, ratio(row.Get(FieldDeposits), pop, 1000)) // $k → $
		row.Set(DerivedBranchPer100k, ratio(row.Get(FieldBranches), pop, 100000))
		row.Set(DerivedAdvisorPer10k, ratio(row.Get(FieldAdvisors), pop, 10000))
		row.Set(DerivedWealthConc, ratio(row.Get(FieldWealthEarnings), row.Get(FieldPersonalIncome), 1))
		row.Set(DerivedGDPCAGR, cagr(row.Get(FieldGDPEnd), row.Get(FieldGDPStart), gdpYears))
		row.Set(DerivedHNWIAdvisor, hnwiToAdvisor(row.Get(DerivedHighIncomePct), households, row.Get(FieldAdvisors)))
	}

	deriveExecDensity(tbl)
}

// deriveExecDensity scales each CBSA's high-income share against the
// national best, a proxy for executive concentration when occupation-level
// data is not broken out below the advisor series.
func deriveExecDensity(tbl *model.CbsaTable) {
	var max float64
	var any bool
	for _, code := range tbl.Codes() {
		v := tbl.Row(code).Get(DerivedHighIncomePct)
		if v.Eligible() && (!any || v.Amount > max) {
			max = v.Amount
			any = true
		}
	}

	for _, code := range tbl.Codes() {
		row := tbl.Row(code)
		v := row.Get(DerivedHighIncomePct)
		if !v.Eligible() || !any || max == 0 {
			row.Set(DerivedExecDensity, model.Gap())
			continue
		}
		row.Set(DerivedExecDensity, model.Value{
			Amount:   v.Amount / max * 100,
			Status:   v.Status,
			Coverage: v.Coverage,
		})
	}
}

// ratio divides two values with a unit scale. Gaps or a zero denominator
// yield a gap: a market with no households has no high-income share, not a
// share of zero.
func ratio(num, den model.Value, scale float64) model.Value {
	if !num.Eligible() || !den.Eligible() || den.Amount == 0 {
		return model.Gap()
	}
	return model.Value{
		Amount:   num.Amount / den.Amount * scale,
		Status:   num.Status.Combine(den.Status),
		Coverage: math.Min(num.Coverage, den.Coverage),
	}
}

// cagr computes the compound annual growth rate over years. A missing
// endpoint or a non-positive starting value gaps the metric.
func cagr(end, start model.Value, years int) model.Value {
	if !end.Eligible() || !start.Eligible() || start.Amount <= 0 || years <= 0 {
		return model.Gap()
	}
	return model.Value{
		Amount:   math.Pow(end.Amount/start.Amount, 1/float64(years)) - 1,
		Status:   end.Status.Combine(start.Status),
		Coverage: math.Min(end.Coverage, start.Coverage),
	}
}

// hnwiToAdvisor estimates high-income households per personal financial
// advisor.
func hnwiToAdvisor(highIncomePct, households, advisors model.Value) model.Value {
	if !highIncomePct.Eligible() || !households.Eligible() || !advisors.Eligible() || advisors.Amount == 0 {
		return model.Gap()
	}
	hnwi := highIncomePct.Amount / 100 * households.Amount
	status := highIncomePct.Status.Combine(households.Status).Combine(advisors.Status)
	return model.Value{
		Amount:   hnwi / advisors.Amount,
		Status:   status,
		Coverage: math.Min(highIncomePct.Coverage, math.Min(households.Coverage, advisors.Coverage)),
	}
}
