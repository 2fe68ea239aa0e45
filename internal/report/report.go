// Package report renders ranked underserved-market results for distribution
// outside the store: a machine-readable CSV, an XLSX workbook, and a
// markdown summary.
package report

import (
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/marketscope/internal/model"
)

// Defaults for the markdown summary.
const (
	DefaultTopN     = 15
	DefaultProfiles = 5
)

// Options configure the markdown summary.
type Options struct {
	TopN     int       // markets in the summary table
	Profiles int       // narrative profiles below the table
	Now      time.Time // report date; zero means the current time
}

func (o Options) topN() int {
	if o.TopN > 0 {
		return o.TopN
	}
	return DefaultTopN
}

func (o Options) profiles() int {
	if o.Profiles > 0 {
		return o.Profiles
	}
	return DefaultProfiles
}

func (o Options) date() time.Time {
	if !o.Now.IsZero() {
		return o.Now
	}
	return time.Now()
}

// num groups digits for human-facing figures (population, deposits).
var num = message.NewPrinter(language.AmericanEnglish)

// score renders a 0-100 score with one decimal, "-" for gaps.
func score(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return strconv.FormatFloat(v.Amount, 'f', 1, 64)
}

// rate renders a small ratio with two decimals, "-" for gaps.
func rate(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return strconv.FormatFloat(v.Amount, 'f', 2, 64)
}

// pct renders an already-scaled percentage, "-" for gaps.
func pct(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return strconv.FormatFloat(v.Amount, 'f', 2, 64) + "%"
}

// fractionPct renders a fraction (e.g. a CAGR) as a percentage.
func fractionPct(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return strconv.FormatFloat(v.Amount*100, 'f', 2, 64) + "%"
}

// grouped renders a whole number with digit grouping, "-" for gaps.
func grouped(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return num.Sprintf("%.0f", v.Amount)
}

// dollars renders a whole dollar figure with digit grouping, "-" for gaps.
func dollars(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return "$" + num.Sprintf("%.0f", v.Amount)
}

// rankCell renders a rank, "-" for unranked entries.
func rankCell(r *int) string {
	if r == nil {
		return "-"
	}
	return strconv.Itoa(*r)
}

// extra reads a supporting field from the combined metrics table, tolerating
// a nil table for callers that only have the ranked screen.
func extra(tbl *model.CbsaTable, cbsa, field string) model.Value {
	if tbl == nil {
		return model.Gap()
	}
	return tbl.Get(cbsa, field)
}
