// Package metrics turns aggregated CBSA tables into normalized series,
// composite indexes, and rankings.
package metrics

import (
	"sort"

	"github.com/sells-group/marketscope/internal/model"
)

// Series holds one metric across CBSAs for one period. At most one value
// per CBSA; missing CBSAs read as gaps.
type Series struct {
	Name   string                 `json:"name"`
	Period string                 `json:"period"`
	Points map[string]model.Value `json:"points"`
}

func NewSeries(name, period string) *Series {
	return &Series{Name: name, Period: period, Points: make(map[string]model.Value)}
}

// FromTable extracts one field of an aggregated CBSA table as a series.
func FromTable(tbl *model.CbsaTable, field string) *Series {
	s := NewSeries(field, tbl.Period)
	for code, row := range tbl.Rows {
		s.Points[code] = row.Get(field)
	}
	return s
}

func (s *Series) Set(cbsa string, v model.Value) {
	s.Points[cbsa] = v
}

// Get returns the value for a CBSA, a gap when absent.
func (s *Series) Get(cbsa string) model.Value {
	if v, ok := s.Points[cbsa]; ok {
		return v
	}
	return model.Gap()
}

// Codes returns the CBSA codes present in the series, ascending.
func (s *Series) Codes() []string {
	out := make([]string, 0, len(s.Points))
	for code := range s.Points {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// EligibleAmounts returns the amounts of available and partial points.
// Gaps are excluded: they are missing data, not zeros.
func (s *Series) EligibleAmounts() []float64 {
	var out []float64
	for _, code := range s.Codes() {
		if v := s.Points[code]; v.Eligible() {
			out = append(out, v.Amount)
		}
	}
	return out
}

// EligibleCount returns the number of available and partial points.
func (s *Series) EligibleCount() int {
	n := 0
	for _, v := range s.Points {
		if v.Eligible() {
			n++
		}
	}
	return n
}
