package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/marketscope/internal/model"
)

// TieMethod selects how tied scores consume ranks.
type TieMethod int

const (
	// TiesDense gives tied scores one rank and the next distinct score
	// the following rank: [90, 90, 80] → 1, 1, 2.
	TiesDense TieMethod = iota
	// TiesOrdinal skips ranks by tie-group size: [90, 90, 80] → 1, 1, 3.
	TiesOrdinal
)

// InsufficientData labels entries that cannot be ranked for lack of data.
const InsufficientData = "Insufficient Data"

// Quartile category labels, low to high.
var quartileLabels = [4]string{"Low", "Moderate", "High", "Very High"}

// RankedEntry is one CBSA's position in a ranking. Rank is nil for gap
// entries: a market with no data has no position, not a bad one.
type RankedEntry struct {
	CBSA     string       `json:"cbsa"`
	Rank     *int         `json:"rank"`
	Score    float64      `json:"score"`
	Status   model.Status `json:"status"`
	Coverage float64      `json:"coverage"`
	Label    string       `json:"label"`
}

// Ranking is an ordered ranking of one metric: ranked entries first (best
// rank upward), gap entries last in CBSA order.
type Ranking struct {
	Metric  string        `json:"metric"`
	Period  string        `json:"period"`
	Entries []RankedEntry `json:"entries"`
}

// Top returns the first n ranked entries (gap entries never appear).
func (r Ranking) Top(n int) []RankedEntry {
	var out []RankedEntry
	for _, e := range r.Entries {
		if e.Rank == nil {
			break
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}

// Ranked returns how many entries received a rank.
func (r Ranking) Ranked() int {
	n := 0
	for _, e := range r.Entries {
		if e.Rank != nil {
			n++
		}
	}
	return n
}

// RankOptions configures Rank. The zero value ranks descending (higher
// score = better = rank 1) with dense ties.
type RankOptions struct {
	Ascending bool
	Ties      TieMethod
}

// Rank orders a series and labels each entry by the quartile of the
// eligible score distribution. Boundary scores take the lower category.
// Gap points are retained unranked with the InsufficientData label.
func Rank(s *Series, opts RankOptions) Ranking {
	type scored struct {
		code string
		v    model.Value
	}

	var eligible, gapped []scored
	for _, code := range s.Codes() {
		v := s.Points[code]
		if v.Eligible() {
			eligible = append(eligible, scored{code, v})
		} else {
			gapped = append(gapped, scored{code, v})
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].v.Amount == eligible[j].v.Amount {
			return eligible[i].code < eligible[j].code
		}
		if opts.Ascending {
			return eligible[i].v.Amount < eligible[j].v.Amount
		}
		return eligible[i].v.Amount > eligible[j].v.Amount
	})

	qs, hasQs := quartiles(eligible, func(e scored) float64 { return e.v.Amount })

	out := Ranking{Metric: s.Name, Period: s.Period, Entries: make([]RankedEntry, 0, len(eligible)+len(gapped))}

	rank := 0
	for i, e := range eligible {
		switch {
		case i == 0:
			rank = 1
		case e.v.Amount != eligible[i-1].v.Amount:
			if opts.Ties == TiesOrdinal {
				rank = i + 1
			} else {
				rank++
			}
		}

		label := ""
		if hasQs {
			label = labelFor(e.v.Amount, qs)
		}
		r := rank
		out.Entries = append(out.Entries, RankedEntry{
			CBSA:     e.code,
			Rank:     &r,
			Score:    e.v.Amount,
			Status:   e.v.Status,
			Coverage: e.v.Coverage,
			Label:    label,
		})
	}

	for _, g := range gapped {
		out.Entries = append(out.Entries, RankedEntry{
			CBSA:   g.code,
			Status: model.StatusGap,
			Label:  InsufficientData,
		})
	}
	return out
}

func quartiles[T any](items []T, amount func(T) float64) ([3]float64, bool) {
	if len(items) == 0 {
		return [3]float64{}, false
	}
	xs := make([]float64, len(items))
	for i, it := range items {
		xs[i] = amount(it)
	}
	sort.Float64s(xs)
	return [3]float64{
		stat.Quantile(0.25, stat.LinInterp, xs, nil),
		stat.Quantile(0.5, stat.LinInterp, xs, nil),
		stat.Quantile(0.75, stat.LinInterp, xs, nil),
	}, true
}

func labelFor(score float64, qs [3]float64) string {
	switch {
	case score <= qs[0]:
		return quartileLabels[0]
	case score <= qs[1]:
		return quartileLabels[1]
	case score <= qs[2]:
		return quartileLabels[2]
	default:
		return quartileLabels[3]
	}
}
