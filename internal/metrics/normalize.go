package metrics

import "github.com/sells-group/marketscope/internal/model"

// Direction states whether a high raw value is good or bad for the metric.
type Direction int

const (
	HigherIsBetter Direction = iota
	// LowerIsBetter series are stored inverted after normalization so
	// composites always treat higher as better (advisor density is the
	// canonical case: fewer advisors per resident = more opportunity).
	LowerIsBetter
)

// Normalize min-max scales a series to [0,100] over its eligible points.
// Gaps pass through untouched and never influence the bounds. When every
// eligible value is identical there is no spread to scale, and each gets
// the midpoint 50. Lower-is-better series come back inverted (100 - n).
func Normalize(s *Series, dir Direction) *Series {
	out := NewSeries(s.Name, s.Period)

	min, max, any := bounds(s)
	for code, v := range s.Points {
		if !v.Eligible() {
			out.Points[code] = v
			continue
		}

		var n float64
		switch {
		case !any || max == min:
			n = 50
		default:
			n = 100 * (v.Amount - min) / (max - min)
		}
		if dir == LowerIsBetter {
			n = 100 - n
		}
		out.Points[code] = model.Value{Amount: n, Status: v.Status, Coverage: v.Coverage}
	}
	return out
}

func bounds(s *Series) (min, max float64, any bool) {
	for _, v := range s.Points {
		if !v.Eligible() {
			continue
		}
		if !any || v.Amount < min {
			min = v.Amount
		}
		if !any || v.Amount > max {
			max = v.Amount
		}
		any = true
	}
	return min, max, any
}
