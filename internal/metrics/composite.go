package metrics

import "github.com/sells-group/marketscope/internal/model"

// Component is one weighted input of a composite index. The series must
// already be normalized (and inverted where lower is better) so weights are
// always positive contributions.
type Component struct {
	Series *Series
	Weight float64
}

// BuildComposite combines normalized series into a weighted index. Per
// CBSA: any gap component gaps the composite; a missing input is never
// scored as zero and its weight is never redistributed. The composite is
// available only when every component is, partial otherwise, and its
// coverage is the weakest component's coverage.
func BuildComposite(name, period string, components []Component) *Series {
	out := NewSeries(name, period)

	codes := make(map[string]struct{})
	for _, c := range components {
		for code := range c.Series.Points {
			codes[code] = struct{}{}
		}
	}

	for code := range codes {
		var sum float64
		status := model.StatusAvailable
		coverage := 1.0
		gapped := false

		for _, c := range components {
			v := c.Series.Get(code)
			if !v.Eligible() {
				gapped = true
				break
			}
			sum += v.Amount * c.Weight
			status = status.Combine(v.Status)
			if v.Coverage < coverage {
				coverage = v.Coverage
			}
		}

		if gapped {
			out.Points[code] = model.Gap()
			continue
		}
		out.Points[code] = model.Value{Amount: sum, Status: status, Coverage: coverage}
	}
	return out
}

// BuildMeanIndex averages normalized series with equal weights, gapping
// any CBSA missing a component.
func BuildMeanIndex(name, period string, series []*Series) *Series {
	comps := make([]Component, len(series))
	for i, s := range series {
		comps[i] = Component{Series: s, Weight: 1 / float64(len(series))}
	}
	return BuildComposite(name, period, comps)
}
