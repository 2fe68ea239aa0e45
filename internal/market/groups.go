package market

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// A Group computes one family of metric series from the combined table.
// Groups own disjoint output namespaces, so they can run concurrently over
// the same immutable input.
type Group struct {
	Name string
	Run  func(ctx context.Context, tbl *model.CbsaTable) ([]*metrics.Series, error)
}

// GroupResult is one group's outcome. A failed group carries its error and
// no series; the other groups' outputs are unaffected.
type GroupResult struct {
	Name   string
	Series []*metrics.Series
	Err    error
}

// Groups returns the standard metric groups.
func Groups() []Group {
	return []Group{
		{Name: "hnwi", Run: hnwiGroup},
		{Name: "finserv", Run: finservGroup},
		{Name: "vitality", Run: vitalityGroup},
	}
}

// RunGroups executes metric groups concurrently with a bounded limit. A
// failing group is logged and reported in its result, never aborts the
// rest of the run.
func RunGroups(ctx context.Context, tbl *model.CbsaTable, groups []Group, limit int) []GroupResult {
	log := zap.L().With(zap.String("component", "market"))
	if limit <= 0 {
		limit = len(groups)
	}

	var (
		mu      sync.Mutex
		results []GroupResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			var res GroupResult
			res.Name = grp.Name

			if err := gctx.Err(); err != nil {
				res.Err = eris.Wrapf(err, "market: group %s cancelled", grp.Name)
			} else {
				res.Series, res.Err = grp.Run(gctx, tbl)
			}

			if res.Err != nil {
				log.Warn("metric group failed",
					zap.String("group", grp.Name), zap.Error(res.Err))
			} else {
				log.Debug("metric group complete",
					zap.String("group", grp.Name), zap.Int("series", len(res.Series)))
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil // a failed group must not cancel the others
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// hnwiGroup builds the HNWI density index: the equal-weight mean of
// normalized affluence shares.
func hnwiGroup(_ context.Context, tbl *model.CbsaTable) ([]*metrics.Series, error) {
	norm, err := normalizedPresent(tbl, []string{
		DerivedHighIncomePct,
		DerivedLuxuryHomePct,
		DerivedDepositPC,
		DerivedCollegePct,
	})
	if err != nil {
		return nil, eris.Wrap(err, "market: hnwi group")
	}
	return []*metrics.Series{metrics.BuildMeanIndex(IndexHNWIDensity, tbl.Period, norm)}, nil
}

// finservGroup surfaces the advisor-coverage series consumed by the
// opportunity composite and the underserved screen.
func finservGroup(_ context.Context, tbl *model.CbsaTable) ([]*metrics.Series, error) {
	out := []*metrics.Series{
		metrics.FromTable(tbl, DerivedAdvisorPer10k),
		metrics.FromTable(tbl, DerivedBranchPer100k),
		metrics.FromTable(tbl, DerivedHNWIAdvisor),
	}
	eligible := 0
	for _, s := range out {
		eligible += s.EligibleCount()
	}
	if eligible == 0 {
		return nil, eris.New("market: finserv group: no advisor coverage data")
	}
	return out, nil
}

// vitalityGroup builds the economic vitality index. GDP declines are
// floored at zero growth so a shrinking economy reads as no vitality
// rather than dragging the other components negative.
func vitalityGroup(_ context.Context, tbl *model.CbsaTable) ([]*metrics.Series, error) {
	candidates := []*metrics.Series{
		clampLow(metrics.FromTable(tbl, DerivedGDPCAGR), 0),
		metrics.FromTable(tbl, DerivedWealthConc),
		metrics.FromTable(tbl, DerivedExecDensity),
	}

	var norm []*metrics.Series
	for _, s := range candidates {
		if s.EligibleCount() == 0 {
			continue
		}
		norm = append(norm, metrics.Normalize(s, metrics.HigherIsBetter))
	}
	if len(norm) == 0 {
		return nil, eris.New("market: vitality group: no eligible component series")
	}
	return []*metrics.Series{metrics.BuildMeanIndex(IndexVitality, tbl.Period, norm)}, nil
}

// normalizedPresent normalizes the named fields, skipping those with no
// eligible data so one empty source doesn't gap an entire index.
func normalizedPresent(tbl *model.CbsaTable, fields []string) ([]*metrics.Series, error) {
	var out []*metrics.Series
	for _, f := range fields {
		s := metrics.FromTable(tbl, f)
		if s.EligibleCount() == 0 {
			zap.L().Debug("skipping component with no eligible data",
				zap.String("component", "market"), zap.String("field", f))
			continue
		}
		out = append(out, metrics.Normalize(s, metrics.HigherIsBetter))
	}
	if len(out) == 0 {
		return nil, eris.New("no eligible component series")
	}
	return out, nil
}

// clampLow floors eligible values of a series, leaving gaps untouched.
func clampLow(s *metrics.Series, floor float64) *metrics.Series {
	out := metrics.NewSeries(s.Name, s.Period)
	for code, v := range s.Points {
		if v.Eligible() && v.Amount < floor {
			v.Amount = floor
		}
		out.Points[code] = v
	}
	return out
}
