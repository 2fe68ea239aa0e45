// Package pipeline orchestrates the analysis stage: staged county tables
// roll up through the crosswalk, derived metrics and indexes build on the
// combined table, every CBSA is scored and ranked, and the underserved
// screen plus all intermediate series persist under a single run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/config"
	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/source"
	"github.com/sells-group/marketscope/internal/store"
)

// Analyzer runs the full analysis over whatever the sync stage has staged.
// It reads county tables and the crosswalk from the store, never from the
// publishers, so analyze works offline once sync has run.
type Analyzer struct {
	cfg *config.Config
	st  store.Store
	reg *source.Registry
}

func New(cfg *config.Config, st store.Store, reg *source.Registry) *Analyzer {
	return &Analyzer{cfg: cfg, st: st, reg: reg}
}

// Result summarizes one completed analysis run.
type Result struct {
	RunID    string
	Period   string
	Domains  []string
	Table    *model.CbsaTable
	Rankings []metrics.Ranking
	Screen   *market.Result
	Gaps     map[string]gaps.StatusCounts
}

// Run executes the analysis and records it as a run. The run is created
// once the input tables are known and marked failed if any later stage
// errors, so a partial run never masquerades as a completed one.
func (a *Analyzer) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	start := time.Now()

	cw, err := a.st.LoadCrosswalk(ctx, a.cfg.Crosswalk.Year)
	if err != nil {
		return nil, err
	}
	if cw == nil {
		return nil, eris.New("pipeline: no crosswalk loaded")
	}

	tables, err := a.loadCountyTables(ctx, log)
	if err != nil {
		return nil, err
	}
	period := newestPeriod(tables)

	run, err := a.st.CreateRun(ctx, period)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID), zap.String("period", period))
	log.Info("analysis started", zap.Int("domains", len(tables)))

	res, err := a.analyze(ctx, log, run.ID, cw, tables, period)
	if err != nil {
		a.finishRun(ctx, log, run.ID, model.RunStatusFailed, err.Error())
		return nil, err
	}
	a.finishRun(ctx, log, run.ID, model.RunStatusComplete, "")

	log.Info("analysis complete",
		zap.Int("cbsas", len(res.Table.Rows)),
		zap.Int("markets", len(res.Screen.Markets)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, log *zap.Logger, runID string, cw *crosswalk.Store, tables []model.CountyTable, period string) (*Result, error) {
	tracker := gaps.NewTracker()

	var (
		perDomain []*model.CbsaTable
		domains   []string
	)
	err := stage(log, "aggregate", func() error {
		policy, err := a.policy()
		if err != nil {
			return err
		}
		opts := []rollup.Option{rollup.WithGapTracker(tracker)}
		if a.cfg.Analyze.Strict {
			opts = append(opts, rollup.WithStrict())
		}
		agg := rollup.New(cw, policy, opts...)
		for _, tbl := range tables {
			out, err := agg.Aggregate(tbl)
			if err != nil {
				return err
			}
			perDomain = append(perDomain, out)
			domains = append(domains, tbl.Domain)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var combined *model.CbsaTable
	err = stage(log, "derive", func() error {
		combined = market.Combine(period, perDomain...)
		market.Derive(combined, a.cfg.Analyze.GDPSpanYears)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var groupSeries []*metrics.Series
	err = stage(log, "groups", func() error {
		results := market.RunGroups(ctx, combined, market.Groups(), a.cfg.Analyze.GroupConcurrency)
		for _, res := range results {
			if res.Err != nil {
				// RunGroups already logged it; the screen below decides
				// whether the missing family is fatal.
				continue
			}
			groupSeries = append(groupSeries, res.Series...)
		}
		merge(combined, groupSeries...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var opportunity, overall *metrics.Series
	err = stage(log, "score", func() error {
		weights, err := a.weights()
		if err != nil {
			return err
		}
		opportunity, err = market.OpportunityScore(combined, weights)
		if err != nil {
			return err
		}
		merge(combined, opportunity)

		overall = market.OverallScore(period,
			metrics.FromTable(combined, market.IndexHNWIDensity),
			opportunity,
			metrics.FromTable(combined, market.IndexVitality),
		)
		merge(combined, overall)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var screen *market.Result
	err = stage(log, "screen", func() error {
		s, err := market.IdentifyUnderserved(combined, cw)
		if err != nil {
			return err
		}
		screen = s
		merge(combined, s.Wealth, s.Growth, s.Potential, s.Coverage, s.Underserved)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Availability of fields computed after aggregation is recorded here;
	// the aggregator only sees raw domain fields.
	recordComputed(tracker, combined)

	rankings := []metrics.Ranking{
		screen.Ranking,
		metrics.Rank(opportunity, metrics.RankOptions{}),
		metrics.Rank(overall, metrics.RankOptions{}),
	}

	err = stage(log, "persist", func() error {
		for _, tbl := range perDomain {
			if err := a.st.SaveCbsaTable(ctx, runID, tbl); err != nil {
				return err
			}
		}
		if err := a.st.SaveCbsaTable(ctx, runID, combined); err != nil {
			return err
		}

		series := make([]*metrics.Series, 0, len(groupSeries)+7)
		series = append(series, groupSeries...)
		series = append(series, opportunity, overall)
		for _, s := range []*metrics.Series{screen.Wealth, screen.Growth, screen.Potential, screen.Coverage, screen.Underserved} {
			if s != nil {
				series = append(series, s)
			}
		}
		if err := a.st.SaveSeries(ctx, runID, series); err != nil {
			return err
		}

		for _, r := range rankings {
			if err := a.st.SaveRanking(ctx, runID, r); err != nil {
				return err
			}
		}
		if err := a.st.SaveMarkets(ctx, runID, screen.Markets); err != nil {
			return err
		}
		return a.st.SaveGapEntries(ctx, runID, tracker.Entries())
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:    runID,
		Period:   period,
		Domains:  domains,
		Table:    combined,
		Rankings: rankings,
		Screen:   screen,
		Gaps:     tracker.Summarize(),
	}, nil
}

// loadCountyTables loads the newest staged table for every domain.
func (a *Analyzer) loadCountyTables(ctx context.Context, log *zap.Logger) ([]model.CountyTable, error) {
	infos, err := a.st.ListDomains(ctx)
	if err != nil {
		return nil, err
	}

	// ListDomains orders newest-first within each domain.
	seen := make(map[string]bool)
	var tables []model.CountyTable
	for _, info := range infos {
		if seen[info.Domain] {
			continue
		}
		seen[info.Domain] = true

		tbl, err := a.st.LoadCountyTable(ctx, info.Domain, info.Period)
		if err != nil {
			return nil, err
		}
		if tbl == nil {
			continue
		}
		log.Debug("loaded county table",
			zap.String("domain", info.Domain),
			zap.String("period", info.Period),
			zap.Int("counties", len(tbl.Records)),
		)
		tables = append(tables, *tbl)
	}
	if len(tables) == 0 {
		return nil, eris.New("pipeline: no county tables staged")
	}
	return tables, nil
}

// policy returns the file override when configured, else the roster's
// built-in rules.
func (a *Analyzer) policy() (*rollup.Policy, error) {
	if a.cfg.Analyze.PolicyFile != "" {
		return rollup.LoadPolicy(a.cfg.Analyze.PolicyFile)
	}
	return a.reg.Policy(), nil
}

func (a *Analyzer) weights() ([]market.WeightedField, error) {
	if a.cfg.Analyze.WeightsFile != "" {
		return market.LoadWeights(a.cfg.Analyze.WeightsFile)
	}
	return market.DefaultOpportunityWeights(), nil
}

// finishRun records the run outcome. Bookkeeping failures are logged, never
// propagated, so they cannot mask the analysis error. The parent context
// may already be cancelled when marking a run failed.
func (a *Analyzer) finishRun(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus, errMsg string) {
	if err := a.st.CompleteRun(context.WithoutCancel(ctx), runID, status, errMsg); err != nil {
		log.Warn("failed to record run status",
			zap.String("status", string(status)), zap.Error(err))
	}
}

// stage times fn and logs its outcome.
func stage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		log.Error("stage failed",
			zap.String("stage", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	log.Info("stage complete",
		zap.String("stage", name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// merge copies series points into the combined table as fields, keyed by
// series name. Nil series (a screen with no growth data) are skipped.
func merge(tbl *model.CbsaTable, series ...*metrics.Series) {
	for _, s := range series {
		if s == nil {
			continue
		}
		for code, v := range s.Points {
			tbl.Row(code).Set(s.Name, v)
		}
	}
}

// recordComputed back-fills availability entries for every field the
// aggregator did not record, so derived metrics, indexes, and scores show
// up in the gap summary alongside raw ones.
func recordComputed(tr *gaps.Tracker, tbl *model.CbsaTable) {
	seen := make(map[string]bool)
	for _, m := range tr.Metrics() {
		seen[m] = true
	}
	for _, field := range tbl.FieldNames() {
		if seen[field] {
			continue
		}
		for _, code := range tbl.Codes() {
			v := tbl.Get(code, field)
			reason := ""
			if v.Status == model.StatusGap {
				reason = "insufficient inputs"
			}
			tr.Record(code, field, v.Status, reason)
		}
	}
}

func newestPeriod(tables []model.CountyTable) string {
	var newest string
	for _, tbl := range tables {
		if tbl.Period > newest {
			newest = tbl.Period
		}
	}
	return newest
}
