package source

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/store"
)

// Engine orchestrates source sync runs.
type Engine struct {
	store   store.Store
	fetcher fetcher.Fetcher
	reg     *Registry
	tempDir string
	workers int
}

// RunOpts configures which sources to sync and how.
type RunOpts struct {
	Sources []string // restrict to specific source names
	Force   bool     // ignore ShouldRun() scheduling
	Full    bool     // backfill instead of incremental
}

// NewEngine creates a new sync engine running at most workers sources
// at a time.
func NewEngine(st store.Store, f fetcher.Fetcher, reg *Registry, tempDir string, workers int) *Engine {
	return &Engine{
		store:   st,
		fetcher: f,
		reg:     reg,
		tempDir: tempDir,
		workers: workers,
	}
}

// Run checks which of the selected sources are due, syncs them, and
// records each outcome in the sync log. A failing source is logged and
// counted but does not stop the others.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "source.engine"))
	now := time.Now().UTC()

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Info("no sources selected")
		return nil
	}
	log.Info("selected sources", zap.Int("count", len(sources)))

	limit := e.workers
	if limit < 1 {
		limit = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	var synced, skipped, failed int

	for _, src := range sources {
		src := src
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			srcLog := log.With(zap.String("source", src.Name()))

			if !opts.Force {
				last, err := e.store.LastSync(gCtx, src.Name())
				if err != nil {
					return eris.Wrapf(err, "engine: check last sync for %s", src.Name())
				}
				var lastAt *time.Time
				if last != nil {
					lastAt = last.FinishedAt
				}
				if !src.ShouldRun(now, lastAt) {
					srcLog.Debug("skipping (not due)")
					mu.Lock()
					skipped++
					mu.Unlock()
					return nil
				}
			}

			srcLog.Info("starting sync")
			syncID, err := e.store.StartSync(gCtx, src.Name(), "")
			if err != nil {
				return eris.Wrapf(err, "engine: start sync log for %s", src.Name())
			}

			start := time.Now()
			result, err := src.Sync(gCtx, e.store, e.fetcher, e.tempDir, opts.Full)
			elapsed := time.Since(start)

			if err != nil {
				srcLog.Error("sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
				if logErr := e.store.FinishSync(gCtx, syncID, model.RunStatusFailed, 0, err.Error()); logErr != nil {
					srcLog.Error("failed to record sync failure", zap.Error(logErr))
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			if err := e.store.FinishSync(gCtx, syncID, model.RunStatusComplete, result.RowsSynced, ""); err != nil {
				srcLog.Error("failed to record sync completion", zap.Error(err))
			}

			srcLog.Info("sync complete",
				zap.Int64("rows", result.RowsSynced),
				zap.Duration("elapsed", elapsed),
			)
			mu.Lock()
			synced++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("engine run complete",
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}
