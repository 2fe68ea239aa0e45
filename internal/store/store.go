// Package store persists the analysis pipeline's inputs and outputs:
// crosswalk vintages, county-level source tables, and the run-scoped
// derived tables (CBSA aggregates, metric series, rankings, market
// screens, gap logs). Postgres backs shared deployments; SQLite covers
// single-machine use.
package store

import (
	"context"
	"time"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

// CrosswalkInfo summarizes one loaded delineation vintage.
type CrosswalkInfo struct {
	Year     int       `json:"year"`
	Counties int       `json:"counties"`
	Cbsas    int       `json:"cbsas"`
	LoadedAt time.Time `json:"loaded_at"`
}

// DomainInfo summarizes one synced county table.
type DomainInfo struct {
	Domain   string    `json:"domain"`
	Period   string    `json:"period"`
	Counties int       `json:"counties"`
	Fields   int       `json:"fields"`
	SyncedAt time.Time `json:"synced_at"`
}

// Store defines the persistence interface for the market analysis
// pipeline. Load methods return (nil, nil) when the requested data has
// simply never been written; callers decide whether that is an error.
type Store interface {
	// Crosswalk
	SaveCrosswalk(ctx context.Context, year int, rows []crosswalk.Row) error
	LoadCrosswalk(ctx context.Context, year int) (*crosswalk.Store, error)
	ListCrosswalks(ctx context.Context) ([]CrosswalkInfo, error)

	// County tables
	SaveCountyTable(ctx context.Context, tbl *model.CountyTable) error
	LoadCountyTable(ctx context.Context, domain, period string) (*model.CountyTable, error)
	ListDomains(ctx context.Context) ([]DomainInfo, error)

	// Analysis runs
	CreateRun(ctx context.Context, period string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	LatestRun(ctx context.Context, status model.RunStatus) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Derived tables, all scoped to a run
	SaveCbsaTable(ctx context.Context, runID string, tbl *model.CbsaTable) error
	LoadCbsaTable(ctx context.Context, runID, domain string) (*model.CbsaTable, error)
	SaveSeries(ctx context.Context, runID string, series []*metrics.Series) error
	LoadSeries(ctx context.Context, runID, metric string) (*metrics.Series, error)
	SaveRanking(ctx context.Context, runID string, r metrics.Ranking) error
	LoadRanking(ctx context.Context, runID, metric string) (*metrics.Ranking, error)
	SaveMarkets(ctx context.Context, runID string, markets []market.Market) error
	LoadMarkets(ctx context.Context, runID string) ([]market.Market, error)
	SaveGapEntries(ctx context.Context, runID string, entries []gaps.Entry) error
	LoadGapEntries(ctx context.Context, runID string) ([]gaps.Entry, error)

	// Sync log
	StartSync(ctx context.Context, source, period string) (string, error)
	FinishSync(ctx context.Context, syncID string, status model.RunStatus, rows int64, errMsg string) error
	LastSync(ctx context.Context, source string) (*model.SyncRecord, error)
	ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
