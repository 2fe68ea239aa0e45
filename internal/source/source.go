// Package source syncs county-level statistics from their federal
// publishers into the store. Each publisher is a Source; the Engine
// schedules due sources, runs them with bounded concurrency, and records
// every attempt in the sync log.
package source

import (
	"context"
	"time"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
)

// Cadence describes how often a source publishes upstream.
type Cadence string

const (
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Annual    Cadence = "annual"
)

// SyncResult holds the outcome of a source sync.
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Source defines the interface each county-level data source implements.
type Source interface {
	// Name returns the unique identifier for this source (e.g. "acs").
	Name() string

	// Domain returns the county-table domain the source stages into
	// (model.CountyTable.Domain).
	Domain() string

	// Cadence returns how often the publisher updates upstream.
	Cadence() Cadence

	// ShouldRun decides if this source needs syncing given the current time
	// and the time of the last successful sync (nil if never synced).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Policy declares the aggregation rules for every field this source
	// stages. The registry assembles the built-in rollup policy from these.
	Policy() rollup.DomainPolicy

	// Sync downloads, parses, and stages county tables through the store.
	// tempDir is a working directory for downloads. full backfills every
	// vintage the publisher still serves instead of just the latest.
	Sync(ctx context.Context, st store.Store, f fetcher.Fetcher, tempDir string, full bool) (*SyncResult, error)
}
