// Package monitoring watches pipeline health: a Collector snapshots run
// and sync outcomes from the store, an Alerter turns threshold breaches
// into webhook alerts, and a Checker drives both on a timer while the
// API server runs.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	// Analysis runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Source syncs within the lookback window.
	SyncsTotal    int   `json:"syncs_total"`
	SyncsComplete int   `json:"syncs_complete"`
	SyncsFailed   int   `json:"syncs_failed"`
	SyncsRunning  int   `json:"syncs_running"`
	RowsSynced    int64 `json:"rows_synced"`

	// LatestCompleteAt is when the newest completed analysis run finished,
	// regardless of window. Nil when no run has ever completed.
	LatestCompleteAt *time.Time `json:"latest_complete_at,omitempty"`

	// Inventory on record.
	CrosswalkVintages int `json:"crosswalk_vintages"`
	Domains           int `json:"domains"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// snapshotScanLimit bounds how many runs and sync records one snapshot
// reads. Entries past the lookback window are dropped client-side.
const snapshotScanLimit = 10000

// Collector gathers health snapshots from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline health over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, snapshotScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	// Staleness looks past the window: the question is how old the newest
	// completed run is, not whether one landed recently.
	latest, err := c.store.LatestRun(ctx, model.RunStatusComplete)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest complete run")
	}
	if latest != nil {
		at := latest.StartedAt
		if latest.CompletedAt != nil {
			at = *latest.CompletedAt
		}
		snap.LatestCompleteAt = &at
	}

	syncs, err := c.store.ListSyncs(ctx, snapshotScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list syncs")
	}
	for _, rec := range syncs {
		if rec.StartedAt.Before(cutoff) {
			continue
		}
		snap.SyncsTotal++
		switch rec.Status {
		case model.RunStatusComplete:
			snap.SyncsComplete++
			snap.RowsSynced += rec.Rows
		case model.RunStatusFailed:
			snap.SyncsFailed++
		case model.RunStatusRunning:
			snap.SyncsRunning++
		}
	}

	vintages, err := c.store.ListCrosswalks(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list crosswalks")
	}
	snap.CrosswalkVintages = len(vintages)

	domains, err := c.store.ListDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list domains")
	}
	snap.Domains = len(domains)

	return snap, nil
}
