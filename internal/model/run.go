package model

import "time"

// RunStatus tracks an analysis run or source sync through its lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one end-to-end analysis execution: aggregate, score, rank,
// screen. Every derived table references the run that produced it, so a
// re-analysis adds a new run instead of overwriting history.
type Run struct {
	ID          string     `json:"id"`
	Period      string     `json:"period"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SyncRecord is one source sync attempt. Cadence gating reads the latest
// complete record per source to decide whether a source is due again.
type SyncRecord struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Period     string     `json:"period"`
	Status     RunStatus  `json:"status"`
	Rows       int64      `json:"rows"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
