// Package gaps tracks data-availability outcomes across a pipeline run so
// reports can distinguish "zero opportunity" from "no data".
package gaps

import (
	"sort"
	"sync"

	"github.com/sells-group/marketscope/internal/model"
)

// Entry is one recorded availability outcome for a (CBSA, metric) pair.
type Entry struct {
	CBSA   string       `json:"cbsa"`
	Metric string       `json:"metric"`
	Status model.Status `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// StatusCounts tallies outcomes for one metric.
type StatusCounts struct {
	Available int `json:"available"`
	Partial   int `json:"partial"`
	Gap       int `json:"gap"`
}

// Total returns the number of recorded outcomes for the metric.
func (c StatusCounts) Total() int { return c.Available + c.Partial + c.Gap }

// Tracker accumulates entries across a run. Recording never fails and is
// safe from concurrent metric-group goroutines.
type Tracker struct {
	mu      sync.Mutex
	entries []Entry
	counts  map[string]StatusCounts
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]StatusCounts)}
}

// Record notes the availability outcome of one metric for one CBSA. The
// reason is free text, only kept for gap diagnostics in reports.
func (t *Tracker) Record(cbsa, metric string, status model.Status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Entry{CBSA: cbsa, Metric: metric, Status: status, Reason: reason})

	c := t.counts[metric]
	switch status {
	case model.StatusAvailable:
		c.Available++
	case model.StatusPartial:
		c.Partial++
	default:
		c.Gap++
	}
	t.counts[metric] = c
}

// Summarize returns per-metric status counts.
func (t *Tracker) Summarize() map[string]StatusCounts {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]StatusCounts, len(t.counts))
	for metric, c := range t.counts {
		out[metric] = c
	}
	return out
}

// Metrics returns the recorded metric names in sorted order.
func (t *Tracker) Metrics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.counts))
	for metric := range t.counts {
		out = append(out, metric)
	}
	sort.Strings(out)
	return out
}

// Entries returns a copy of every recorded entry in recording order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// GapEntries returns every entry recorded with gap status.
func (t *Tracker) GapEntries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.Status == model.StatusGap {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
