//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketscope/internal/monitoring"
)

func TestFormatSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	finished := now.Add(-26 * time.Hour)

	snap := &monitoring.Snapshot{
		RunsTotal:         3,
		RunsComplete:      2,
		RunsFailed:        1,
		RunFailRate:       1.0 / 3.0,
		SyncsTotal:        5,
		SyncsComplete:     4,
		SyncsFailed:       1,
		RowsSynced:        91240,
		LatestCompleteAt:  &finished,
		CrosswalkVintages: 1,
		Domains:           5,
		LookbackHours:     24,
	}

	var buf bytes.Buffer
	formatSnapshot(&buf, snap, now)
	out := buf.String()

	assert.Contains(t, out, "Window:")
	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "3 total, 2 complete, 1 failed, 0 running")
	assert.Contains(t, out, "33%")
	assert.Contains(t, out, "91240")
	assert.Contains(t, out, "2026-03-11 08:00")
	assert.Contains(t, out, "26h ago")
	assert.Contains(t, out, "1 vintage(s)")
	assert.Contains(t, out, "5 synced")
}

func TestFormatSnapshot_NeverRan(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.Snapshot{LookbackHours: 24}, time.Now().UTC())
	out := buf.String()

	assert.Contains(t, out, "never")
	assert.NotContains(t, out, "fail rate", "no finished runs means no rate line")
	assert.NotContains(t, out, "Rows synced")
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{90 * time.Minute, "1h ago"},
		{47 * time.Hour, "47h ago"},
		{49 * time.Hour, "2d ago"},
		{80 * 24 * time.Hour, "80d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(tt.d), "duration %v", tt.d)
	}
}

func TestFormatAlerts_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatAlerts(&buf, nil)
	assert.Contains(t, buf.String(), "No alerts")
}

func TestFormatAlerts_Lists(t *testing.T) {
	var buf bytes.Buffer
	formatAlerts(&buf, []monitoring.Alert{
		{Type: monitoring.AlertSyncFailure, Severity: "high", Message: "2 source sync(s) failed in last 24h"},
		{Type: monitoring.AlertStaleResults, Severity: "medium", Message: "Newest completed analysis run is 72h old, limit is 24h"},
	})
	out := buf.String()

	assert.Contains(t, out, "Alerts (2):")
	assert.Contains(t, out, "[high] 2 source sync(s) failed")
	assert.Contains(t, out, "[medium] Newest completed analysis run")
}
