package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketscope/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report pipeline health",
	Long:  "Summarizes analysis runs, source syncs, and loaded data over a lookback window, then evaluates the configured alert thresholds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		if hours <= 0 {
			hours = 24
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatSnapshot(os.Stdout, snap, time.Now().UTC())
		formatAlerts(os.Stdout, monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap))
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes the health snapshot as a key-value table.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d total, %d complete, %d failed, %d running\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	if snap.RunsComplete+snap.RunsFailed > 0 {
		_, _ = fmt.Fprintf(w, "Run fail rate:\t%.0f%%\n", snap.RunFailRate*100)
	}
	_, _ = fmt.Fprintf(w, "Syncs:\t%d total, %d complete, %d failed, %d running\n",
		snap.SyncsTotal, snap.SyncsComplete, snap.SyncsFailed, snap.SyncsRunning)
	if snap.RowsSynced > 0 {
		_, _ = fmt.Fprintf(w, "Rows synced:\t%d\n", snap.RowsSynced)
	}

	last := "never"
	if snap.LatestCompleteAt != nil {
		last = fmt.Sprintf("%s (%s)",
			snap.LatestCompleteAt.Format("2006-01-02 15:04"),
			formatAge(now.Sub(*snap.LatestCompleteAt)))
	}
	_, _ = fmt.Fprintf(w, "Last result:\t%s\n", last)
	_, _ = fmt.Fprintf(w, "Crosswalks:\t%d vintage(s)\n", snap.CrosswalkVintages)
	_, _ = fmt.Fprintf(w, "Domains:\t%d synced\n", snap.Domains)
	_ = w.Flush()
}

// formatAge renders a duration the way a person reads dashboards: minutes
// under an hour, hours under two days, days beyond.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatAlerts lists triggered alerts, or a one-line all-clear.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts")
		return
	}
	_, _ = fmt.Fprintf(out, "\nAlerts (%d):\n", len(alerts))
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
	}
}
