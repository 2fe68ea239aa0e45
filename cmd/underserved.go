package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/report"
)

var underservedCmd = &cobra.Command{
	Use:   "underserved",
	Short: "Export the underserved-market screen",
	Long:  "Renders the latest completed analysis run's underserved-market screen as markdown, CSV, or an XLSX workbook. With no output flags the markdown summary goes to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.LatestRun(ctx, model.RunStatusComplete)
		if err != nil {
			return eris.Wrap(err, "load latest run")
		}
		if run == nil {
			return eris.New("no completed analysis run, run 'marketscope analyze' first")
		}

		markets, err := st.LoadMarkets(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "load markets")
		}
		ranking, err := st.LoadRanking(ctx, run.ID, market.ScoreUnderserved)
		if err != nil {
			return eris.Wrap(err, "load ranking")
		}
		if len(markets) == 0 || ranking == nil {
			return eris.Errorf("run %s has no underserved screen", truncateID(run.ID))
		}

		// The combined table and gap log enrich the reports; both tolerate
		// absence.
		tbl, err := st.LoadCbsaTable(ctx, run.ID, "combined")
		if err != nil {
			return eris.Wrap(err, "load combined table")
		}
		entries, err := st.LoadGapEntries(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "load gap entries")
		}
		tr := gaps.NewTracker()
		for _, e := range entries {
			tr.Record(e.CBSA, e.Metric, e.Status, e.Reason)
		}
		counts := tr.Summarize()

		res := &market.Result{
			Period:  run.Period,
			Ranking: *ranking,
			Markets: markets,
		}

		top, _ := cmd.Flags().GetInt("top")
		profiles, _ := cmd.Flags().GetInt("profiles")
		opts := report.Options{TopN: top, Profiles: profiles}

		csvPath, _ := cmd.Flags().GetString("csv")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		mdPath, _ := cmd.Flags().GetString("markdown")

		wrote := false
		if csvPath != "" {
			err := writeReportFile(csvPath, func(w io.Writer) error {
				return report.WriteCSV(w, res, tbl)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Wrote CSV report to %s\n", csvPath)
			wrote = true
		}
		if xlsxPath != "" {
			if err := report.WriteXLSX(xlsxPath, res, tbl, counts); err != nil {
				return err
			}
			fmt.Printf("Wrote XLSX report to %s\n", xlsxPath)
			wrote = true
		}
		if mdPath != "" {
			err := writeReportFile(mdPath, func(w io.Writer) error {
				return report.WriteMarkdown(w, res, tbl, counts, opts)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Wrote markdown report to %s\n", mdPath)
			wrote = true
		}

		if !wrote {
			return report.WriteMarkdown(os.Stdout, res, tbl, counts, opts)
		}
		return nil
	},
}

func init() {
	underservedCmd.Flags().String("csv", "", "write the CSV export to this path")
	underservedCmd.Flags().String("xlsx", "", "write the XLSX workbook to this path")
	underservedCmd.Flags().String("markdown", "", "write the markdown summary to this path")
	underservedCmd.Flags().Int("top", 0, "markets in the summary table (default 15)")
	underservedCmd.Flags().Int("profiles", 0, "narrative profiles in the summary (default 5)")
	rootCmd.AddCommand(underservedCmd)
}

// writeReportFile creates path, runs write against it, and closes it,
// reporting the first failure.
func writeReportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return nil
}
