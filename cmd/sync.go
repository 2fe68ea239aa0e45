package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/source"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync county-level source data",
	Long:  "Commands for pulling ACS, BEA, FDIC SOD, OEWS, and IRS SOI county tables into the store.",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync due sources",
	Long:  "Checks each source against its cadence and syncs the ones that are due. Use --force to sync regardless and --full to backfill.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "sync.run"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := parseSyncOpts(cmd)

		tempDir := cfg.Sync.TempDir
		if tempDir == "" {
			tempDir, err = os.MkdirTemp("", "marketscope-sync-")
			if err != nil {
				return eris.Wrap(err, "create temp dir")
			}
			defer os.RemoveAll(tempDir) //nolint:errcheck
		} else if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return eris.Wrapf(err, "create temp dir %s", tempDir)
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  "marketscope/1.0 (data sync)",
			MaxRetries: 3,
		})

		reg := source.NewRegistry(cfg)
		engine := source.NewEngine(st, f, reg, tempDir, cfg.Sync.Concurrency)

		log.Info("starting sync",
			zap.Strings("sources", opts.Sources),
			zap.Bool("force", opts.Force),
			zap.Bool("full", opts.Full),
		)

		if err := engine.Run(ctx, opts); err != nil {
			return eris.Wrap(err, "sync run")
		}

		fmt.Println("Sync complete")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the source sync log",
	Long:  "Displays recent sync attempts for every source, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListSyncs(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "sync status")
		}

		if len(recs) == 0 {
			zap.L().Info("no sync entries found, run 'sync run' to start syncing sources")
			return nil
		}

		formatSyncList(os.Stdout, recs)
		return nil
	},
}

func init() {
	syncRunCmd.Flags().String("sources", "", "comma-separated source names (default all)")
	syncRunCmd.Flags().Bool("force", false, "sync even when a source is not due")
	syncRunCmd.Flags().Bool("full", false, "backfill instead of incremental sync")

	syncStatusCmd.Flags().Int("limit", 20, "max number of sync entries to display")

	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}

// parseSyncOpts reads the sync run flags into engine options.
func parseSyncOpts(cmd *cobra.Command) source.RunOpts {
	var opts source.RunOpts

	if raw, _ := cmd.Flags().GetString("sources"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Sources = append(opts.Sources, name)
			}
		}
	}
	opts.Force, _ = cmd.Flags().GetBool("force")
	opts.Full, _ = cmd.Flags().GetBool("full")
	return opts
}

// formatSyncList writes a tabular representation of sync records to w.
func formatSyncList(out io.Writer, recs []model.SyncRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t----\t-----")

	for _, r := range recs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		errMsg := ""
		if r.Error != "" {
			errMsg = truncate(r.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(r.ID),
			r.Source,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Rows,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
