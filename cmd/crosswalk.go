package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/store"
)

var crosswalkCmd = &cobra.Command{
	Use:   "crosswalk",
	Short: "Manage the county-to-CBSA crosswalk",
	Long:  "Commands for loading and inspecting Census CBSA delineation vintages.",
}

var crosswalkLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a CBSA delineation file into the store",
	Long:  "Downloads the configured Census delineation workbook (or reads a local file) and persists the county-to-CBSA crosswalk.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if file, _ := cmd.Flags().GetString("file"); file != "" {
			cfg.Crosswalk.File = file
		}
		if year, _ := cmd.Flags().GetInt("year"); year != 0 {
			cfg.Crosswalk.Year = year
		}
		if err := cfg.Validate("crosswalk"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "crosswalk.load"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		file := cfg.Crosswalk.File
		if file == "" {
			tempDir, err := os.MkdirTemp("", "marketscope-crosswalk-")
			if err != nil {
				return eris.Wrap(err, "create temp dir")
			}
			defer os.RemoveAll(tempDir) //nolint:errcheck

			file = filepath.Join(tempDir, delineationFilename(cfg.Crosswalk.URL))
			log.Info("downloading delineation file", zap.String("url", cfg.Crosswalk.URL))

			if err := downloadDelineation(ctx, cfg.Crosswalk.URL, file); err != nil {
				return eris.Wrap(err, "download delineation file")
			}
		}

		var rows []crosswalk.Row
		if strings.EqualFold(filepath.Ext(file), ".csv") {
			rows, err = crosswalk.LoadCSV(ctx, file)
		} else {
			rows, err = crosswalk.LoadXLSX(file)
		}
		if err != nil {
			return err
		}

		// Build before saving so integrity problems surface here instead
		// of at analyze time.
		b := crosswalk.NewBuilder()
		for _, row := range rows {
			b.Add(row)
		}
		cw, err := b.Build()
		if err != nil {
			return err
		}

		if err := st.SaveCrosswalk(ctx, cfg.Crosswalk.Year, rows); err != nil {
			return err
		}

		log.Info("crosswalk loaded",
			zap.Int("year", cfg.Crosswalk.Year),
			zap.Int("cbsas", cw.Len()),
			zap.Int("counties", cw.CountyCount()),
		)
		fmt.Printf("Loaded %d counties across %d CBSAs (vintage %d)\n", cw.CountyCount(), cw.Len(), cfg.Crosswalk.Year)
		return nil
	},
}

var crosswalkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List loaded crosswalk vintages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		infos, err := st.ListCrosswalks(ctx)
		if err != nil {
			return eris.Wrap(err, "crosswalk status")
		}

		if len(infos) == 0 {
			zap.L().Info("no crosswalk vintages loaded, run 'crosswalk load' first")
			return nil
		}

		formatCrosswalkList(os.Stdout, infos)
		return nil
	},
}

func init() {
	crosswalkLoadCmd.Flags().String("file", "", "local delineation file (default from config)")
	crosswalkLoadCmd.Flags().Int("year", 0, "delineation vintage year (default from config)")

	crosswalkCmd.AddCommand(crosswalkLoadCmd)
	crosswalkCmd.AddCommand(crosswalkStatusCmd)
	rootCmd.AddCommand(crosswalkCmd)
}

// downloadDelineation fetches the delineation file over HTTPS or, for
// ftp:// URLs, the Census FTP mirror.
func downloadDelineation(ctx context.Context, rawURL, dest string) error {
	if strings.HasPrefix(rawURL, "ftp://") {
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
		_, err := f.DownloadToFile(ctx, rawURL, dest)
		return err
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 3})
	_, err := f.DownloadToFile(ctx, rawURL, dest)
	return err
}

// delineationFilename derives a local filename from the delineation URL so
// the extension-based parser dispatch still works for downloads.
func delineationFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "delineation.xlsx"
	}
	name := path.Base(u.Path)
	if filepath.Ext(name) == "" {
		return "delineation.xlsx"
	}
	return name
}

// formatCrosswalkList writes a tabular list of crosswalk vintages to w.
func formatCrosswalkList(out io.Writer, infos []store.CrosswalkInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "YEAR\tCBSAS\tCOUNTIES\tLOADED")
	_, _ = fmt.Fprintln(w, "----\t-----\t--------\t------")

	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\n",
			info.Year,
			info.Cbsas,
			info.Counties,
			info.LoadedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
