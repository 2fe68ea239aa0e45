package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/pipeline"
	"github.com/sells-group/marketscope/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate, score, and rank CBSA markets",
	Long:  "Rolls the staged county tables up to CBSA level, derives metrics, scores each market, and screens for underserved territories. Results are stored under a new analysis run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if policy, _ := cmd.Flags().GetString("policy"); policy != "" {
			cfg.Analyze.PolicyFile = policy
		}
		if weights, _ := cmd.Flags().GetString("weights"); weights != "" {
			cfg.Analyze.WeightsFile = weights
		}
		if cmd.Flags().Changed("strict") {
			cfg.Analyze.Strict, _ = cmd.Flags().GetBool("strict")
		}
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := source.NewRegistry(cfg)
		res, err := pipeline.New(cfg, st, reg).Run(ctx)
		if err != nil {
			return err
		}

		formatAnalyzeSummary(os.Stdout, res, cfg.Analyze.TopN)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("policy", "", "rollup policy file (default built-in per-source rules)")
	analyzeCmd.Flags().String("weights", "", "opportunity weights file (default built-in weights)")
	analyzeCmd.Flags().Bool("strict", false, "fail on counties missing from the crosswalk")
	rootCmd.AddCommand(analyzeCmd)
}

// formatAnalyzeSummary writes the run header and the top underserved
// markets to w.
func formatAnalyzeSummary(out io.Writer, res *pipeline.Result, topN int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(res.RunID))
	_, _ = fmt.Fprintf(w, "Period:\t%s\n", res.Period)
	_, _ = fmt.Fprintf(w, "Domains:\t%s\n", strings.Join(res.Domains, ", "))
	_, _ = fmt.Fprintf(w, "CBSAs:\t%d\n", len(res.Table.Rows))
	_, _ = fmt.Fprintf(w, "Ranked:\t%d\n", res.Screen.Ranking.Ranked())
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	formatMarketsTable(out, res.Screen.Markets, topN)
}

// formatMarketsTable writes the ranked markets to w, best first, up to
// limit rows. Unrankable markets never appear; the report exports carry
// them.
func formatMarketsTable(out io.Writer, markets []market.Market, limit int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tCBSA\tMARKET\tSCORE\tLABEL\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t-----\t-----\t------")

	shown := 0
	for _, m := range markets {
		if m.Rank == nil {
			continue
		}
		if limit > 0 && shown == limit {
			break
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			*m.Rank,
			m.CBSA,
			truncate(m.Title, 40),
			formatScore(m.Underserved),
			m.Label,
			m.MarketStatus,
		)
		shown++
	}
	_ = w.Flush()
}

// formatScore renders a 0-100 score with one decimal, "-" for gaps.
func formatScore(v model.Value) string {
	if !v.Eligible() {
		return "-"
	}
	return fmt.Sprintf("%.1f", v.Amount)
}
