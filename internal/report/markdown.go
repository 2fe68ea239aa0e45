package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
)

// WriteMarkdown renders the executive summary: a top-N table, short market
// profiles, the data-gap tally, and the scoring methodology.
func WriteMarkdown(w io.Writer, res *market.Result, tbl *model.CbsaTable, counts map[string]gaps.StatusCounts, opts Options) error {
	var b bytes.Buffer

	b.WriteString("# Top Underserved Wealth Management Markets\n\n")
	fmt.Fprintf(&b, "*Generated on %s*\n\n", opts.date().Format("2006-01-02"))

	fmt.Fprintf(&b, "## Executive Summary\n\n")
	fmt.Fprintf(&b, "%d markets were scored for period %s and %d received a rank. "+
		"The markets below combine high wealth concentration and solid economic "+
		"fundamentals with comparatively thin financial-advisor coverage, which "+
		"makes them candidates for expansion.\n\n",
		len(res.Markets), res.Period, res.Ranking.Ranked())

	top := topMarkets(res, opts.topN())

	fmt.Fprintf(&b, "## Top %d Underserved Markets\n\n", len(top))
	b.WriteString("| Rank | Market | Underserved | Potential | Advisors per 10k | Population | High Income % | GDP Growth |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, m := range top {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			rankCell(m.Rank),
			displayTitle(m),
			score(m.Underserved),
			score(m.Potential),
			rate(m.AdvisorPer10k),
			grouped(extra(tbl, m.CBSA, market.FieldPopulation)),
			pct(extra(tbl, m.CBSA, market.DerivedHighIncomePct)),
			fractionPct(extra(tbl, m.CBSA, market.DerivedGDPCAGR)),
		)
	}
	b.WriteString("\n")

	profiles := top
	if len(profiles) > opts.profiles() {
		profiles = profiles[:opts.profiles()]
	}
	if len(profiles) > 0 {
		b.WriteString("## Market Profiles\n\n")
		for i, m := range profiles {
			writeProfile(&b, i+1, m, tbl)
		}
	}

	if len(counts) > 0 {
		b.WriteString("## Data Gaps\n\n")
		b.WriteString("| Metric | Available | Partial | Gap |\n")
		b.WriteString("|---|---|---|---|\n")
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := counts[name]
			fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", name, c.Available, c.Partial, c.Gap)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Methodology\n\n")
	b.WriteString("Underserved scores blend two composites of min-max normalized (0-100) metrics:\n\n")
	b.WriteString("1. **Market Potential** (60% weight): wealth concentration blended with economic growth at 70/30.\n")
	b.WriteString("2. **Advisor Coverage** (40% weight): advisor density per 10,000 residents, inverted so scarce coverage scores high.\n\n")
	b.WriteString("Markets missing an input are reported as Insufficient Data instead of being scored at zero, and normalization runs over the markets that reported, so scores compare markets within this analysis only.\n")

	if _, err := w.Write(b.Bytes()); err != nil {
		return eris.Wrap(err, "report: write markdown")
	}
	return nil
}

// topMarkets returns the first n ranked markets. Markets arrive in ranking
// order with unrankable ones last, so the walk stops at the first gap.
func topMarkets(res *market.Result, n int) []market.Market {
	var out []market.Market
	for _, m := range res.Markets {
		if m.Rank == nil {
			break
		}
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out
}

func displayTitle(m market.Market) string {
	if m.Title != "" {
		return m.Title
	}
	return m.CBSA
}

func writeProfile(b *bytes.Buffer, position int, m market.Market, tbl *model.CbsaTable) {
	fmt.Fprintf(b, "### %d. %s\n\n", position, displayTitle(m))
	fmt.Fprintf(b, "**Underserved Score:** %s  \n", score(m.Underserved))
	fmt.Fprintf(b, "**Market Potential:** %s  \n", score(m.Potential))
	fmt.Fprintf(b, "**Advisor Penetration:** %s per 10,000 residents  \n", rate(m.AdvisorPer10k))
	if v := extra(tbl, m.CBSA, market.FieldPopulation); v.Eligible() {
		fmt.Fprintf(b, "**Population:** %s  \n", grouped(v))
	}
	if v := extra(tbl, m.CBSA, market.DerivedHighIncomePct); v.Eligible() {
		fmt.Fprintf(b, "**High-Income Households:** %s  \n", pct(v))
	}
	if v := extra(tbl, m.CBSA, market.DerivedLuxuryHomePct); v.Eligible() {
		fmt.Fprintf(b, "**Luxury Homes:** %s  \n", pct(v))
	}
	if v := extra(tbl, m.CBSA, market.DerivedDepositPC); v.Eligible() {
		fmt.Fprintf(b, "**Banking Deposits per Capita:** %s  \n", dollars(v))
	}
	if v := extra(tbl, m.CBSA, market.DerivedGDPCAGR); v.Eligible() {
		fmt.Fprintf(b, "**GDP Growth Rate:** %s  \n", fractionPct(v))
	}

	var indicators []string
	if v := extra(tbl, m.CBSA, market.DerivedHighIncomePct); v.Eligible() {
		indicators = append(indicators, fmt.Sprintf("%s high-income households", pct(v)))
	}
	if v := extra(tbl, m.CBSA, market.DerivedLuxuryHomePct); v.Eligible() {
		indicators = append(indicators, fmt.Sprintf("%s luxury homes", pct(v)))
	}
	if v := extra(tbl, m.CBSA, market.DerivedDepositPC); v.Eligible() {
		indicators = append(indicators, fmt.Sprintf("%s deposits per capita", dollars(v)))
	}
	if len(indicators) > 0 {
		fmt.Fprintf(b, "\n**Opportunity Summary:**  \n%s pairs concentrated wealth (%s) with thin advisor coverage.",
			displayTitle(m), strings.Join(indicators, ", "))
		if v := extra(tbl, m.CBSA, market.DerivedGDPCAGR); v.Eligible() && v.Amount > 0 {
			fmt.Fprintf(b, " The market is also growing, with a %s real GDP CAGR.", fractionPct(v))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
