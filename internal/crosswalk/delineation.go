package crosswalk

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/model"
)

// Census delineation file columns (List 1 layout), matched case-insensitively.
const (
	colCbsaCode   = "cbsa code"
	colCbsaTitle  = "cbsa title"
	colKind       = "metropolitan/micropolitan statistical area"
	colStateFIPS  = "fips state code"
	colCountyFIPS = "fips county code"
)

// LoadXLSX parses a Census CBSA delineation workbook (List 1 layout: two
// preamble rows, a header row, then one row per member county, trailing
// note rows) into delineation rows.
func LoadXLSX(path string) ([]Row, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "crosswalk: read delineation workbook")
	}
	return parseDelineation(rows)
}

// LoadCSV parses a CSV export of the delineation file. Census publishes
// these Latin-1 encoded (county names like Doña Ana), so decoding is on.
func LoadCSV(ctx context.Context, path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "crosswalk: open delineation csv")
	}
	defer f.Close()

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{LazyQuotes: true, Latin1: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "crosswalk: stream delineation csv")
	}
	return parseDelineation(rows)
}

// parseDelineation locates the header row and converts the county rows that
// follow it. Preamble and trailing note rows carry no FIPS columns and are
// skipped; anything that looks like a data row passes through so Build can
// report malformed codes instead of silently dropping them.
func parseDelineation(rows [][]string) ([]Row, error) {
	headerIdx := -1
	var cols map[string]int
	for i, row := range rows {
		if len(row) > 0 && normalizeHeader(row[0]) == colCbsaCode {
			cols = indexColumns(row)
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, eris.New("crosswalk: delineation header row not found")
	}
	for _, c := range []string{colCbsaTitle, colKind, colStateFIPS, colCountyFIPS} {
		if _, ok := cols[c]; !ok {
			return nil, eris.Errorf("crosswalk: delineation missing column %q", c)
		}
	}

	var out []Row
	for _, row := range rows[headerIdx+1:] {
		code := strings.TrimSpace(cell(row, cols[colCbsaCode]))
		state := cell(row, cols[colStateFIPS])
		county := cell(row, cols[colCountyFIPS])

		if !validCbsaCode(code) && strings.TrimSpace(state) == "" && strings.TrimSpace(county) == "" {
			continue
		}

		out = append(out, Row{
			CountyFIPS: model.CombineFIPS(state, county),
			CbsaCode:   code,
			Title:      strings.TrimSpace(cell(row, cols[colCbsaTitle])),
			Kind:       parseKind(cell(row, cols[colKind])),
		})
	}
	if len(out) == 0 {
		return nil, eris.New("crosswalk: delineation contained no county rows")
	}
	return out, nil
}

func parseKind(s string) Kind {
	if strings.Contains(strings.ToLower(s), "metro") {
		return Metropolitan
	}
	return Micropolitan
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[normalizeHeader(col)] = i
	}
	return m
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
