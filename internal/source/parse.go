package source

import (
	"strconv"
	"strings"
)

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name from a CSV record, returning empty
// string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// trimQuotes removes surrounding double quotes from a CSV field.
func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// parseFloatOr parses a numeric field, returning def when the field is
// empty, a suppression flag, or unparseable. Comma digit grouping is
// accepted (FDIC publishes deposit totals that way).
func parseFloatOr(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" || s == "**" || s == "#" {
		return def
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return def
	}
	return v
}

// padFIPS zero-pads a numeric FIPS fragment to width. CSV exports strip
// leading zeros, so Alameda County arrives as "6001" rather than "06001".
func padFIPS(s string, width int) string {
	s = strings.TrimSpace(s)
	for len(s) > 0 && len(s) < width {
		s = "0" + s
	}
	return s
}
