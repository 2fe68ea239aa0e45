package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapColumns(t *testing.T) {
	idx := mapColumns([]string{"STCNTYBR", " DepSumBr ", "namefull"})
	assert.Equal(t, 0, idx["stcntybr"])
	assert.Equal(t, 1, idx["depsumbr"])
	assert.Equal(t, 2, idx["namefull"])
}

func TestGetCol(t *testing.T) {
	idx := mapColumns([]string{"a", "b", "c"})
	record := []string{"1", "2"}

	assert.Equal(t, "1", getCol(record, idx, "A"))
	assert.Equal(t, "2", getCol(record, idx, "b"))
	// Column exists in the header but the record is short.
	assert.Equal(t, "", getCol(record, idx, "c"))
	assert.Equal(t, "", getCol(record, idx, "missing"))
}

func TestTrimQuotes(t *testing.T) {
	assert.Equal(t, "06001", trimQuotes(`"06001"`))
	assert.Equal(t, "06001", trimQuotes(` "06001" `))
	assert.Equal(t, "plain", trimQuotes("plain"))
	assert.Equal(t, "", trimQuotes(`""`))
}

func TestParseFloatOr(t *testing.T) {
	tests := []struct {
		name string
		s    string
		def  float64
		want float64
	}{
		{"valid integer", "42", 0, 42.0},
		{"valid float", "3.14", 0, 3.14},
		{"comma grouping", "1,234,567", 0, 1234567.0},
		{"comma with decimals", "12,345.67", 0, 12345.67},
		{"negative", "-1.5", 0, -1.5},
		{"empty", "", 99.9, 99.9},
		{"asterisk", "*", -1, -1},
		{"double asterisk", "**", -1, -1},
		{"hash", "#", 0, 0},
		{"non-numeric", "abc", 1.1, 1.1},
		{"with spaces", " 2.5 ", 0, 2.5},
		{"zero", "0", 99, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFloatOr(tt.s, tt.def)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestPadFIPS(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"6001", 5, "06001"},
		{"06001", 5, "06001"},
		{"6", 2, "06"},
		{"1", 3, "001"},
		{" 13 ", 3, "013"},
		{"", 5, ""},
		{"123456", 5, "123456"}, // never truncates
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, padFIPS(tt.s, tt.width), "padFIPS(%q, %d)", tt.s, tt.width)
	}
}

func TestCountyAccumulator(t *testing.T) {
	acc := newCountyAccumulator("2023")

	acc.add("06001", "branches", 1)
	acc.add("06001", "branches", 1)
	acc.add("06001", "deposits", 500)
	acc.set("06041", "advisors", 120)
	acc.set("06041", "advisors", 130) // replaces

	tbl := acc.table("fdic_sod")
	assert.Equal(t, "fdic_sod", tbl.Domain)
	assert.Equal(t, "2023", tbl.Period)
	assert.Len(t, tbl.Records, 2)

	// Sorted ascending by FIPS.
	assert.Equal(t, "06001", tbl.Records[0].FIPS)
	assert.Equal(t, 2.0, tbl.Records[0].Fields["branches"])
	assert.Equal(t, 500.0, tbl.Records[0].Fields["deposits"])
	assert.Equal(t, "06041", tbl.Records[1].FIPS)
	assert.Equal(t, 130.0, tbl.Records[1].Fields["advisors"])
}
