package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCombine(t *testing.T) {
	tests := []struct {
		a    Status
		b    Status
		want Status
	}{
		{StatusAvailable, StatusAvailable, StatusAvailable},
		{StatusAvailable, StatusPartial, StatusPartial},
		{StatusPartial, StatusAvailable, StatusPartial},
		{StatusPartial, StatusPartial, StatusPartial},
		{StatusAvailable, StatusGap, StatusGap},
		{StatusGap, StatusAvailable, StatusGap},
		{StatusPartial, StatusGap, StatusGap},
		{StatusGap, StatusGap, StatusGap},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Combine(tt.b), "%s + %s", tt.a, tt.b)
	}
}

func TestStatusEligible(t *testing.T) {
	assert.True(t, StatusAvailable.Eligible())
	assert.True(t, StatusPartial.Eligible())
	assert.False(t, StatusGap.Eligible())
}

func TestValueConstructors(t *testing.T) {
	g := Gap()
	assert.Equal(t, StatusGap, g.Status)
	assert.True(t, g.IsGap())
	assert.False(t, g.Eligible())

	a := Available(42.5)
	assert.Equal(t, StatusAvailable, a.Status)
	assert.Equal(t, 42.5, a.Amount)
	assert.Equal(t, 1.0, a.Coverage)

	p := Partial(10, 0.75)
	assert.Equal(t, StatusPartial, p.Status)
	assert.Equal(t, 0.75, p.Coverage)
}

func TestObserved(t *testing.T) {
	// Full coverage reports available, anything less reports partial.
	assert.Equal(t, StatusAvailable, Observed(100, 1.0).Status)
	assert.Equal(t, StatusPartial, Observed(100, 0.9375).Status)
	assert.Equal(t, StatusPartial, Observed(100, 0).Status)
}

func TestCbsaRecordGetAbsentField(t *testing.T) {
	rec := &CbsaRecord{CBSA: "41860", Period: "2023", Fields: map[string]Value{}}
	v := rec.Get("median_income")
	assert.True(t, v.IsGap())
}

func TestCountyTableSort(t *testing.T) {
	tbl := CountyTable{
		Domain: "acs",
		Period: "2023",
		Records: []CountyRecord{
			{FIPS: "48113"},
			{FIPS: "06001"},
			{FIPS: "06041"},
		},
	}
	tbl.Sort()
	got := make([]string, len(tbl.Records))
	for i, r := range tbl.Records {
		got[i] = r.FIPS
	}
	assert.Equal(t, []string{"06001", "06041", "48113"}, got)
}

func TestCbsaTableCodesSorted(t *testing.T) {
	tbl := NewCbsaTable("acs", "2023")
	tbl.Row("41860")
	tbl.Row("19100")
	tbl.Row("31080")
	assert.Equal(t, []string{"19100", "31080", "41860"}, tbl.Codes())
}
