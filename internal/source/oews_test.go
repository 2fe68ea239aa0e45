package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
)

func oewsFixtureZip(t *testing.T, dir string, year int, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("All May data")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, cell := range r {
			row.AddCell().SetString(cell)
		}
	}
	xlsxPath := filepath.Join(dir, fmt.Sprintf("fixture_%d.xlsx", year))
	require.NoError(t, f.Save(xlsxPath))
	data, err := os.ReadFile(xlsxPath)
	require.NoError(t, err)

	return createTestZip(t, dir, fmt.Sprintf("oews_fixture_%d.zip", year), map[string][]byte{
		fmt.Sprintf("oesm%02dma/MSA_M%d_dl.xlsx", year%100, year): data,
		"~$MSA_lock.xlsx": []byte("excel lock file"),
	})
}

func saveTestCrosswalk(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	rows := []crosswalk.Row{
		{CountyFIPS: "06001", CbsaCode: "41860", Title: "San Francisco-Oakland-Berkeley, CA", Kind: crosswalk.Metropolitan},
		{CountyFIPS: "06041", CbsaCode: "41860", Title: "San Francisco-Oakland-Berkeley, CA", Kind: crosswalk.Metropolitan},
		{CountyFIPS: "40143", CbsaCode: "46140", Title: "Tulsa, OK", Kind: crosswalk.Metropolitan},
	}
	require.NoError(t, st.SaveCrosswalk(context.Background(), 2023, rows))
}

func TestOEWS_Metadata(t *testing.T) {
	s := &OEWS{}
	assert.Equal(t, "oews", s.Name())
	assert.Equal(t, "oews", s.Domain())
	assert.Equal(t, Annual, s.Cadence())
}

func TestOEWS_ShouldRun(t *testing.T) {
	s := &OEWS{}

	now := time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC)
	assert.True(t, s.ShouldRun(now, nil))

	lastYear := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, s.ShouldRun(now, &lastYear))

	thisSpring := time.Date(2025, time.April, 20, 0, 0, 0, 0, time.UTC)
	assert.False(t, s.ShouldRun(now, &thisSpring))

	march := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, s.ShouldRun(march, &lastYear))
}

func TestOEWS_Policy(t *testing.T) {
	p := (&OEWS{}).Policy()
	assert.Empty(t, p.Denominator)
	assert.Equal(t, rollup.RuleFirstAvailable, p.Fields[market.FieldAdvisors].Kind)
}

func TestOEWS_Sync(t *testing.T) {
	dir := t.TempDir()
	thisYear := time.Now().Year()
	year := thisYear - 1

	zipPath := oewsFixtureZip(t, dir, year, [][]string{
		{"AREA", "AREA_TITLE", "AREA_TYPE", "OCC_CODE", "OCC_TITLE", "TOT_EMP"},
		{"41860", "San Francisco-Oakland-Berkeley, CA", "1", "13-2052", "Personal Financial Advisors", "2340"},
		{"41860", "San Francisco-Oakland-Berkeley, CA", "1", "00-0000", "All Occupations", "1200000"},
		{"46140", "Tulsa, OK", "1", "13-2052", "Personal Financial Advisors", "**"},
		{"99999", "Nowhere Metro", "1", "13-2052", "Personal Financial Advisors", "500"},
	})
	f := &fakeFetcher{files: map[string]string{
		fmt.Sprintf("oesm%02dma.zip", year%100): zipPath,
	}}

	st := newTestStore(t)
	saveTestCrosswalk(t, st)
	ctx := context.Background()

	s := &OEWS{}
	result, err := s.Sync(ctx, st, f, dir, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsSynced)
	assert.Equal(t, []int{year}, result.Metadata["years"])
	assert.Equal(t, "13-2052", result.Metadata["occupation"])

	tbl, err := st.LoadCountyTable(ctx, "oews", strconv.Itoa(year))
	require.NoError(t, err)
	require.NotNil(t, tbl)
	require.Len(t, tbl.Records, 2, "suppressed and unmatched areas stage nothing")

	// The MSA headcount lands on every member county; the
	// first-available rule keeps a single copy at rollup.
	assert.Equal(t, "06001", tbl.Records[0].FIPS)
	assert.Equal(t, 2340.0, tbl.Records[0].Fields[market.FieldAdvisors])
	assert.Equal(t, "06041", tbl.Records[1].FIPS)
	assert.Equal(t, 2340.0, tbl.Records[1].Fields[market.FieldAdvisors])
}

func TestOEWS_Sync_NoCrosswalk(t *testing.T) {
	st := newTestStore(t)

	s := &OEWS{}
	_, err := s.Sync(context.Background(), st, &fakeFetcher{}, t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no crosswalk loaded")
}

func TestOEWS_Sync_SkipsHTMLYear(t *testing.T) {
	dir := t.TempDir()
	thisYear := time.Now().Year()
	older := thisYear - 2

	// BLS answers requests for unpublished vintages with an HTML page and
	// a 200 status; the zip open fails and the year is skipped.
	htmlPath := filepath.Join(dir, "error.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<html>not found</html>"), 0o644))

	zipPath := oewsFixtureZip(t, dir, older, [][]string{
		{"AREA_CODE", "AREA_TITLE", "OCC_CODE", "TOT_EMP"},
		{"46140", "Tulsa, OK", "13-2052", "410"},
	})

	f := &fakeFetcher{files: map[string]string{
		fmt.Sprintf("oesm%02dma.zip", (thisYear-1)%100): htmlPath,
		fmt.Sprintf("oesm%02dma.zip", older%100):        zipPath,
	}}

	st := newTestStore(t)
	saveTestCrosswalk(t, st)
	ctx := context.Background()

	s := &OEWS{}
	result, err := s.Sync(ctx, st, f, dir, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsSynced)

	tbl, err := st.LoadCountyTable(ctx, "oews", strconv.Itoa(older))
	require.NoError(t, err)
	require.NotNil(t, tbl)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, "40143", tbl.Records[0].FIPS)
	assert.Equal(t, 410.0, tbl.Records[0].Fields[market.FieldAdvisors])
}

func TestOEWS_Sync_NothingAvailable(t *testing.T) {
	st := newTestStore(t)
	saveTestCrosswalk(t, st)

	s := &OEWS{}
	_, err := s.Sync(context.Background(), st, &fakeFetcher{}, t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no MSA workbook")
}
