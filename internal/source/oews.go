package source

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
)

const (
	oewsLookbackYears = 3
	oewsBackfillYears = 5
	// advisorOccCode is SOC 13-2052, personal financial advisors.
	advisorOccCode = "13-2052"
)

// OEWS implements the BLS Occupational Employment and Wage Statistics
// source, restricted to personal financial advisors in the metro-area
// workbook. The series is published per MSA; each member county carries
// the MSA value and the first-available rule keeps a single copy at
// rollup.
type OEWS struct{}

func (s *OEWS) Name() string     { return "oews" }
func (s *OEWS) Domain() string   { return "oews" }
func (s *OEWS) Cadence() Cadence { return Annual }

func (s *OEWS) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return AnnualAfter(now, lastSync, time.April)
}

func (s *OEWS) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Fields: map[string]rollup.FieldRule{
			market.FieldAdvisors: {Kind: rollup.RuleFirstAvailable},
		},
	}
}

func (s *OEWS) Sync(ctx context.Context, st store.Store, f fetcher.Fetcher, tempDir string, full bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "oews"))

	cw, err := st.LoadCrosswalk(ctx, 0)
	if err != nil {
		return nil, eris.Wrap(err, "oews: load crosswalk")
	}
	if cw == nil {
		return nil, eris.New("oews: no crosswalk loaded; load a delineation first")
	}

	lookback := oewsLookbackYears
	if full {
		lookback = oewsBackfillYears
	}

	var totalRows int64
	var years []int
	thisYear := time.Now().Year()

	for year := thisYear - 1; year >= thisYear-lookback; year-- {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		yy := fmt.Sprintf("%02d", year%100)
		url := fmt.Sprintf("https://www.bls.gov/oes/special-requests/oesm%sma.zip", yy)
		log.Info("downloading OEWS MSA workbook", zap.Int("year", year), zap.String("url", url))

		zipPath := filepath.Join(tempDir, fmt.Sprintf("oews_%d.zip", year))
		if _, err := f.DownloadToFile(ctx, url, zipPath); err != nil {
			if strings.Contains(err.Error(), "status 404") {
				log.Info("OEWS data not yet available, skipping", zap.Int("year", year))
				continue
			}
			return nil, eris.Wrapf(err, "oews: download year %d", year)
		}

		rows, err := s.processZip(ctx, st, cw, zipPath, tempDir, year)
		_ = os.Remove(zipPath)
		if err != nil {
			// BLS returns HTML error pages with 200 status for future
			// years; zip.OpenReader fails with "not a valid zip file".
			if strings.Contains(err.Error(), "not a valid zip") {
				log.Info("OEWS data not valid zip (likely not yet available), skipping", zap.Int("year", year))
				continue
			}
			return nil, eris.Wrapf(err, "oews: process year %d", year)
		}

		totalRows += rows
		years = append(years, year)
		log.Info("staged OEWS year", zap.Int("year", year), zap.Int64("counties", rows))

		if !full {
			break
		}
	}

	if len(years) == 0 {
		return nil, eris.New("oews: no MSA workbook vintage available")
	}

	return &SyncResult{
		RowsSynced: totalRows,
		Metadata:   map[string]any{"years": years, "occupation": advisorOccCode},
	}, nil
}

func (s *OEWS) processZip(ctx context.Context, st store.Store, cw *crosswalk.Store, zipPath, tempDir string, year int) (int64, error) {
	name, err := pickOEWSWorkbook(zipPath)
	if err != nil {
		return 0, err
	}

	xlsxPath, err := fetcher.ExtractZIPFile(zipPath, name, tempDir)
	if err != nil {
		return 0, eris.Wrapf(err, "oews: extract %s", name)
	}
	defer os.Remove(xlsxPath) //nolint:errcheck

	return s.parseWorkbook(ctx, st, cw, xlsxPath, year)
}

// pickOEWSWorkbook finds the MSA sheet in the archive: an .xlsx with "msa"
// in the name, else any .xlsx. Excel lock files (~$ prefix) are skipped.
func pickOEWSWorkbook(zipPath string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "oews: open zip")
	}
	defer zr.Close() //nolint:errcheck

	var fallback string
	for _, zf := range zr.File {
		name := strings.ToLower(zf.Name)
		if !strings.HasSuffix(name, ".xlsx") || strings.HasPrefix(filepath.Base(name), "~$") {
			continue
		}
		if strings.Contains(name, "msa") {
			return zf.Name, nil
		}
		if fallback == "" {
			fallback = zf.Name
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", eris.New("oews: no XLSX found in zip")
}

func (s *OEWS) parseWorkbook(ctx context.Context, st store.Store, cw *crosswalk.Store, xlsxPath string, year int) (int64, error) {
	rows, err := fetcher.ReadXLSX(xlsxPath, fetcher.XLSXOptions{})
	if err != nil {
		return 0, eris.Wrap(err, "oews: read workbook")
	}
	if len(rows) < 2 {
		return 0, eris.New("oews: workbook sheet is empty")
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	colIdx := mapColumns(rows[0])
	acc := newCountyAccumulator(strconv.Itoa(year))
	var matched, unmatched int

	for _, record := range rows[1:] {
		if trimQuotes(getCol(record, colIdx, "occ_code")) != advisorOccCode {
			continue
		}

		area := trimQuotes(getCol(record, colIdx, "area"))
		if area == "" {
			area = trimQuotes(getCol(record, colIdx, "area_code"))
		}

		// Suppressed employment shows as "**"; zero would understate.
		totEmp := parseFloatOr(trimQuotes(getCol(record, colIdx, "tot_emp")), -1)
		if totEmp < 0 {
			continue
		}

		members := cw.MembersOf(area)
		if len(members) == 0 {
			unmatched++
			continue
		}
		for _, fips := range members {
			acc.set(fips, market.FieldAdvisors, totEmp)
		}
		matched++
	}

	tbl := acc.table(s.Domain())
	if len(tbl.Records) == 0 {
		return 0, eris.Errorf("oews: no advisor rows matched the crosswalk for %d", year)
	}
	if err := st.SaveCountyTable(ctx, tbl); err != nil {
		return 0, eris.Wrapf(err, "oews: save %d", year)
	}

	zap.L().Debug("mapped OEWS areas",
		zap.Int("year", year),
		zap.Int("matched", matched),
		zap.Int("unmatched", unmatched),
	)
	return int64(len(tbl.Records)), nil
}
