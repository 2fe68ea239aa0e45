package source

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
)

const (
	// fdicLookbackYears bounds the search for the newest published survey.
	fdicLookbackYears = 3
	// fdicBackfillYears is the window a full sync stages.
	fdicBackfillYears = 5
)

// FDICSOD implements the FDIC Summary of Deposits source: one row per
// insured branch, aggregated here to branch counts and deposit totals per
// county.
type FDICSOD struct{}

func (s *FDICSOD) Name() string     { return "fdicsod" }
func (s *FDICSOD) Domain() string   { return "fdic_sod" }
func (s *FDICSOD) Cadence() Cadence { return Annual }

func (s *FDICSOD) ShouldRun(now time.Time, lastSync *time.Time) bool {
	// The survey snapshots June 30 and publishes in the fall.
	return AnnualAfter(now, lastSync, time.October)
}

func (s *FDICSOD) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Fields: map[string]rollup.FieldRule{
			market.FieldBranches: {Kind: rollup.RuleSum},
			market.FieldDeposits: {Kind: rollup.RuleSum},
		},
	}
}

func (s *FDICSOD) Sync(ctx context.Context, st store.Store, f fetcher.Fetcher, tempDir string, full bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "fdicsod"))

	lookback := fdicLookbackYears
	if full {
		lookback = fdicBackfillYears
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

		zipPath, err := s.download(ctx, f, tempDir, year)
		if err != nil {
			if strings.Contains(err.Error(), "status 404") {
				log.Info("SOD not yet published, trying prior year", zap.Int("year", year))
				continue
			}
			return nil, err
		}

		rows, err := s.processZip(ctx, st, zipPath, year)
		_ = os.Remove(zipPath)
		if err != nil {
			return nil, eris.Wrapf(err, "fdicsod: process year %d", year)
		}

		totalRows += rows
		years = append(years, year)
		log.Info("staged SOD year", zap.Int("year", year), zap.Int64("counties", rows))

		if !full {
			break
		}
	}

	if len(years) == 0 {
		return nil, eris.New("fdicsod: no summary of deposits vintage available")
	}

	return &SyncResult{
		RowsSynced: totalRows,
		Metadata:   map[string]any{"years": years},
	}, nil
}

// download tries the mirrors the FDIC has served the bulk file from over
// the years.
func (s *FDICSOD) download(ctx context.Context, f fetcher.Fetcher, tempDir string, year int) (string, error) {
	urls := []string{
		fmt.Sprintf("https://www7.fdic.gov/sod/download/SOD_%d.zip", year),
		fmt.Sprintf("https://www7.fdic.gov/sod/sodmarket/SOD_%d.zip", year),
		fmt.Sprintf("https://www5.fdic.gov/sod/download/SOD_%d.zip", year),
	}
	zipPath := filepath.Join(tempDir, fmt.Sprintf("sod_%d.zip", year))

	var lastErr error
	for _, url := range urls {
		if _, err := f.DownloadToFile(ctx, url, zipPath); err != nil {
			lastErr = err
			continue
		}
		return zipPath, nil
	}
	return "", eris.Wrapf(lastErr, "fdicsod: download year %d", year)
}

func (s *FDICSOD) processZip(ctx context.Context, st store.Store, zipPath string, year int) (int64, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, eris.Wrap(err, "fdicsod: open zip")
	}
	defer zr.Close() //nolint:errcheck

	zf := pickSODFile(zr.File)
	if zf == nil {
		return 0, eris.New("fdicsod: no branch CSV found in zip")
	}

	rc, err := zf.Open()
	if err != nil {
		return 0, eris.Wrapf(err, "fdicsod: open file %s in zip", zf.Name)
	}
	defer rc.Close() //nolint:errcheck

	return s.parseCSV(ctx, st, rc, year)
}

// pickSODFile finds the main branch file: a CSV whose name suggests the
// branch detail, excluding attribute/supplement/readme companions, largest
// first. Falls back to the largest CSV of any name.
func pickSODFile(files []*zip.File) *zip.File {
	var best *zip.File
	match := func(zf *zip.File, named bool) bool {
		name := strings.ToLower(zf.Name)
		if !strings.HasSuffix(name, ".csv") {
			return false
		}
		for _, exclude := range []string{"attr", "supp", "readme"} {
			if strings.Contains(name, exclude) {
				return false
			}
		}
		if named && !strings.Contains(name, "all") && !strings.Contains(name, "branch") && !strings.Contains(name, "sod") {
			return false
		}
		return true
	}

	for _, zf := range files {
		if match(zf, true) && (best == nil || zf.UncompressedSize64 > best.UncompressedSize64) {
			best = zf
		}
	}
	if best != nil {
		return best
	}
	for _, zf := range files {
		if match(zf, false) && (best == nil || zf.UncompressedSize64 > best.UncompressedSize64) {
			best = zf
		}
	}
	return best
}

func (s *FDICSOD) parseCSV(ctx context.Context, st store.Store, r io.Reader, year int) (int64, error) {
	// SOD extracts ship Latin-1, not UTF-8.
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, eris.Wrap(err, "fdicsod: read CSV header")
	}
	colIdx := mapColumns(header)

	acc := newCountyAccumulator(strconv.Itoa(year))
	var branchRows int64

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		fips := padFIPS(trimQuotes(getCol(record, colIdx, "stcntybr")), 5)
		// Overseas branches carry no county code; FIPS state 00 does not
		// exist.
		if len(fips) != 5 || strings.HasPrefix(fips, "00") {
			continue
		}

		acc.add(fips, market.FieldBranches, 1)
		if deposits := parseFloatOr(trimQuotes(getCol(record, colIdx, "depsumbr")), -1); deposits >= 0 {
			acc.add(fips, market.FieldDeposits, deposits) // $k
		}
		branchRows++
	}

	tbl := acc.table(s.Domain())
	if len(tbl.Records) == 0 {
		return 0, eris.Errorf("fdicsod: no branch rows parsed for %d", year)
	}
	if err := st.SaveCountyTable(ctx, tbl); err != nil {
		return 0, eris.Wrapf(err, "fdicsod: save %d", year)
	}

	zap.L().Debug("parsed SOD branch file",
		zap.Int("year", year),
		zap.Int64("branches", branchRows),
		zap.Int("counties", len(tbl.Records)),
	)
	return int64(len(tbl.Records)), nil
}
