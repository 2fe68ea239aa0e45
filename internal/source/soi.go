package source

import (
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
	soiLookbackYears = 4
	soiBackfillYears = 5
	// soiHighAGIStub is the $200,000-and-over AGI bracket in the county file.
	soiHighAGIStub = "8"
)

// SOI implements the IRS Statistics of Income county source. The county
// income file breaks returns into AGI brackets; the bracket rows are
// summed back to county totals here, keeping a separate count for the
// top bracket.
type SOI struct{}

func (s *SOI) Name() string     { return "soi" }
func (s *SOI) Domain() string   { return "irs_soi" }
func (s *SOI) Cadence() Cadence { return Annual }

func (s *SOI) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return AnnualAfter(now, lastSync, time.December)
}

func (s *SOI) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Denominator: market.FieldTotalReturns,
		Fields: map[string]rollup.FieldRule{
			market.FieldTotalReturns:   {Kind: rollup.RuleSum},
			market.FieldTotalAGI:       {Kind: rollup.RuleSum},
			market.FieldHighAGIReturns: {Kind: rollup.RuleSum},
			market.FieldWageIncome:     {Kind: rollup.RuleSum},
			market.FieldBusinessIncome: {Kind: rollup.RuleSum},
			market.FieldCapGainsIncome: {Kind: rollup.RuleSum},
			market.FieldCapGainReturns: {Kind: rollup.RuleSum},
		},
	}
}

func (s *SOI) Sync(ctx context.Context, st store.Store, f fetcher.Fetcher, tempDir string, full bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "soi"))

	lookback := soiLookbackYears
	if full {
		lookback = soiBackfillYears
	}

	var totalRows int64
	var years []int
	thisYear := time.Now().Year()

	// SOI county data trails the tax year by roughly two years.
	for year := thisYear - 2; year > thisYear-2-lookback; year-- {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		yy := fmt.Sprintf("%02d", year%100)
		url := fmt.Sprintf("https://www.irs.gov/pub/irs-soi/%sincyallagi.csv", yy)
		log.Info("downloading SOI county income file", zap.Int("year", year), zap.String("url", url))

		csvPath := filepath.Join(tempDir, fmt.Sprintf("soi_%d.csv", year))
		if _, err := f.DownloadToFile(ctx, url, csvPath); err != nil {
			if strings.Contains(err.Error(), "status 404") {
				log.Info("SOI data not yet available, skipping", zap.Int("year", year))
				continue
			}
			return nil, eris.Wrapf(err, "soi: download year %d", year)
		}

		rows, err := s.parseCSV(ctx, st, csvPath, year)
		_ = os.Remove(csvPath)
		if err != nil {
			return nil, eris.Wrapf(err, "soi: parse year %d", year)
		}

		totalRows += rows
		years = append(years, year)
		log.Info("staged SOI year", zap.Int("year", year), zap.Int64("counties", rows))

		if !full {
			break
		}
	}

	if len(years) == 0 {
		return nil, eris.New("soi: no county income vintage available")
	}

	return &SyncResult{
		RowsSynced: totalRows,
		Metadata:   map[string]any{"years": years},
	}, nil
}

func (s *SOI) parseCSV(ctx context.Context, st store.Store, csvPath string, year int) (int64, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, eris.Wrap(err, "soi: open csv")
	}
	defer file.Close() //nolint:errcheck

	// The IRS ships Latin-1 (Doña Ana County would otherwise mangle).
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(file))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, eris.Wrap(err, "soi: read header")
	}
	colIdx := mapColumns(header)

	acc := newCountyAccumulator(strconv.Itoa(year))
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
			return 0, eris.Wrap(err, "soi: read row")
		}

		countyFIPS := padFIPS(trimQuotes(getCol(record, colIdx, "countyfips")), 3)
		if countyFIPS == "" || countyFIPS == "000" {
			// State-total rows carry county code 000.
			continue
		}
		stub := trimQuotes(getCol(record, colIdx, "agi_stub"))
		if stub == "" || stub == "0" {
			continue
		}
		fips := padFIPS(trimQuotes(getCol(record, colIdx, "statefips")), 2) + countyFIPS

		returns := parseFloatOr(trimQuotes(getCol(record, colIdx, "n1")), 0)
		acc.add(fips, market.FieldTotalReturns, returns)
		acc.add(fips, market.FieldTotalAGI, parseFloatOr(trimQuotes(getCol(record, colIdx, "a00100")), 0))      // $k
		acc.add(fips, market.FieldWageIncome, parseFloatOr(trimQuotes(getCol(record, colIdx, "a00200")), 0))    // $k
		acc.add(fips, market.FieldBusinessIncome, parseFloatOr(trimQuotes(getCol(record, colIdx, "a00900")), 0)) // $k
		acc.add(fips, market.FieldCapGainReturns, parseFloatOr(trimQuotes(getCol(record, colIdx, "n01000")), 0))
		acc.add(fips, market.FieldCapGainsIncome, parseFloatOr(trimQuotes(getCol(record, colIdx, "a01000")), 0)) // $k
		if stub == soiHighAGIStub {
			acc.add(fips, market.FieldHighAGIReturns, returns)
		}
	}

	tbl := acc.table(s.Domain())
	if len(tbl.Records) == 0 {
		return 0, eris.Errorf("soi: no county rows parsed for %d", year)
	}
	if err := st.SaveCountyTable(ctx, tbl); err != nil {
		return 0, eris.Wrapf(err, "soi: save %d", year)
	}
	return int64(len(tbl.Records)), nil
}
