package source

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/fetcher"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/internal/store"
	"github.com/sells-group/marketscope/pkg/census"
)

// acsBackfillVintages is how many ACS vintages a full sync stages.
const acsBackfillVintages = 5

// Bracket groups collapsed into single staged fields at sync time. A group
// is staged only when every bracket reported; a partial sum would
// understate it.
var (
	// Ages 45 to 64, both sexes.
	acsAgeVars = []string{
		"B01001_014E", "B01001_015E", "B01001_016E", "B01001_017E",
		"B01001_038E", "B01001_039E", "B01001_040E", "B01001_041E",
	}
	// Bachelor's through doctorate.
	acsDegreeVars = []string{"B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"}
	// Owner-occupied units worth $1M or more.
	acsLuxuryVars = []string{"B25075_022E", "B25075_023E", "B25075_024E"}
)

// acsScalarVars maps staged field names to the single ACS variable backing
// them.
var acsScalarVars = map[string]string{
	market.FieldPopulation:           "B01001_001E",
	market.FieldMedianAge:            "B01002_001E",
	market.FieldHouseholds:           "B19001_001E",
	market.FieldHighIncomeHouseholds: "B19001_017E", // $200k and over
	market.FieldMedianIncome:         "B19013_001E",
	market.FieldPerCapitaIncome:      "B19301_001E",
	market.FieldPop25Plus:            "B15003_001E",
	market.FieldMedianHomeValue:      "B25077_001E",
	market.FieldOwnerUnits:           "B25075_001E",
}

// ACS implements the Census ACS 5-year county profile source.
type ACS struct {
	year      int
	newClient func(year int) census.Client
}

// NewACS creates the ACS source for a vintage year. newClient builds an
// API client bound to a vintage, so a full sync can reach earlier ones.
func NewACS(year int, newClient func(year int) census.Client) *ACS {
	return &ACS{year: year, newClient: newClient}
}

func (s *ACS) Name() string     { return "acs" }
func (s *ACS) Domain() string   { return "acs" }
func (s *ACS) Cadence() Cadence { return Annual }

func (s *ACS) ShouldRun(now time.Time, lastSync *time.Time) bool {
	// ACS 5-year tables come out each December.
	return AnnualAfter(now, lastSync, time.December)
}

func (s *ACS) Policy() rollup.DomainPolicy {
	return rollup.DomainPolicy{
		Denominator: market.FieldPopulation,
		Fields: map[string]rollup.FieldRule{
			market.FieldPopulation:           {Kind: rollup.RuleSum},
			market.FieldPop45to64:            {Kind: rollup.RuleSum},
			market.FieldHouseholds:           {Kind: rollup.RuleSum},
			market.FieldHighIncomeHouseholds: {Kind: rollup.RuleSum},
			market.FieldPop25Plus:            {Kind: rollup.RuleSum},
			market.FieldCollegeDegrees:       {Kind: rollup.RuleSum},
			market.FieldOwnerUnits:           {Kind: rollup.RuleSum},
			market.FieldLuxuryHomes:          {Kind: rollup.RuleSum},
			market.FieldMedianAge:            {Kind: rollup.RuleWeightedAverage, WeightField: market.FieldPopulation},
			market.FieldMedianIncome:         {Kind: rollup.RuleWeightedAverage, WeightField: market.FieldHouseholds},
			market.FieldPerCapitaIncome:      {Kind: rollup.RuleWeightedAverage, WeightField: market.FieldPopulation},
			market.FieldMedianHomeValue:      {Kind: rollup.RuleWeightedAverage, WeightField: market.FieldOwnerUnits},
		},
	}
}

func (s *ACS) Sync(ctx context.Context, st store.Store, _ fetcher.Fetcher, _ string, full bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("source", "acs"))

	years := []int{s.year}
	if full {
		years = years[:0]
		for y := s.year - acsBackfillVintages + 1; y <= s.year; y++ {
			years = append(years, y)
		}
	}

	var totalRows int64
	var vintages []string

	for _, year := range years {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		log.Info("fetching ACS county profile", zap.Int("vintage", year))

		rows, err := s.newClient(year).Counties(ctx, acsVariables(), "")
		if err != nil {
			return nil, eris.Wrapf(err, "acs: counties vintage %d", year)
		}

		tbl := &model.CountyTable{Domain: s.Domain(), Period: strconv.Itoa(year)}
		for _, row := range rows {
			fields := acsFields(row.Values)
			if len(fields) == 0 {
				continue
			}
			tbl.Records = append(tbl.Records, model.CountyRecord{
				FIPS:   row.StateFIPS + row.CountyFIPS,
				Period: tbl.Period,
				Fields: fields,
			})
		}
		tbl.Sort()

		if err := st.SaveCountyTable(ctx, tbl); err != nil {
			return nil, eris.Wrapf(err, "acs: save vintage %d", year)
		}

		totalRows += int64(len(tbl.Records))
		vintages = append(vintages, tbl.Period)
		log.Info("staged ACS vintage", zap.Int("vintage", year), zap.Int("counties", len(tbl.Records)))
	}

	return &SyncResult{
		RowsSynced: totalRows,
		Metadata:   map[string]any{"vintages": vintages},
	}, nil
}

// acsVariables returns every ACS variable one county request needs.
func acsVariables() []string {
	vars := make([]string, 0, len(acsScalarVars)+len(acsAgeVars)+len(acsDegreeVars)+len(acsLuxuryVars))
	for _, v := range acsScalarVars {
		vars = append(vars, v)
	}
	vars = append(vars, acsAgeVars...)
	vars = append(vars, acsDegreeVars...)
	vars = append(vars, acsLuxuryVars...)
	return vars
}

// acsFields maps one county's raw variables to staged fields. Variables
// the API withheld stay absent rather than becoming zeros.
func acsFields(values map[string]float64) map[string]float64 {
	fields := make(map[string]float64, len(acsScalarVars)+3)
	for field, varName := range acsScalarVars {
		if v, ok := values[varName]; ok {
			fields[field] = v
		}
	}
	if v, ok := sumVars(values, acsAgeVars); ok {
		fields[market.FieldPop45to64] = v
	}
	if v, ok := sumVars(values, acsDegreeVars); ok {
		fields[market.FieldCollegeDegrees] = v
	}
	if v, ok := sumVars(values, acsLuxuryVars); ok {
		fields[market.FieldLuxuryHomes] = v
	}
	return fields
}

// sumVars sums a bracket group, reporting whether every bracket was
// present.
func sumVars(values map[string]float64, vars []string) (float64, bool) {
	var sum float64
	for _, name := range vars {
		v, ok := values[name]
		if !ok {
			return 0, false
		}
		sum += v
	}
	return sum, true
}
