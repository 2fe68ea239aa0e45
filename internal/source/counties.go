package source

import "github.com/sells-group/marketscope/internal/model"

// countyAccumulator builds sparse county records field by field, in
// whatever order a source encounters them.
type countyAccumulator struct {
	period string
	fields map[string]map[string]float64 // fips -> field -> value
}

func newCountyAccumulator(period string) *countyAccumulator {
	return &countyAccumulator{period: period, fields: make(map[string]map[string]float64)}
}

// set records a field value, replacing any earlier one.
func (c *countyAccumulator) set(fips, field string, v float64) {
	m, ok := c.fields[fips]
	if !ok {
		m = make(map[string]float64)
		c.fields[fips] = m
	}
	m[field] = v
}

// add accumulates into a field, starting from zero.
func (c *countyAccumulator) add(fips, field string, v float64) {
	m, ok := c.fields[fips]
	if !ok {
		m = make(map[string]float64)
		c.fields[fips] = m
	}
	m[field] += v
}

// table freezes the accumulated records into a sorted county table.
func (c *countyAccumulator) table(domain string) *model.CountyTable {
	tbl := &model.CountyTable{Domain: domain, Period: c.period}
	for fips, fields := range c.fields {
		if len(fields) == 0 {
			continue
		}
		tbl.Records = append(tbl.Records, model.CountyRecord{
			FIPS:   fips,
			Period: c.period,
			Fields: fields,
		})
	}
	tbl.Sort()
	return tbl
}
