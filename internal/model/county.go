package model

import "sort"

// CountyRecord is one county's observations for a time period. Fields map
// a source field name to its numeric value; a field a county did not report
// is simply absent from the map, never stored as zero.
type CountyRecord struct {
	FIPS   string             `json:"fips"`
	Period string             `json:"period"`
	Fields map[string]float64 `json:"fields"`
}

// Get returns a field value and whether the county reported it.
func (r CountyRecord) Get(field string) (float64, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// CountyTable is one source domain's county-level table for a period.
// Records are kept in ascending FIPS order so that order-sensitive
// aggregation (first-available) is deterministic.
type CountyTable struct {
	Domain  string         `json:"domain"`
	Period  string         `json:"period"`
	Records []CountyRecord `json:"records"`
}

// Sort orders records by ascending FIPS. Ingest calls this once; the table
// is treated as immutable afterwards.
func (t *CountyTable) Sort() {
	sort.Slice(t.Records, func(i, j int) bool {
		return t.Records[i].FIPS < t.Records[j].FIPS
	})
}

// FieldNames returns the union of field names across all records, sorted.
func (t *CountyTable) FieldNames() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Records {
		for f := range r.Fields {
			seen[f] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for f := range seen {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}
