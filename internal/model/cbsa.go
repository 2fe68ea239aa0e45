package model

import "sort"

// CbsaRecord is one CBSA's aggregated observations for a time period.
// Every field carries its own status and coverage fraction so downstream
// stages can audit how much of the CBSA actually reported.
type CbsaRecord struct {
	CBSA   string           `json:"cbsa"`
	Period string           `json:"period"`
	Fields map[string]Value `json:"fields"`
}

// Get returns a field's value, or a gap if the field is absent.
func (r *CbsaRecord) Get(field string) Value {
	if v, ok := r.Fields[field]; ok {
		return v
	}
	return Gap()
}

// Set stores a field value, allocating the map on first use.
func (r *CbsaRecord) Set(field string, v Value) {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[field] = v
}

// CbsaTable is one domain's CBSA-level table for a period. Unsupported
// lists source fields that had no aggregation rule and were therefore left
// out rather than silently summed.
type CbsaTable struct {
	Domain      string                 `json:"domain"`
	Period      string                 `json:"period"`
	Rows        map[string]*CbsaRecord `json:"rows"`
	Unsupported []string               `json:"unsupported,omitempty"`
}

// NewCbsaTable returns an empty table for a domain and period.
func NewCbsaTable(domain, period string) *CbsaTable {
	return &CbsaTable{
		Domain: domain,
		Period: period,
		Rows:   make(map[string]*CbsaRecord),
	}
}

// Row returns the record for a CBSA, creating it on first use.
func (t *CbsaTable) Row(cbsa string) *CbsaRecord {
	if r, ok := t.Rows[cbsa]; ok {
		return r
	}
	r := &CbsaRecord{CBSA: cbsa, Period: t.Period, Fields: make(map[string]Value)}
	t.Rows[cbsa] = r
	return r
}

// Get returns a field value for a CBSA, or a gap when either the CBSA or
// the field is absent.
func (t *CbsaTable) Get(cbsa, field string) Value {
	r, ok := t.Rows[cbsa]
	if !ok {
		return Gap()
	}
	return r.Get(field)
}

// Codes returns the CBSA codes present in the table, sorted.
func (t *CbsaTable) Codes() []string {
	codes := make([]string, 0, len(t.Rows))
	for c := range t.Rows {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// FieldNames returns the union of field names across all rows, sorted.
func (t *CbsaTable) FieldNames() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Rows {
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
