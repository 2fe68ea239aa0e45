// Package model holds the shared data types for county and CBSA statistics:
// records, aggregated values, and their availability status.
package model

// Status describes how complete the data behind a value is.
type Status string

const (
	// StatusAvailable means every member county reported.
	StatusAvailable Status = "available"
	// StatusPartial means some but not all of the CBSA's denominator reported.
	StatusPartial Status = "partial"
	// StatusGap means no member county reported; the value carries no amount.
	StatusGap Status = "gap"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusPartial, StatusGap:
		return true
	}
	return false
}

// Eligible reports whether a value with this status participates in
// normalization and ranking. Gaps are carried through but never computed on.
func (s Status) Eligible() bool {
	return s == StatusAvailable || s == StatusPartial
}

// Combine returns the weaker of two statuses: any gap wins, then partial,
// then available. Used when deriving one value from several inputs.
func (s Status) Combine(other Status) Status {
	if s == StatusGap || other == StatusGap {
		return StatusGap
	}
	if s == StatusPartial || other == StatusPartial {
		return StatusPartial
	}
	return StatusAvailable
}
