package model

// Value is one aggregated observation for a CBSA: the amount, how complete
// the reporting behind it was, and the share of the denominator covered.
// A gap value carries no meaningful amount; consumers must check Status
// before reading Amount so that "no data" is never mistaken for zero.
type Value struct {
	Amount   float64 `json:"amount"`
	Status   Status  `json:"status"`
	Coverage float64 `json:"coverage"`
}

// Gap returns a missing-data value.
func Gap() Value {
	return Value{Status: StatusGap}
}

// Available returns a fully-covered value.
func Available(amount float64) Value {
	return Value{Amount: amount, Status: StatusAvailable, Coverage: 1}
}

// Partial returns a value covered by the given fraction of the denominator.
func Partial(amount, coverage float64) Value {
	return Value{Amount: amount, Status: StatusPartial, Coverage: coverage}
}

// Observed builds a value from an amount and a coverage fraction, picking
// the status from the coverage: 1 is available, 0 is gap, anything between
// is partial.
func Observed(amount, coverage float64) Value {
	switch {
	case coverage <= 0:
		return Gap()
	case coverage >= 1:
		return Available(amount)
	default:
		return Partial(amount, coverage)
	}
}

// IsGap reports whether the value carries no data.
func (v Value) IsGap() bool {
	return v.Status == StatusGap
}

// Eligible reports whether the value participates in normalization,
// composites, and ranking.
func (v Value) Eligible() bool {
	return v.Status.Eligible()
}
