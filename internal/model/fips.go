package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// NormalizeStateFIPS pads a state FIPS code to 2 digits ("6" -> "06").
func NormalizeStateFIPS(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// NormalizeCountyFIPS pads a county FIPS code to 3 digits ("1" -> "001").
func NormalizeCountyFIPS(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// CombineFIPS joins a state and county code into the 5-digit county
// identifier ("6" + "1" -> "06001"). Returns "" when either part is empty.
func CombineFIPS(state, county string) string {
	s := NormalizeStateFIPS(state)
	c := NormalizeCountyFIPS(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// StateOfFIPS returns the 2-digit state prefix of a 5-digit county FIPS.
func StateOfFIPS(countyFIPS string) string {
	if len(countyFIPS) < 2 {
		return countyFIPS
	}
	return countyFIPS[:2]
}

// ParseCountyFIPS validates a county FIPS code, tolerating a stripped
// leading zero (some sources export "6001" for "06001").
func ParseCountyFIPS(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 4 {
		s = "0" + s
	}
	if len(s) != 5 {
		return "", eris.Errorf("model: county fips %q is not 5 digits", raw)
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", eris.Wrapf(err, "model: county fips %q is not numeric", raw)
	}
	return s, nil
}

// FormatFIPS formats a numeric FIPS code with zero-padding.
func FormatFIPS(code int, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}
