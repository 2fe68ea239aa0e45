package crosswalk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/marketscope/internal/model"
)

// Row is one county→CBSA assignment from a delineation source.
type Row struct {
	CountyFIPS string
	CbsaCode   string
	Title      string
	Kind       Kind
}

// IntegrityError reports every referential problem found while building a
// Store. A crosswalk with any integrity issue is unusable: a single
// double-mapped county silently corrupts aggregation downstream.
type IntegrityError struct {
	Issues []string
}

func (e *IntegrityError) Error() string {
	if len(e.Issues) == 1 {
		return "crosswalk: integrity check failed: " + e.Issues[0]
	}
	return fmt.Sprintf("crosswalk: integrity check failed: %d issues, first: %s", len(e.Issues), e.Issues[0])
}

// Builder accumulates delineation rows and validates them into a Store.
type Builder struct {
	rows []Row
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add queues a row for the next Build. Validation is deferred so one Build
// reports every issue at once instead of failing on the first.
func (b *Builder) Add(row Row) {
	b.rows = append(b.rows, row)
}

// Len returns the number of queued rows.
func (b *Builder) Len() int { return len(b.rows) }

// Build validates the queued rows and returns the immutable Store. Any
// malformed code, conflicting county assignment, or empty CBSA fails the
// whole build with an *IntegrityError.
func (b *Builder) Build() (*Store, error) {
	var issues []string
	assigned := make(map[string]string) // county FIPS → CBSA code
	entities := make(map[string]*Entity)

	for _, row := range b.rows {
		fips, err := model.ParseCountyFIPS(row.CountyFIPS)
		if err != nil {
			issues = append(issues, fmt.Sprintf("county fips %q is malformed", row.CountyFIPS))
			continue
		}

		code := strings.TrimSpace(row.CbsaCode)
		if !validCbsaCode(code) {
			issues = append(issues, fmt.Sprintf("cbsa code %q is malformed (county %s)", row.CbsaCode, fips))
			continue
		}

		if prev, ok := assigned[fips]; ok {
			if prev != code {
				issues = append(issues, fmt.Sprintf("county %s mapped to both %s and %s", fips, prev, code))
			}
			continue
		}
		assigned[fips] = code

		ent, ok := entities[code]
		if !ok {
			kind := row.Kind
			if kind != Metropolitan && kind != Micropolitan {
				kind = Micropolitan
			}
			ent = &Entity{Code: code, Title: strings.TrimSpace(row.Title), Kind: kind}
			entities[code] = ent
		}
		ent.Counties = append(ent.Counties, fips)
	}

	for code, ent := range entities {
		if len(ent.Counties) == 0 {
			issues = append(issues, fmt.Sprintf("cbsa %s has no member counties", code))
		}
	}

	if len(issues) > 0 {
		return nil, &IntegrityError{Issues: issues}
	}
	return newStore(entities), nil
}

func validCbsaCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	_, err := strconv.Atoi(code)
	return err == nil
}
