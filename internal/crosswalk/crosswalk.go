// Package crosswalk maps county FIPS codes to Core-Based Statistical Areas.
//
// The Store is built once from Census delineation rows, validated for
// referential integrity, and never mutated afterward, so lookups are safe
// from any number of goroutines without synchronization.
package crosswalk

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Kind distinguishes metropolitan from micropolitan statistical areas.
type Kind string

const (
	Metropolitan Kind = "metropolitan"
	Micropolitan Kind = "micropolitan"
)

// Entity is the metadata for one CBSA: title, kind, and member geography.
type Entity struct {
	Code     string   `json:"code"`
	Title    string   `json:"title"`
	Kind     Kind     `json:"kind"`
	Counties []string `json:"counties"` // ascending FIPS
	States   []string `json:"states"`   // sorted 2-digit state FIPS
}

// ErrUnknownCounty is returned by strict lookups for a county FIPS with no
// CBSA assignment (rural counties and territories are routinely unmapped).
var ErrUnknownCounty = eris.New("crosswalk: unknown county")

// ErrUnknownCbsa is returned by strict lookups for a CBSA code not present
// in the delineation.
var ErrUnknownCbsa = eris.New("crosswalk: unknown cbsa")

// Store is the immutable county→CBSA lookup table.
type Store struct {
	countyToCbsa map[string]string
	entities     map[string]*Entity
	codes        []string // sorted CBSA codes
	counties     []string // sorted mapped county FIPS
}

// Resolve returns the CBSA code for a county FIPS, or ok=false when the
// county is not part of any CBSA.
func (s *Store) Resolve(countyFIPS string) (string, bool) {
	code, ok := s.countyToCbsa[countyFIPS]
	return code, ok
}

// ResolveStrict is Resolve for callers that treat unmapped counties as
// errors rather than expected geography.
func (s *Store) ResolveStrict(countyFIPS string) (string, error) {
	code, ok := s.countyToCbsa[countyFIPS]
	if !ok {
		return "", eris.Wrapf(ErrUnknownCounty, "crosswalk: resolve %q", countyFIPS)
	}
	return code, nil
}

// MembersOf returns the member county FIPS codes of a CBSA in ascending
// order. Unknown codes yield nil.
func (s *Store) MembersOf(cbsaCode string) []string {
	ent, ok := s.entities[cbsaCode]
	if !ok {
		return nil
	}
	out := make([]string, len(ent.Counties))
	copy(out, ent.Counties)
	return out
}

// Area returns the full entity for a CBSA code, failing with ErrUnknownCbsa
// when absent.
func (s *Store) Area(cbsaCode string) (*Entity, error) {
	ent, ok := s.entities[cbsaCode]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownCbsa, "crosswalk: area %q", cbsaCode)
	}
	return ent, nil
}

// TitleOf returns the CBSA title, or "" for unknown codes.
func (s *Store) TitleOf(cbsaCode string) string {
	if ent, ok := s.entities[cbsaCode]; ok {
		return ent.Title
	}
	return ""
}

// StatesOf returns the sorted state FIPS codes a CBSA spans.
func (s *Store) StatesOf(cbsaCode string) []string {
	ent, ok := s.entities[cbsaCode]
	if !ok {
		return nil
	}
	out := make([]string, len(ent.States))
	copy(out, ent.States)
	return out
}

// KindOf reports whether a CBSA is metropolitan or micropolitan.
func (s *Store) KindOf(cbsaCode string) Kind {
	if ent, ok := s.entities[cbsaCode]; ok {
		return ent.Kind
	}
	return ""
}

// Codes returns all CBSA codes in ascending order.
func (s *Store) Codes() []string {
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Counties returns every mapped county FIPS in ascending order.
func (s *Store) Counties() []string {
	out := make([]string, len(s.counties))
	copy(out, s.counties)
	return out
}

// Len returns the number of CBSAs in the store.
func (s *Store) Len() int { return len(s.entities) }

// CountyCount returns the number of mapped counties.
func (s *Store) CountyCount() int { return len(s.countyToCbsa) }

func newStore(entities map[string]*Entity) *Store {
	s := &Store{
		countyToCbsa: make(map[string]string),
		entities:     entities,
		codes:        make([]string, 0, len(entities)),
	}
	for code, ent := range entities {
		s.codes = append(s.codes, code)
		sort.Strings(ent.Counties)
		for _, fips := range ent.Counties {
			s.countyToCbsa[fips] = code
			s.counties = append(s.counties, fips)
		}

		states := make(map[string]struct{})
		for _, fips := range ent.Counties {
			states[fips[:2]] = struct{}{}
		}
		ent.States = make([]string, 0, len(states))
		for st := range states {
			ent.States = append(ent.States, st)
		}
		sort.Strings(ent.States)
	}
	sort.Strings(s.codes)
	sort.Strings(s.counties)
	return s
}
