// Package rollup aggregates county-level tables to CBSA level under
// per-field aggregation rules.
package rollup

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleKind selects how a field aggregates across a CBSA's member counties.
type RuleKind string

const (
	// RuleSum sums reporting counties; zero reporters yield a gap, never 0.
	RuleSum RuleKind = "sum"
	// RuleWeightedAverage averages by a weight field (typically population).
	RuleWeightedAverage RuleKind = "weighted_average"
	// RuleFirstAvailable takes the first reporting county in ascending-FIPS
	// order, for fields already CBSA-wide in the source.
	RuleFirstAvailable RuleKind = "first_available"
	// RuleUnsupported excludes the field from aggregation with a warning.
	RuleUnsupported RuleKind = "unsupported"
)

// FieldRule is the aggregation rule declared for one field.
type FieldRule struct {
	Kind        RuleKind `yaml:"rule"`
	WeightField string   `yaml:"weight,omitempty"`
}

// DomainPolicy holds the rules for one source domain's table.
type DomainPolicy struct {
	// Denominator names the field whose county values weight coverage
	// fractions. Empty falls back to plain county counts.
	Denominator string               `yaml:"denominator,omitempty"`
	Fields      map[string]FieldRule `yaml:"fields"`
}

// Rule returns the declared rule for a field. Undeclared fields are
// unsupported rather than silently summed.
func (d DomainPolicy) Rule(field string) (FieldRule, bool) {
	r, ok := d.Fields[field]
	if !ok {
		return FieldRule{Kind: RuleUnsupported}, false
	}
	return r, true
}

// Policy maps source domains to their field rules.
type Policy struct {
	Domains map[string]DomainPolicy `yaml:"domains"`
}

// Domain returns the policy for a source domain.
func (p *Policy) Domain(name string) (DomainPolicy, bool) {
	d, ok := p.Domains[name]
	return d, ok
}

// LoadPolicy reads an aggregation policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rollup: read policy %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates a YAML aggregation policy.
func ParsePolicy(data []byte) (*Policy, error) {
	// The YAML has a top-level "rollup" key.
	var wrapper struct {
		Rollup Policy `yaml:"rollup"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "rollup: parse policy")
	}

	p := &wrapper.Rollup
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) validate() error {
	for domain, d := range p.Domains {
		for field, r := range d.Fields {
			switch r.Kind {
			case RuleSum, RuleFirstAvailable, RuleUnsupported:
			case RuleWeightedAverage:
				if r.WeightField == "" {
					return eris.Errorf("rollup: %s.%s: weighted_average requires a weight field", domain, field)
				}
			default:
				return eris.Errorf("rollup: %s.%s: unknown rule %q", domain, field, r.Kind)
			}
		}
	}
	return nil
}
