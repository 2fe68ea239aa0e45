package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/config"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
)

func TestRegistry_Get(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{name: "a"})

	s, err := r.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, "a", s.Name())

	_, err = r.Get("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestRegistry_SelectByName(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{name: "a"})
	r.Register(&fakeSource{name: "b"})

	result, err := r.Select([]string{"b"})
	assert.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "b", result[0].Name())
}

func TestRegistry_SelectAll(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{name: "a"})
	r.Register(&fakeSource{name: "b"})

	result, err := r.Select(nil)
	assert.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, "a", result[0].Name())
	assert.Equal(t, "b", result[1].Name())
}

func TestRegistry_SelectUnknown(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	_, err := r.Select([]string{"nonexistent"})
	assert.Error(t, err)
}

func TestRegistry_AllNames(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{name: "a"})
	r.Register(&fakeSource{name: "b"})

	assert.Equal(t, []string{"a", "b"}, r.AllNames())
}

func TestRegistry_ReRegisterKeepsPosition(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{name: "a", syncRows: 1})
	r.Register(&fakeSource{name: "b"})
	r.Register(&fakeSource{name: "a", syncRows: 2})

	assert.Equal(t, []string{"a", "b"}, r.AllNames())
	s, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.(*fakeSource).syncRows)
}

func TestRegistry_PolicyAssembly(t *testing.T) {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(&fakeSource{
		name:   "people",
		domain: "people",
		policy: rollup.DomainPolicy{
			Denominator: "population",
			Fields: map[string]rollup.FieldRule{
				"population": {Kind: rollup.RuleSum},
			},
		},
	})
	r.Register(&fakeSource{
		name:   "jobs",
		domain: "jobs",
		policy: rollup.DomainPolicy{
			Fields: map[string]rollup.FieldRule{
				"advisors": {Kind: rollup.RuleFirstAvailable},
			},
		},
	})

	p := r.Policy()
	require.Len(t, p.Domains, 2)
	assert.Equal(t, "population", p.Domains["people"].Denominator)
	assert.Equal(t, rollup.RuleSum, p.Domains["people"].Fields["population"].Kind)
	assert.Equal(t, rollup.RuleFirstAvailable, p.Domains["jobs"].Fields["advisors"].Kind)
}

func TestNewRegistry_Roster(t *testing.T) {
	r := NewRegistry(&config.Config{})

	assert.Equal(t, []string{"acs", "beagdp", "beainc", "fdicsod", "oews", "soi"}, r.AllNames())

	// Every source claims a distinct domain.
	domains := make(map[string]bool)
	for _, s := range r.All() {
		assert.False(t, domains[s.Domain()], "duplicate domain %q", s.Domain())
		domains[s.Domain()] = true
	}

	p := r.Policy()
	require.Len(t, p.Domains, 6)
	assert.Equal(t, market.FieldPopulation, p.Domains["acs"].Denominator)
	assert.Equal(t, market.FieldTotalReturns, p.Domains["irs_soi"].Denominator)
	assert.Equal(t, rollup.RuleFirstAvailable, p.Domains["oews"].Fields[market.FieldAdvisors].Kind)
	assert.Equal(t, rollup.RuleSum, p.Domains["fdic_sod"].Fields[market.FieldBranches].Kind)
	assert.Equal(t, rollup.RuleWeightedAverage, p.Domains["acs"].Fields[market.FieldMedianIncome].Kind)
}
