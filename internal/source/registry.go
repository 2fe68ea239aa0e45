package source

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/config"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/pkg/bea"
	"github.com/sells-group/marketscope/pkg/census"
)

// Registry holds every known source in registration order.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry wires the full roster of sources from configuration.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{sources: make(map[string]Source)}

	// The ACS source re-dials the client per vintage year during backfill.
	newCensus := func(year int) census.Client {
		opts := []census.Option{census.WithKey(cfg.Census.Key), census.WithYear(year)}
		if cfg.Census.BaseURL != "" {
			opts = append(opts, census.WithBaseURL(cfg.Census.BaseURL))
		}
		if cfg.Census.Dataset != "" {
			opts = append(opts, census.WithDataset(cfg.Census.Dataset))
		}
		return census.NewClient(opts...)
	}

	var beaOpts []bea.Option
	if cfg.BEA.BaseURL != "" {
		beaOpts = append(beaOpts, bea.WithBaseURL(cfg.BEA.BaseURL))
	}
	beaClient := bea.NewClient(cfg.BEA.Key, beaOpts...)

	r.Register(NewACS(cfg.Census.Year, newCensus))
	r.Register(NewBEAGDP(beaClient, cfg.Analyze.GDPSpanYears))
	r.Register(NewBEAIncome(beaClient))
	r.Register(&FDICSOD{})
	r.Register(&OEWS{})
	r.Register(&SOI{})
	return r
}

// Register adds a source. Re-registering a name replaces the source but
// keeps its original position.
func (r *Registry) Register(s Source) {
	if _, exists := r.sources[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.sources[s.Name()] = s
}

// Get returns the named source.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return s, nil
}

// Select resolves names to sources, or every source when names is empty.
func (r *Registry) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// All returns every source in registration order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// AllNames returns every registered source name in order.
func (r *Registry) AllNames() []string {
	return append([]string(nil), r.order...)
}

// Policy assembles the built-in aggregation policy from each source's
// declared field rules, keyed by domain.
func (r *Registry) Policy() *rollup.Policy {
	p := &rollup.Policy{Domains: make(map[string]rollup.DomainPolicy)}
	for _, s := range r.All() {
		p.Domains[s.Domain()] = s.Policy()
	}
	return p
}
