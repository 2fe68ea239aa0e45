package rollup

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/model"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStrict makes unmapped counties fail the aggregation instead of being
// skipped. Default is lenient: territories and rural counties routinely
// fall outside every CBSA.
func WithStrict() Option {
	return func(a *Aggregator) { a.strict = true }
}

// WithGapTracker records every per-field availability outcome into t.
func WithGapTracker(t *gaps.Tracker) Option {
	return func(a *Aggregator) { a.gaps = t }
}

// Aggregator rolls county tables up to CBSA level. It performs no I/O and
// never mutates its inputs, so one instance may serve concurrent callers.
type Aggregator struct {
	cw     *crosswalk.Store
	policy *Policy
	strict bool
	gaps   *gaps.Tracker
	log    *zap.Logger
}

func New(cw *crosswalk.Store, policy *Policy, opts ...Option) *Aggregator {
	a := &Aggregator{
		cw:     cw,
		policy: policy,
		log:    zap.L().With(zap.String("component", "rollup")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate rolls one county table up to a CBSA table under the domain's
// declared field rules. Fields without a rule are excluded with a warning,
// never silently summed.
func (a *Aggregator) Aggregate(tbl model.CountyTable) (*model.CbsaTable, error) {
	out := model.NewCbsaTable(tbl.Domain, tbl.Period)

	domain, ok := a.policy.Domain(tbl.Domain)
	if !ok {
		a.log.Warn("no aggregation policy for domain, all fields skipped",
			zap.String("domain", tbl.Domain))
		out.Unsupported = tbl.FieldNames()
		return out, nil
	}

	groups, err := a.group(tbl)
	if err != nil {
		return nil, err
	}

	var fields []string
	for _, field := range tbl.FieldNames() {
		rule, declared := domain.Rule(field)
		if rule.Kind == RuleUnsupported {
			out.Unsupported = append(out.Unsupported, field)
			if declared {
				a.log.Warn("field declared unsupported, not aggregated",
					zap.String("domain", tbl.Domain), zap.String("field", field))
			} else {
				a.log.Warn("no aggregation rule for field, not aggregated",
					zap.String("domain", tbl.Domain), zap.String("field", field))
			}
			continue
		}
		fields = append(fields, field)
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		members := groups[code]
		row := out.Row(code)
		for _, field := range fields {
			rule, _ := domain.Rule(field)
			v, reason := a.aggregateField(code, members, field, rule, domain.Denominator)
			row.Set(field, v)
			if a.gaps != nil {
				a.gaps.Record(code, field, v.Status, reason)
			}
		}
	}

	return out, nil
}

// group buckets county records by CBSA, preserving ascending-FIPS order
// within each bucket.
func (a *Aggregator) group(tbl model.CountyTable) (map[string][]model.CountyRecord, error) {
	records := make([]model.CountyRecord, len(tbl.Records))
	copy(records, tbl.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].FIPS < records[j].FIPS })

	groups := make(map[string][]model.CountyRecord)
	var skipped int
	for _, rec := range records {
		code, ok := a.cw.Resolve(rec.FIPS)
		if !ok {
			if a.strict {
				_, err := a.cw.ResolveStrict(rec.FIPS)
				return nil, eris.Wrapf(err, "rollup: aggregate %s", tbl.Domain)
			}
			skipped++
			continue
		}
		groups[code] = append(groups[code], rec)
	}

	if skipped > 0 {
		a.log.Debug("skipped counties outside any cbsa",
			zap.String("domain", tbl.Domain), zap.Int("skipped", skipped))
	}
	return groups, nil
}

func (a *Aggregator) aggregateField(code string, members []model.CountyRecord, field string, rule FieldRule, denomField string) (model.Value, string) {
	var reporters []model.CountyRecord
	for _, rec := range members {
		if _, ok := rec.Get(field); ok {
			reporters = append(reporters, rec)
		}
	}
	if len(reporters) == 0 {
		return model.Gap(), "no member counties reported"
	}

	coverage := a.coverage(code, members, reporters, denomField)

	switch rule.Kind {
	case RuleSum:
		var sum float64
		for _, rec := range reporters {
			v, _ := rec.Get(field)
			sum += v
		}
		return model.Observed(sum, coverage), ""

	case RuleWeightedAverage:
		var sumWeighted, sumWeight float64
		var weighted int
		for _, rec := range reporters {
			v, _ := rec.Get(field)
			w, ok := rec.Get(rule.WeightField)
			if !ok {
				continue
			}
			sumWeighted += v * w
			sumWeight += w
			weighted++
		}
		if weighted == 0 || sumWeight == 0 {
			return model.Gap(), "zero total weight"
		}
		return model.Observed(sumWeighted/sumWeight, coverage), ""

	case RuleFirstAvailable:
		v, _ := reporters[0].Get(field)
		return model.Observed(v, coverage), ""
	}

	return model.Gap(), "unsupported rule"
}

// coverage computes the fraction of the CBSA's denominator represented by
// reporting counties: the denominator field's sum when one is declared and
// present, else the share of the crosswalk's member roster.
func (a *Aggregator) coverage(code string, members, reporters []model.CountyRecord, denomField string) float64 {
	if denomField != "" {
		var total, reported float64
		for _, rec := range members {
			if d, ok := rec.Get(denomField); ok {
				total += d
			}
		}
		for _, rec := range reporters {
			if d, ok := rec.Get(denomField); ok {
				reported += d
			}
		}
		if total > 0 {
			cov := reported / total
			if cov > 1 {
				cov = 1
			}
			return cov
		}
	}

	roster := len(a.cw.MembersOf(code))
	if roster == 0 {
		roster = len(members)
	}
	cov := float64(len(reporters)) / float64(roster)
	if cov > 1 {
		cov = 1
	}
	return cov
}
