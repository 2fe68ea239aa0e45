package gaps

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketscope/internal/model"
)

func TestTrackerSummarize(t *testing.T) {
	tr := NewTracker()
	tr.Record("41860", "median_income", model.StatusAvailable, "")
	tr.Record("19100", "median_income", model.StatusPartial, "1 of 4 counties missing")
	tr.Record("20460", "median_income", model.StatusGap, "no member counties reported")
	tr.Record("41860", "gdp_cagr", model.StatusGap, "start year missing")

	sum := tr.Summarize()
	assert.Equal(t, StatusCounts{Available: 1, Partial: 1, Gap: 1}, sum["median_income"])
	assert.Equal(t, StatusCounts{Gap: 1}, sum["gdp_cagr"])
	assert.Equal(t, 3, sum["median_income"].Total())
	assert.Equal(t, []string{"gdp_cagr", "median_income"}, tr.Metrics())
	assert.Equal(t, 4, tr.Len())
}

func TestTrackerGapEntries(t *testing.T) {
	tr := NewTracker()
	tr.Record("41860", "m1", model.StatusAvailable, "")
	tr.Record("19100", "m1", model.StatusGap, "zero total weight")

	entries := tr.GapEntries()
	assert.Len(t, entries, 1)
	assert.Equal(t, "19100", entries[0].CBSA)
	assert.Equal(t, "zero total weight", entries[0].Reason)
}

func TestTrackerEntries(t *testing.T) {
	tr := NewTracker()
	tr.Record("41860", "m1", model.StatusAvailable, "")
	tr.Record("19100", "m1", model.StatusGap, "zero total weight")

	entries := tr.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "41860", entries[0].CBSA)

	// The copy is detached from the tracker.
	entries[0].CBSA = "mutated"
	assert.Equal(t, "41860", tr.Entries()[0].CBSA)
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record(fmt.Sprintf("%05d", j), fmt.Sprintf("metric_%d", n), model.StatusGap, "")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, tr.Len())
	sum := tr.Summarize()
	assert.Len(t, sum, 8)
	for _, c := range sum {
		assert.Equal(t, 100, c.Gap)
	}
}
