package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
	"github.com/sells-group/marketscope/internal/monitoring"
	"github.com/sells-group/marketscope/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedRun persists one completed run with a ranking, two markets, and a
// few gap entries.
func seedRun(t *testing.T, st *store.SQLiteStore) *model.Run {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.SaveCrosswalk(ctx, 2023, []crosswalk.Row{
		{CountyFIPS: "40117", CbsaCode: "46140", Title: "Tulsa, OK", Kind: crosswalk.Metropolitan},
		{CountyFIPS: "40143", CbsaCode: "46140", Title: "Tulsa, OK", Kind: crosswalk.Metropolitan},
		{CountyFIPS: "06001", CbsaCode: "41860", Title: "San Francisco-Oakland-Berkeley, CA", Kind: crosswalk.Metropolitan},
	}))

	run, err := st.CreateRun(ctx, "2023")
	require.NoError(t, err)

	r1, r2 := 1, 2
	require.NoError(t, st.SaveRanking(ctx, run.ID, metrics.Ranking{
		Metric: market.ScoreUnderserved,
		Period: "2023",
		Entries: []metrics.RankedEntry{
			{CBSA: "46140", Rank: &r1, Score: 82.4, Status: model.StatusPartial, Coverage: 0.94, Label: "Very High"},
			{CBSA: "41860", Rank: &r2, Score: 61, Status: model.StatusAvailable, Coverage: 1, Label: "High"},
		},
	}))

	require.NoError(t, st.SaveMarkets(ctx, run.ID, []market.Market{
		{
			CBSA: "46140", Title: "Tulsa, OK", States: []string{"OK"}, Kind: crosswalk.Metropolitan,
			Rank: &r1, Label: "Very High", MarketStatus: market.StatusUnderserved,
			Underserved: model.Partial(82.4, 0.94), Potential: model.Available(75.2),
			Coverage: model.Available(88.1), AdvisorPer10k: model.Available(1.23),
			HNWIDensity: model.Available(64.2),
		},
		{
			CBSA: "41860", Title: "San Francisco-Oakland-Berkeley, CA", States: []string{"CA"}, Kind: crosswalk.Metropolitan,
			Rank: &r2, Label: "High", MarketStatus: market.StatusCompetitive,
			Underserved: model.Available(61), Potential: model.Available(90.4),
			Coverage: model.Available(17), AdvisorPer10k: model.Available(9.87),
			HNWIDensity: model.Available(95.5),
		},
	}))

	require.NoError(t, st.SaveGapEntries(ctx, run.ID, []gaps.Entry{
		{CBSA: "46140", Metric: market.DerivedGDPCAGR, Status: model.StatusGap, Reason: "no member counties reported"},
		{CBSA: "41860", Metric: market.DerivedGDPCAGR, Status: model.StatusAvailable},
		{CBSA: "46140", Metric: market.IndexHNWIDensity, Status: model.StatusPartial},
	}))

	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, ""))
	return run
}

func newTestAPI(t *testing.T) (*httptest.Server, *model.Run) {
	t.Helper()
	st := newTestStore(t)
	run := seedRun(t, st)
	ts := httptest.NewServer(NewServer(st).Router())
	t.Cleanup(ts.Close)
	return ts, run
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestAPI(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRanking(t *testing.T) {
	ts, run := newTestAPI(t)

	var resp rankingResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/rankings/underserved_score", &resp))
	assert.Equal(t, run.ID, resp.RunID)
	assert.Equal(t, market.ScoreUnderserved, resp.Ranking.Metric)
	require.Len(t, resp.Ranking.Entries, 2)
	assert.Equal(t, "46140", resp.Ranking.Entries[0].CBSA)
	require.NotNil(t, resp.Ranking.Entries[0].Rank)
	assert.Equal(t, 1, *resp.Ranking.Entries[0].Rank)
}

func TestRanking_UnknownMetric(t *testing.T) {
	ts, _ := newTestAPI(t)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/rankings/nope", &body))
	assert.Contains(t, body["error"], "no ranking for metric")
}

func TestRanking_NoCompletedRun(t *testing.T) {
	st := newTestStore(t)
	ts := httptest.NewServer(NewServer(st).Router())
	t.Cleanup(ts.Close)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/rankings/underserved_score", &body))
	assert.Contains(t, body["error"], "no completed analysis run")
}

func TestMarkets(t *testing.T) {
	ts, run := newTestAPI(t)

	var resp marketsResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/markets", &resp))
	assert.Equal(t, run.ID, resp.RunID)
	assert.Equal(t, "2023", resp.Period)
	require.Len(t, resp.Markets, 2)
	assert.Equal(t, "Tulsa, OK", resp.Markets[0].Title)
}

func TestMarketDetail(t *testing.T) {
	ts, run := newTestAPI(t)

	var detail marketDetail
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/markets/46140", &detail))
	assert.Equal(t, run.ID, detail.RunID)
	assert.Equal(t, "Tulsa, OK", detail.Title)
	assert.Equal(t, market.StatusUnderserved, detail.MarketStatus)
	assert.Equal(t, []string{"40117", "40143"}, detail.Counties)
}

func TestMarketDetail_Unknown(t *testing.T) {
	ts, _ := newTestAPI(t)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/markets/99999", &body))
	assert.Contains(t, body["error"], "99999")
}

func TestGaps(t *testing.T) {
	ts, run := newTestAPI(t)

	var resp gapsResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/gaps", &resp))
	assert.Equal(t, run.ID, resp.RunID)

	cagr := resp.Metrics[market.DerivedGDPCAGR]
	assert.Equal(t, 1, cagr.Available)
	assert.Equal(t, 1, cagr.Gap)
	assert.Equal(t, 1, resp.Metrics[market.IndexHNWIDensity].Partial)

	require.Len(t, resp.Gaps, 1, "only gap-status entries are itemized")
	assert.Equal(t, "46140", resp.Gaps[0].CBSA)
	assert.Equal(t, "no member counties reported", resp.Gaps[0].Reason)
}

func TestCORS(t *testing.T) {
	ts, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatus(t *testing.T) {
	st := newTestStore(t)
	seedRun(t, st)
	ts := httptest.NewServer(NewServer(st, WithCollector(monitoring.NewCollector(st))).Router())
	t.Cleanup(ts.Close)

	var snap monitoring.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &snap))
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.CrosswalkVintages)
	assert.NotNil(t, snap.LatestCompleteAt)
	assert.Equal(t, 24, snap.LookbackHours)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status?hours=1", &snap))
	assert.Equal(t, 1, snap.LookbackHours)

	var body map[string]string
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/status?hours=zero", &body))
	assert.Contains(t, body["error"], "positive integer")
}

func TestStatus_NotRoutedWithoutCollector(t *testing.T) {
	ts, _ := newTestAPI(t)

	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/status", nil))
}
