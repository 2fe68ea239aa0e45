package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/rollup"
	"github.com/sells-group/marketscope/pkg/bea"
)

func TestBEAGDP_Metadata(t *testing.T) {
	s := NewBEAGDP(nil, 5)
	assert.Equal(t, "beagdp", s.Name())
	assert.Equal(t, "bea_gdp", s.Domain())
	assert.Equal(t, Annual, s.Cadence())
}

func TestBEAGDP_Policy(t *testing.T) {
	p := NewBEAGDP(nil, 5).Policy()
	assert.Empty(t, p.Denominator)
	assert.Equal(t, rollup.RuleSum, p.Fields[market.FieldGDPEnd].Kind)
	assert.Equal(t, rollup.RuleSum, p.Fields[market.FieldGDPStart].Kind)
}

func TestBEAGDP_Sync(t *testing.T) {
	thisYear := time.Now().Year()
	end := thisYear - 1
	start := end - 5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "CAGDP9", q.Get("TableName"))
		assert.Equal(t, "1", q.Get("LineCode"))

		w.Header().Set("Content-Type", "application/json")
		if q.Get("Year") == strconv.Itoa(start) {
			_, _ = fmt.Fprintf(w, `{"BEAAPI":{"Results":{"Data":[
				{"Code":"CAGDP9-1","GeoFips":"06001","GeoName":"Alameda, CA","TimePeriod":"%d","DataValue":"100,000"},
				{"Code":"CAGDP9-1","GeoFips":"06041","GeoName":"Marin, CA","TimePeriod":"%d","DataValue":"50,000"},
				{"Code":"CAGDP9-1","GeoFips":"06000","GeoName":"California","TimePeriod":"%d","DataValue":"9,999,999"}
			]}}}`, start, start, start)
			return
		}

		// The probe asks for several candidate years at once; answer with
		// two vintages so the latest one wins, plus a suppressed cell and
		// a state aggregate that both must be ignored.
		_, _ = fmt.Fprintf(w, `{"BEAAPI":{"Results":{"Data":[
			{"Code":"CAGDP9-1","GeoFips":"06001","GeoName":"Alameda, CA","TimePeriod":"%d","DataValue":"140,000"},
			{"Code":"CAGDP9-1","GeoFips":"06001","GeoName":"Alameda, CA","TimePeriod":"%d","DataValue":"150,000"},
			{"Code":"CAGDP9-1","GeoFips":"06041","GeoName":"Marin, CA","TimePeriod":"%d","DataValue":"(D)"},
			{"Code":"CAGDP9-1","GeoFips":"06000","GeoName":"California","TimePeriod":"%d","DataValue":"9,999,999"}
		]}}}`, end-1, end, end, end)
	}))
	defer srv.Close()

	st := newTestStore(t)
	ctx := context.Background()

	client := bea.NewClient("k", bea.WithBaseURL(srv.URL), bea.WithRateLimit(1000))
	s := NewBEAGDP(client, 5)

	result, err := s.Sync(ctx, st, nil, t.TempDir(), false)
	require.NoError(t, err)
	assert.Equal(t, end, result.Metadata["end_year"])
	assert.Equal(t, start, result.Metadata["start_year"])

	tbl, err := st.LoadCountyTable(ctx, "bea_gdp", strconv.Itoa(end))
	require.NoError(t, err)
	require.NotNil(t, tbl)
	require.Len(t, tbl.Records, 2, "state aggregate rows never stage")

	alameda := tbl.Records[0]
	assert.Equal(t, "06001", alameda.FIPS)
	assert.Equal(t, 150000.0, alameda.Fields[market.FieldGDPEnd], "latest vintage wins")
	assert.Equal(t, 100000.0, alameda.Fields[market.FieldGDPStart])

	marin := tbl.Records[1]
	assert.Equal(t, "06041", marin.FIPS)
	_, ok := marin.Fields[market.FieldGDPEnd]
	assert.False(t, ok, "suppressed cell stays absent")
	assert.Equal(t, 50000.0, marin.Fields[market.FieldGDPStart])
}

func TestBEAGDP_Sync_NothingPublished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"BEAAPI":{"Results":{"Data":[
			{"Code":"CAGDP9-1","GeoFips":"06001","GeoName":"Alameda, CA","TimePeriod":"2020","DataValue":"(NA)"}
		]}}}`)
	}))
	defer srv.Close()

	st := newTestStore(t)
	client := bea.NewClient("k", bea.WithBaseURL(srv.URL), bea.WithRateLimit(1000))
	s := NewBEAGDP(client, 5)

	_, err := s.Sync(context.Background(), st, nil, t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no county real GDP")
}
