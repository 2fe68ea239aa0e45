package serve

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/gaps"
	"github.com/sells-group/marketscope/internal/market"
	"github.com/sells-group/marketscope/internal/metrics"
	"github.com/sells-group/marketscope/internal/model"
)

type rankingResponse struct {
	RunID   string          `json:"run_id"`
	Ranking metrics.Ranking `json:"ranking"`
}

type marketsResponse struct {
	RunID   string          `json:"run_id"`
	Period  string          `json:"period"`
	Markets []market.Market `json:"markets"`
}

// marketDetail is one market plus its member-county roster.
type marketDetail struct {
	market.Market
	Counties []string `json:"counties,omitempty"`
	RunID    string   `json:"run_id"`
	Period   string   `json:"period"`
}

type gapsResponse struct {
	RunID   string                       `json:"run_id"`
	Period  string                       `json:"period"`
	Metrics map[string]gaps.StatusCounts `json:"metrics"`
	Gaps    []gaps.Entry                 `json:"gaps"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latestRun(w, r)
	if !ok {
		return
	}

	metric := chi.URLParam(r, "metric")
	ranking, err := s.st.LoadRanking(r.Context(), run.ID, metric)
	if err != nil {
		s.internalError(w, "load ranking", err)
		return
	}
	if ranking == nil {
		writeError(w, http.StatusNotFound, "no ranking for metric "+metric)
		return
	}
	writeJSON(w, http.StatusOK, rankingResponse{RunID: run.ID, Ranking: *ranking})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latestRun(w, r)
	if !ok {
		return
	}

	markets, err := s.st.LoadMarkets(r.Context(), run.ID)
	if err != nil {
		s.internalError(w, "load markets", err)
		return
	}
	if markets == nil {
		writeError(w, http.StatusNotFound, "no market screen for the latest run")
		return
	}
	writeJSON(w, http.StatusOK, marketsResponse{RunID: run.ID, Period: run.Period, Markets: markets})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latestRun(w, r)
	if !ok {
		return
	}

	code := chi.URLParam(r, "cbsa")
	markets, err := s.st.LoadMarkets(r.Context(), run.ID)
	if err != nil {
		s.internalError(w, "load markets", err)
		return
	}
	for _, m := range markets {
		if m.CBSA != code {
			continue
		}
		detail := marketDetail{Market: m, RunID: run.ID, Period: run.Period}
		if cw, err := s.crosswalk(r.Context()); err == nil && cw != nil {
			detail.Counties = cw.MembersOf(code)
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	writeError(w, http.StatusNotFound, "no market "+code+" in the latest run")
}

func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latestRun(w, r)
	if !ok {
		return
	}

	entries, err := s.st.LoadGapEntries(r.Context(), run.ID)
	if err != nil {
		s.internalError(w, "load gap entries", err)
		return
	}

	// Rebuild the tracker so the summary matches what the run recorded.
	tr := gaps.NewTracker()
	for _, e := range entries {
		tr.Record(e.CBSA, e.Metric, e.Status, e.Reason)
	}

	resp := gapsResponse{
		RunID:   run.ID,
		Period:  run.Period,
		Metrics: tr.Summarize(),
		Gaps:    tr.GapEntries(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus reports a pipeline health snapshot. The lookback window
// defaults to 24 hours; ?hours= overrides it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		v, err := strconv.Atoi(h)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = v
	}

	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		s.internalError(w, "collect status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// latestRun resolves the newest completed run, writing the error response
// itself when there is none.
func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.st.LatestRun(r.Context(), model.RunStatusComplete)
	if err != nil {
		s.internalError(w, "load latest run", err)
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no completed analysis run")
		return nil, false
	}
	return run, true
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error(action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
