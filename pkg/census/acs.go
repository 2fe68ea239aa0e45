package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/resilience"
)

// The API caps get= at 50 variables. Chunking well below that also keeps
// URLs short enough for intermediate proxies.
const maxVarsPerCall = 10

// ACS annotation values are large negative jam codes such as -666666666
// (not available) and -888888888 (suppressed). Anything at or below this
// threshold is treated as missing.
const jamValueThreshold = -111111111

// States returns every state with its 2-digit FIPS code.
func (c *client) States(ctx context.Context) ([]State, error) {
	table, err := c.get(ctx, url.Values{
		"get": {"NAME"},
		"for": {"state:*"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "census: list states")
	}
	if len(table) < 2 {
		return nil, eris.New("census: list states: empty response")
	}

	header := indexHeader(table[0])
	nameIdx, okName := header["NAME"]
	stateIdx, okState := header["state"]
	if !okName || !okState {
		return nil, eris.Errorf("census: list states: unexpected header %v", table[0])
	}

	states := make([]State, 0, len(table)-1)
	for _, row := range table[1:] {
		if len(row) <= nameIdx || len(row) <= stateIdx {
			continue
		}
		states = append(states, State{Name: row[nameIdx], FIPS: row[stateIdx]})
	}
	return states, nil
}

// Counties returns one row per county with the requested variables, chunking
// the variable list across multiple API calls and merging by county.
func (c *client) Counties(ctx context.Context, vars []string, stateFIPS string) ([]Row, error) {
	if len(vars) == 0 {
		return nil, eris.New("census: counties: no variables requested")
	}

	byFIPS := make(map[string]*Row)
	var order []string

	for start := 0; start < len(vars); start += maxVarsPerCall {
		end := min(start+maxVarsPerCall, len(vars))
		chunk := vars[start:end]

		params := url.Values{
			"get": {"NAME," + strings.Join(chunk, ",")},
			"for": {"county:*"},
		}
		if stateFIPS != "" {
			params.Set("in", "state:"+stateFIPS)
		}

		table, err := c.get(ctx, params)
		if err != nil {
			return nil, eris.Wrapf(err, "census: counties chunk %d", start/maxVarsPerCall+1)
		}
		if len(table) < 2 {
			continue
		}

		header := indexHeader(table[0])
		stateIdx, okState := header["state"]
		countyIdx, okCounty := header["county"]
		if !okState || !okCounty {
			return nil, eris.Errorf("census: counties: response missing geography columns: %v", table[0])
		}

		for _, raw := range table[1:] {
			if len(raw) <= stateIdx || len(raw) <= countyIdx {
				continue
			}
			fips := raw[stateIdx] + raw[countyIdx]
			row, ok := byFIPS[fips]
			if !ok {
				row = &Row{
					StateFIPS:  raw[stateIdx],
					CountyFIPS: raw[countyIdx],
					Values:     make(map[string]float64, len(vars)),
				}
				byFIPS[fips] = row
				order = append(order, fips)
			}
			if nameIdx, okName := header["NAME"]; okName && len(raw) > nameIdx {
				row.Name = raw[nameIdx]
			}
			for _, v := range chunk {
				idx, okVar := header[v]
				if !okVar || len(raw) <= idx {
					continue
				}
				if val, okVal := parseACSValue(raw[idx]); okVal {
					row.Values[v] = val
				}
			}
		}
	}

	rows := make([]Row, 0, len(order))
	for _, fips := range order {
		rows = append(rows, *byFIPS[fips])
	}
	return rows, nil
}

// get performs one API call and decodes the array-of-arrays response.
// Transient failures (network errors, 429, 5xx) are retried with backoff;
// each attempt re-acquires the rate limiter.
func (c *client) get(ctx context.Context, params url.Values) ([][]string, error) {
	if c.key != "" {
		params.Set("key", c.key)
	}
	reqURL := fmt.Sprintf("%s/%d/%s?%s", c.baseURL, c.year, c.dataset, params.Encode())

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([][]string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "census: rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "census: build request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "census: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "census: read body")
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("census: status %d: %s", resp.StatusCode, firstLine(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		// The API reports a bad key as 200 with a plain-text body.
		if strings.Contains(string(body), "Invalid Key") {
			return nil, eris.New("census: invalid API key")
		}

		var table [][]string
		if err := json.Unmarshal(body, &table); err != nil {
			return nil, eris.Wrapf(err, "census: parse response: %s", firstLine(body))
		}
		return table, nil
	})
}

// parseACSValue parses a cell, rejecting blanks, non-numerics, and jam
// values.
func parseACSValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if v <= jamValueThreshold {
		return 0, false
	}
	return v, true
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
