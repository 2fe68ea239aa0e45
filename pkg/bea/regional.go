package bea

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketscope/internal/resilience"
)

// regionalResponse mirrors the envelope BEA wraps every answer in. Errors
// come back inside Results with a 200 status.
type regionalResponse struct {
	BEAAPI struct {
		Results struct {
			Error *apiError       `json:"Error"`
			Data  []regionalDatum `json:"Data"`
		} `json:"Results"`
	} `json:"BEAAPI"`
}

type apiError struct {
	Code        string `json:"APIErrorCode"`
	Description string `json:"APIErrorDescription"`
}

type regionalDatum struct {
	Code        string `json:"Code"`
	GeoFips     string `json:"GeoFips"`
	GeoName     string `json:"GeoName"`
	TimePeriod  string `json:"TimePeriod"`
	Description string `json:"Description"`
	ClUnit      string `json:"CL_UNIT"`
	UnitMult    string `json:"UNIT_MULT"`
	DataValue   string `json:"DataValue"`
}

// Regional runs a GetData call against the Regional dataset. Transient
// failures (network errors, 429, 5xx) are retried with backoff; API errors
// inside the envelope are permanent.
func (c *client) Regional(ctx context.Context, q RegionalQuery) ([]Observation, error) {
	if q.TableName == "" {
		return nil, eris.New("bea: regional: table name is required")
	}
	if len(q.Years) == 0 {
		return nil, eris.New("bea: regional: at least one year is required")
	}

	years := make([]string, len(q.Years))
	for i, y := range q.Years {
		years[i] = strconv.Itoa(y)
	}

	params := url.Values{
		"UserID":       {c.key},
		"method":       {"GetData"},
		"datasetname":  {"Regional"},
		"TableName":    {q.TableName},
		"GeoFips":      {orDefault(q.GeoFips, "COUNTY")},
		"Frequency":    {orDefault(q.Frequency, "A")},
		"Year":         {strings.Join(years, ",")},
		"ResultFormat": {"JSON"},
	}
	if q.LineCode != "" {
		params.Set("LineCode", q.LineCode)
	}

	decoded, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (regionalResponse, error) {
		var out regionalResponse

		if err := c.limiter.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "bea: rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return out, eris.Wrap(err, "bea: build request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return out, eris.Wrapf(err, "bea: regional %s", q.TableName)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return out, eris.Wrap(err, "bea: read body")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("bea: regional %s: status %d", q.TableName, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return out, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return out, statusErr
		}

		if err := json.Unmarshal(body, &out); err != nil {
			return out, eris.Wrapf(err, "bea: regional %s: parse response", q.TableName)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if apiErr := decoded.BEAAPI.Results.Error; apiErr != nil {
		return nil, eris.Errorf("bea: regional %s: api error %s: %s", q.TableName, apiErr.Code, apiErr.Description)
	}

	obs := make([]Observation, 0, len(decoded.BEAAPI.Results.Data))
	for _, d := range decoded.BEAAPI.Results.Data {
		o := Observation{
			GeoFips:     strings.TrimSpace(d.GeoFips),
			GeoName:     d.GeoName,
			TimePeriod:  d.TimePeriod,
			LineCode:    lineCodeOf(d.Code),
			Description: d.Description,
			Value:       parseDataValue(d.DataValue),
			Unit:        d.ClUnit,
		}
		if mult, convErr := strconv.Atoi(strings.TrimSpace(d.UnitMult)); convErr == nil {
			o.UnitMult = mult
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// lineCodeOf extracts the line code from a Code value like "CAINC5N-0700".
func lineCodeOf(code string) string {
	if i := strings.LastIndexByte(code, '-'); i >= 0 {
		return code[i+1:]
	}
	return code
}

// parseDataValue parses a BEA cell. Values use comma digit grouping;
// "(D)", "(NA)", and "(NM)" mark withheld cells.
func parseDataValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "(") {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
