// Package bea provides a client for the Bureau of Economic Analysis API,
// covering the Regional dataset tables published at county granularity
// (CAGDP9 real GDP, CAINC1 personal income, CAINC5N earnings by industry).
package bea

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/marketscope/internal/resilience"
)

// Client fetches observations from the BEA Regional dataset.
type Client interface {
	// Regional runs a GetData call against the Regional dataset and
	// returns every observation in the response.
	Regional(ctx context.Context, q RegionalQuery) ([]Observation, error)
}

// RegionalQuery names a Regional table slice. TableName and Years are
// required. LineCode "" requests all line codes, which is how the
// by-industry tables are pulled in one call.
type RegionalQuery struct {
	TableName string
	LineCode  string
	// GeoFips defaults to "COUNTY" (all counties).
	GeoFips string
	Years   []int
	// Frequency defaults to "A" (annual).
	Frequency string
}

// Observation is one data point from a Regional response. Value is nil when
// BEA withheld the cell: "(D)" for disclosure suppression, "(NA)" for not
// available.
type Observation struct {
	GeoFips     string
	GeoName     string
	TimePeriod  string
	LineCode    string
	Description string
	Value       *float64
	Unit        string
	UnitMult    int
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. BEA enforces
// 100 requests per minute per key.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 2)
	}
}

// WithRetry overrides the retry policy for transient API failures.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = rc
	}
}

type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	baseURL    string
	key        string
}

// NewClient creates a BEA API client. The key is the registered UserID;
// the API rejects anonymous calls.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(1.5, 2),
		retry:      resilience.RetryConfig{OnRetry: resilience.RetryLogger("bea", "regional")},
		baseURL:    "https://apps.bea.gov/api/data",
		key:        key,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
