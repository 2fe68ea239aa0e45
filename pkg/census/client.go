// Package census provides a client for the Census Bureau data API,
// covering the ACS 5-year detail tables at county granularity.
package census

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/marketscope/internal/resilience"
)

// Client fetches ACS variables from the Census data API.
type Client interface {
	// States returns every state with its 2-digit FIPS code.
	States(ctx context.Context) ([]State, error)

	// Counties returns one row per county with the requested variables.
	// stateFIPS restricts the query to a single state; pass "" for all
	// counties nationwide.
	Counties(ctx context.Context, vars []string, stateFIPS string) ([]Row, error)
}

// State is one row of a for=state:* query.
type State struct {
	Name string
	FIPS string
}

// Row is one county's worth of ACS values. Variables the API reported as
// missing (annotation sentinels, jam values) are absent from Values.
type Row struct {
	Name       string
	StateFIPS  string
	CountyFIPS string
	Values     map[string]float64
}

// Option configures the client.
type Option func(*client)

// WithKey sets the API key. Keyless access works but is throttled to a few
// hundred requests per day.
func WithKey(key string) Option {
	return func(c *client) {
		c.key = key
	}
}

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithDataset selects the dataset path under the vintage year,
// e.g. "acs/acs5" or "acs/acs1".
func WithDataset(ds string) Option {
	return func(c *client) {
		c.dataset = ds
	}
}

// WithYear sets the vintage year of the dataset.
func WithYear(year int) Option {
	return func(c *client) {
		c.year = year
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
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
	dataset    string
	key        string
	year       int
}

// NewClient creates a Census API client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		retry:      resilience.RetryConfig{OnRetry: resilience.RetryLogger("census", "get")},
		baseURL:    "https://api.census.gov/data",
		dataset:    "acs/acs5",
		year:       2023,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
