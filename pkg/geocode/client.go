// Package geocode resolves street addresses to coordinates with the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/farmmap/internal/resilience"
)

// DefaultBaseURL is the Google Geocoding JSON endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Status classifies a geocode response.
type Status string

const (
	StatusOK          Status = "OK"
	StatusZeroResults Status = "ZERO_RESULTS"
	StatusAmbiguous   Status = "AMBIGUOUS"
	StatusError       Status = "ERROR"
)

// Candidate is one match returned by the geocoder, in response order.
type Candidate struct {
	Latitude         float64 `json:"lat"`
	Longitude        float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address"`
	LocationType     string  `json:"location_type,omitempty"`
}

// Result is the outcome of one geocode request.
type Result struct {
	Status     Status
	Candidates []Candidate
	// APIStatus is the status string reported by the service, if any.
	APIStatus string
	// Raw is the undecoded response body, kept for diagnostics.
	Raw json.RawMessage
}

// First returns the first candidate, if there is one.
func (r *Result) First() (Candidate, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Client geocodes addresses.
type Client interface {
	// Geocode looks up one address given as ordered components (street
	// lines, city, state/zip). On failure the returned Result has
	// StatusError and err is non-nil.
	Geocode(ctx context.Context, address []string) (*Result, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit caps requests per second. Values <= 0 disable the limiter.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

type geocoder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a Google geocoding Client for apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
