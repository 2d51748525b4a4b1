package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/resilience"
)

// googleResponse is the JSON body returned by the Geocoding API.
type googleResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []googleResult `json:"results"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// BuildAddress joins address components into the value of the address
// query parameter. Whitespace inside a component becomes '+' and every
// component, empty ones included, is joined with ','.
func BuildAddress(address []string) string {
	parts := make([]string, len(address))
	for i, field := range address {
		words := strings.Fields(field)
		for j, w := range words {
			words[j] = url.QueryEscape(w)
		}
		parts[i] = strings.Join(words, "+")
	}
	return strings.Join(parts, ",")
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, address []string) (*Result, error) {
	if g.apiKey == "" {
		return &Result{Status: StatusError}, eris.New("geocode: api key not configured")
	}

	query := BuildAddress(address)
	if strings.Trim(query, ",") == "" {
		return &Result{Status: StatusError}, eris.New("geocode: empty address")
	}

	reqURL := g.baseURL + "?address=" + query + "&key=" + url.QueryEscape(g.apiKey)
	zap.L().Debug("geocode query", zap.String("url", redactKey(reqURL)))

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("google", "geocode", zap.String("address", query))
	}

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Result, error) {
		return g.do(ctx, reqURL)
	})
	if err != nil {
		if res == nil {
			res = &Result{Status: StatusError}
		}
		res.Status = StatusError
		return res, err
	}
	return res, nil
}

// do issues a single request and classifies the response.
func (g *geocoder) do(ctx context.Context, reqURL string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geocode: google returned status %d", resp.StatusCode)
		res := &Result{Status: StatusError, Raw: rawJSON(body)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return res, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return res, statusErr
	}

	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return &Result{Status: StatusError}, eris.Wrap(err, "geocode: parse response")
	}

	res := &Result{APIStatus: gr.Status, Raw: json.RawMessage(body)}
	switch gr.Status {
	case "OK", "ZERO_RESULTS":
		res.Candidates = make([]Candidate, 0, len(gr.Results))
		for _, r := range gr.Results {
			res.Candidates = append(res.Candidates, Candidate{
				Latitude:         r.Geometry.Location.Lat,
				Longitude:        r.Geometry.Location.Lng,
				FormattedAddress: r.FormattedAddress,
				LocationType:     r.Geometry.LocationType,
			})
		}
		res.Status = classify(len(res.Candidates))
		return res, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		res.Status = StatusError
		return res, resilience.NewTransientError(apiError(gr), 0)
	default:
		res.Status = StatusError
		return res, apiError(gr)
	}
}

func classify(n int) Status {
	switch {
	case n == 0:
		return StatusZeroResults
	case n == 1:
		return StatusOK
	default:
		return StatusAmbiguous
	}
}

func apiError(gr googleResponse) error {
	if gr.ErrorMessage != "" {
		return eris.Errorf("geocode: google status %s: %s", gr.Status, gr.ErrorMessage)
	}
	return eris.Errorf("geocode: google status %s", gr.Status)
}

// rawJSON keeps body only when it is valid JSON so it can be embedded in
// structured logs.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}

func redactKey(u string) string {
	i := strings.Index(u, "key=")
	if i < 0 {
		return u
	}
	end := strings.IndexByte(u[i:], '&')
	if end < 0 {
		return u[:i] + "key=REDACTED"
	}
	return u[:i] + "key=REDACTED" + u[i+end:]
}
