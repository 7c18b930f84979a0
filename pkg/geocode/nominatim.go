package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// NominatimProvider geocodes through a Nominatim-compatible endpoint. The
// shared limiter enforces the endpoint's minimum inter-request delay across
// all worker threads.
type NominatimProvider struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NominatimOption configures the provider.
type NominatimOption func(*NominatimProvider)

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(p *NominatimProvider) { p.http = hc }
}

// WithNominatimMinDelay sets the minimum delay between requests.
func WithNominatimMinDelay(d time.Duration) NominatimOption {
	return func(p *NominatimProvider) { p.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewNominatim creates a provider for the given base URL. The default delay
// honors the public endpoint's 1 req/s policy with headroom.
func NewNominatim(baseURL, userAgent string, opts ...NominatimOption) *NominatimProvider {
	p := &NominatimProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(1100*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Available implements Provider.
func (p *NominatimProvider) Available() bool { return true }

// nominatimPlace is one entry of the search response. Coordinates arrive as
// strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements Provider using the structured search parameters.
func (p *NominatimProvider) Geocode(ctx context.Context, req Request) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if req.Address != "" {
		params.Set("street", req.Address)
	}
	if req.City != "" {
		params.Set("city", req.City)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	if req.PostalCode != "" {
		params.Set("postalcode", req.PostalCode)
	}
	if req.Country != "" {
		params.Set("countrycodes", strings.ToLower(req.Country))
	}

	reqURL := p.baseURL + "/search?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return nil, eris.New("geocode: nominatim no match")
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &Result{Latitude: lat, Longitude: lon, Source: p.Name()}, nil
}
