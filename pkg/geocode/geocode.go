// Package geocode resolves permit addresses to coordinates. A free
// OSM-style geocoder is tried first with the full address, then the Google
// Geocoding API when a key is configured, then a city-level fallback through
// the free geocoder again. Every tier shares a process-wide rate limiter per
// endpoint so worker threads cannot exceed the usage policies.
package geocode

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Method records which strategy produced the coordinates.
type Method string

const (
	MethodFullAddress  Method = "full_address"
	MethodCityFallback Method = "city_fallback"
)

// Request is one address to geocode.
type Request struct {
	Address    string
	City       string
	State      string
	Country    string
	PostalCode string
}

// Result is a successful geocode. An unmatched address yields a nil Result,
// not an error.
type Result struct {
	Latitude  float64
	Longitude float64
	Method    Method
	Source    string
}

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, req Request) (*Result, error)
	Available() bool
}

// Client cascades through providers and memoizes results within a run.
type Client struct {
	free       Provider
	commercial Provider

	mu   sync.Mutex
	memo map[string]*Result
}

// Option configures the Client.
type Option func(*Client)

// WithCommercialProvider sets the commercial fallback tier.
func WithCommercialProvider(p Provider) Option {
	return func(c *Client) { c.commercial = p }
}

// NewClient creates a cascade over the given free provider.
func NewClient(free Provider, opts ...Option) *Client {
	c := &Client{
		free: free,
		memo: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// civicRangePattern matches a civic number given as a range ("220 ET 239",
// "12 AND 14", "5 & 7"); only the first number geocodes.
var civicRangePattern = regexp.MustCompile(`(?i)^(\d+[a-z]?)\s+(?:et|and|&)\s+\d+[a-z]?\b`)

// CleanStreetNumber reduces a ranged civic number to its first number.
func CleanStreetNumber(address string) string {
	address = strings.TrimSpace(address)
	if m := civicRangePattern.FindStringSubmatch(address); m != nil {
		return m[1] + strings.TrimPrefix(address, m[0])
	}
	return address
}

// Geocode resolves one address through the cascade. A nil Result with a nil
// error means every tier missed; the caller records a null marker so the
// address is not retried on later runs.
func (c *Client) Geocode(ctx context.Context, req Request) (*Result, error) {
	req.Address = CleanStreetNumber(req.Address)

	key := memoKey(req)
	c.mu.Lock()
	if cached, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result := c.cascade(ctx, req)

	c.mu.Lock()
	c.memo[key] = result
	c.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, nil
}

func (c *Client) cascade(ctx context.Context, req Request) *Result {
	// Tier 1: free geocoder, full address.
	if r := c.try(ctx, c.free, req); r != nil {
		r.Method = MethodFullAddress
		return r
	}

	// Tier 2: commercial geocoder, full address.
	if c.commercial != nil && c.commercial.Available() {
		if r := c.try(ctx, c.commercial, req); r != nil {
			r.Method = MethodFullAddress
			return r
		}
	}

	// Tier 3: free geocoder, city only.
	if req.City != "" {
		cityReq := Request{City: req.City, State: req.State, Country: req.Country}
		if r := c.try(ctx, c.free, cityReq); r != nil {
			r.Method = MethodCityFallback
			return r
		}
	}

	return nil
}

func (c *Client) try(ctx context.Context, p Provider, req Request) *Result {
	if !p.Available() {
		return nil
	}
	result, err := p.Geocode(ctx, req)
	if err != nil {
		zap.L().Debug("geocode: provider miss",
			zap.String("provider", p.Name()),
			zap.String("city", req.City),
			zap.Error(err),
		)
		return nil
	}
	return result
}

func memoKey(req Request) string {
	return strings.ToLower(strings.Join([]string{
		req.Address, req.City, req.State, req.Country, req.PostalCode,
	}, "|"))
}
