// Package vivc talks to the external grape catalogue: a cached HTTP client,
// HTML parsers for search results and passport pages, and the tool-calling
// agent that resolves catalogue identifiers for varieties.
package vivc

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/p-gag/vineyard-cli/internal/cache"
	"github.com/p-gag/vineyard-cli/internal/model"
	"github.com/p-gag/vineyard-cli/internal/resilience"
)

// errorPagePrefix marks cached bodies that hold an error message instead of
// HTML, so a failed fetch is not retried on every run.
const errorPagePrefix = "ERROR: "

const defaultBaseURL = "https://www.vivc.de"

// Client fetches catalogue pages through a persistent URL-keyed cache with a
// global inter-request delay.
type Client struct {
	baseURL string
	http    *http.Client
	store   *cache.Store[model.PageRecord]
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	mu    sync.Mutex
	pages map[string]model.PageRecord
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the catalogue base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithMinDelay sets the inter-request delay for uncached fetches.
func WithMinDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewClient opens the page cache at cachePath, coalescing duplicate records
// into one line per URL before seeding the index.
func NewClient(cachePath string, opts ...ClientOption) (*Client, error) {
	store := cache.NewStore[model.PageRecord](cachePath)
	pages, err := store.Rewrite()
	if err != nil {
		return nil, eris.Wrap(err, "vivc: load page cache")
	}

	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		store:   store,
		pages:   pages,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retry:   resilience.CatalogueRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("vivc", "fetch")
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SearchURL builds the cultivar-name search URL for a term. Wildcards (%)
// pass through percent-encoded.
func (c *Client) SearchURL(term string) string {
	return c.baseURL + "/index.php?r=passport%2Fexplorer&PassportSearch%5Bcultivarname%5D=" + url.QueryEscape(term)
}

// PassportURL builds the passport-view URL for a catalogue identifier.
func (c *Client) PassportURL(catalogueID string) string {
	return c.baseURL + "/index.php?r=passport%2Fview&id=" + url.QueryEscape(catalogueID)
}

// IsErrorPage reports whether a cached body is an error marker.
func IsErrorPage(content string) bool {
	return strings.HasPrefix(content, errorPagePrefix)
}

// Get returns the body for a URL, fetching and caching it on a miss. Fetch
// failures are cached as marker bodies and returned as errors.
func (c *Client) Get(ctx context.Context, pageURL string) (string, error) {
	c.mu.Lock()
	rec, ok := c.pages[pageURL]
	c.mu.Unlock()
	if ok {
		if IsErrorPage(rec.Content) {
			return "", eris.Errorf("vivc: cached failure for %s: %s", pageURL, strings.TrimPrefix(rec.Content, errorPagePrefix))
		}
		return rec.Content, nil
	}

	// The lock is not held across the fetch; a duplicate fetch of the same
	// URL just overwrites with the same content.
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		c.remember(model.PageRecord{URL: pageURL, Content: errorPagePrefix + err.Error()})
		return "", err
	}

	if err := c.remember(model.PageRecord{URL: pageURL, Content: body}); err != nil {
		return "", eris.Wrapf(err, "vivc: cache page %s", pageURL)
	}
	return body, nil
}

func (c *Client) remember(rec model.PageRecord) error {
	if err := c.store.Append(rec); err != nil {
		zap.L().Warn("failed to write page cache", zap.String("url", rec.URL), zap.Error(err))
		return err
	}
	c.mu.Lock()
	c.pages[rec.URL] = rec
	c.mu.Unlock()
	return nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", eris.Wrapf(err, "vivc: build request %s", pageURL)
		}
		req.Header.Set("User-Agent", "vineyard-cli/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("vivc: status %d for %s", resp.StatusCode, pageURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return "", resilience.NewTransientError(err, resp.StatusCode)
			}
			return "", err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", resilience.NewTransientError(err, 0)
		}
		return string(body), nil
	})
}

// CachedPages returns the number of pages in the cache index.
func (c *Client) CachedPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Search fetches and parses the hit table for one search term.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]SearchHit, error) {
	body, err := c.Get(ctx, c.SearchURL(term))
	if err != nil {
		return nil, err
	}
	hits, err := ParseSearchResults(body, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "vivc: parse search %q", term)
	}
	return hits, nil
}

// Passport fetches and parses the passport page for a catalogue identifier.
func (c *Client) Passport(ctx context.Context, catalogueID string) (*model.Passport, error) {
	body, err := c.Get(ctx, c.PassportURL(catalogueID))
	if err != nil {
		return nil, err
	}
	passport, err := ParsePassport(body)
	if err != nil {
		return nil, eris.Wrapf(err, "vivc: parse passport %s", catalogueID)
	}
	passport.CatalogueID = catalogueID
	return passport, nil
}
