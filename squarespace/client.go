// Package squarespace reads orders and transactions from the Squarespace
// Commerce API.
package squarespace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syc/clubsync/ratelimit"
)

const (
	DefaultBaseURL = "https://api.squarespace.com"

	OrdersEndpoint       = "/1.0/commerce/orders"
	TransactionsEndpoint = "/1.0/commerce/transactions"

	// Item keys of the two list envelopes.
	OrdersKey       = "result"
	TransactionsKey = "documents"
)

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("squarespace API error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

func (e *APIError) RetryAfter() time.Duration { return e.retryAfter }

// Config holds Squarespace client settings
type Config struct {
	APIKey     string
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *ratelimit.RateLimiter
}

// Client is a read-only Squarespace Commerce client. It keeps no state
// between calls.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewClient creates a new Squarespace client
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Squarespace API key")
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = "clubsync"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewRateLimiter(nil)
	}
	return c, nil
}

// YearWindow returns the modification window of one season. The upper
// bound stops short of New Year's Eve so renewals for the next season
// opened on the 31st are not counted twice.
func YearWindow(year int) url.Values {
	v := url.Values{}
	v.Set("modifiedAfter", fmt.Sprintf("%d-01-01T00:00:00Z", year))
	v.Set("modifiedBefore", fmt.Sprintf("%d-12-30T00:00:00Z", year))
	return v
}

// Orders fetches every order modified during year.
func (c *Client) Orders(ctx context.Context, year int) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, OrdersEndpoint, YearWindow(year), OrdersKey)
}

// Transactions fetches every transaction modified during year.
func (c *Client) Transactions(ctx context.Context, year int) ([]json.RawMessage, error) {
	return c.FetchAll(ctx, TransactionsEndpoint, YearWindow(year), TransactionsKey)
}

// FetchAll collects every item of every page.
func (c *Client) FetchAll(ctx context.Context, endpoint string, params url.Values, itemKey string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	pages := 0
	for items, err := range c.Pages(ctx, endpoint, params, itemKey) {
		if err != nil {
			return nil, err
		}
		pages++
		all = append(all, items...)
	}
	slog.Info("Squarespace fetch complete", "endpoint", endpoint, "pages", pages, "items", len(all))
	return all, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	var body []byte
	err := c.limiter.ExecuteWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{
				StatusCode: resp.StatusCode,
				URL:        fullURL,
				Body:       string(data),
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		body = data
		return nil
	})
	return body, err
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
