// Package acuity fetches appointments and orders from Acuity Scheduling.
package acuity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/syc/clubsync/ratelimit"
	"github.com/syc/clubsync/report"
)

const DefaultBaseURL = "https://acuityscheduling.com/api/v1"

// ErrNotFound is returned when Acuity has no record with the requested id.
var ErrNotFound = errors.New("acuity record not found")

// APIError is returned for non-200 responses other than 404.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("acuity API error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Config holds Acuity credentials
type Config struct {
	UserID     string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *ratelimit.RateLimiter
}

// Client calls the Acuity v1 API with basic auth.
type Client struct {
	userID     string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewClient creates a new Acuity client
func NewClient(cfg Config) (*Client, error) {
	if cfg.UserID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("missing Acuity user id or API key")
	}
	c := &Client{
		userID:     cfg.UserID,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewRateLimiter(nil)
	}
	return c, nil
}

// Appointment fetches one appointment, including its intake forms.
func (c *Client) Appointment(ctx context.Context, id string) (*report.RawAppointment, error) {
	var a report.RawAppointment
	if err := c.getJSON(ctx, "/appointments/"+url.PathEscape(id), &a); err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &a, nil
}

// Order fetches one scheduler order.
func (c *Client) Order(ctx context.Context, id string) (*report.RawSchedulingOrder, error) {
	var o report.RawSchedulingOrder
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(id), &o); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &o, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.limiter.ExecuteWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(c.userID, c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
