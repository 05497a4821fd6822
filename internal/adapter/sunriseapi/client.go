// Package sunriseapi implements domain.SunsetLookup against a
// sunrise-sunset.org compatible JSON API.
package sunriseapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/observability"
)

// DefaultBaseURL is the public sunrise-sunset.org endpoint.
const DefaultBaseURL = "https://api.sunrise-sunset.org/json"

// Remote status values.
const (
	statusOK           = "OK"
	statusUnknownError = "UNKNOWN_ERROR"
)

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errCircuitOpen  = errors.New("circuit breaker open")
	errRemoteStatus = errors.New("remote status")
	errBadPayload   = errors.New("malformed response")
)

var validate = validator.New()

// Client implements domain.SunsetLookup. Every request goes through a
// circuit breaker that opens after a run of consecutive transient failures.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	breaker        *gobreaker.CircuitBreaker
	breakerTimeout time.Duration
	clock          clockwork.Clock
	metrics        *observability.Metrics
	logger         *slog.Logger

	mu       sync.Mutex
	openedAt time.Time // last transition to open
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Clock           clockwork.Clock
}

// NewClient creates a sunset API client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	c := &Client{
		httpClient:     &http.Client{Timeout: opts.Timeout},
		baseURL:        opts.BaseURL,
		breakerTimeout: opts.BreakerTimeout,
		clock:          opts.Clock,
		metrics:        metrics,
		logger:         logger,
	}
	c.breaker = c.newBreaker(opts.BreakerFailures)
	return c
}

func (c *Client) newBreaker(failures uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sunrise-sunset",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transient errors say anything about the remote's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.mu.Lock()
				c.openedAt = c.clock.Now()
				c.mu.Unlock()
			}
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// LookupSunset returns the UTC sunset instant at coord on date.
func (c *Client) LookupSunset(ctx context.Context, coord domain.Coordinate, date time.Time) (time.Time, error) {
	params := url.Values{
		"lat":       {strconv.FormatFloat(coord.Lat, 'f', 6, 64)},
		"lng":       {strconv.FormatFloat(coord.Lon, 'f', 6, 64)},
		"date":      {date.Format(domain.DateLayout)},
		"formatted": {"0"},
	}
	u := c.baseURL + "?" + params.Encode()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, u)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			return time.Time{}, &domain.TransientFetchError{
				Err:        fmt.Errorf("%w: %v", errCircuitOpen, err),
				RetryAfter: c.openRemaining(),
				Rejected:   true,
			}
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			// Half-open with its trial request in flight.
			return time.Time{}, &domain.TransientFetchError{
				Err:      fmt.Errorf("%w: %v", errCircuitOpen, err),
				Rejected: true,
			}
		}
		return time.Time{}, err
	}
	sunset, ok := result.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return sunset, nil
}

// openRemaining is how long the breaker stays open before it lets a trial
// request through.
func (c *Client) openRemaining() time.Duration {
	c.mu.Lock()
	opened := c.openedAt
	c.mu.Unlock()
	if opened.IsZero() {
		return c.breakerTimeout
	}
	left := c.breakerTimeout - c.clock.Since(opened)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		return time.Time{}, &domain.TransientFetchError{Err: fmt.Errorf("sunset request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return time.Time{}, &domain.TransientFetchError{
			Err:        errRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case resp.StatusCode >= 500:
		return time.Time{}, &domain.TransientFetchError{
			Err:        errServerError,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return time.Time{}, fmt.Errorf("sunset API error: status %d: %s", resp.StatusCode, body)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode: %v", errBadPayload, err)
	}
	return apiResp.sunset()
}

// sunset validates the decoded payload and extracts the sunset instant.
func (r response) sunset() (time.Time, error) {
	if err := validate.Struct(r); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	switch r.Status {
	case statusOK:
	case statusUnknownError:
		return time.Time{}, &domain.TransientFetchError{Err: fmt.Errorf("%w %s", errRemoteStatus, r.Status)}
	default:
		return time.Time{}, fmt.Errorf("%w %s", errRemoteStatus, r.Status)
	}
	// Error responses carry "results": "" so the body is only decoded once
	// the status says it holds times.
	var res results
	if err := json.Unmarshal(r.Results, &res); err != nil {
		return time.Time{}, fmt.Errorf("%w: results: %v", errBadPayload, err)
	}
	if err := validate.Struct(res); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	t, err := time.Parse(time.RFC3339, res.Sunset)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: sunset %q: %v", errBadPayload, res.Sunset, err)
	}
	return t.UTC(), nil
}

// parseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form. Unparsable or past values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// API response types.

type response struct {
	Results json.RawMessage `json:"results"`
	Status  string          `json:"status" validate:"required"`
}

type results struct {
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset" validate:"required"`
}
