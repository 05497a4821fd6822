package sunriseapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var (
	runDate = time.Date(2024, time.June, 21, 0, 0, 0, 0, time.UTC)
	philly  = domain.Coordinate{Lat: 40.0, Lon: -75.0}
)

func testClient(baseURL string) *Client {
	return NewClient(Options{BaseURL: baseURL, Timeout: 5 * time.Second, BreakerFailures: 3},
		observability.NewMetricsForTesting(), observability.DiscardLogger())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set(headerContentType, contentTypeJSON)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func okResponse(sunset string) map[string]any {
	return map[string]any{
		"status":  statusOK,
		"results": results{Sunrise: "2024-06-21T09:32:41+00:00", Sunset: sunset},
	}
}

func TestClient_LookupSunset_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "40.000000", q.Get("lat"))
		assert.Equal(t, "-75.000000", q.Get("lng"))
		assert.Equal(t, "2024-06-21", q.Get("date"))
		assert.Equal(t, "0", q.Get("formatted"))
		writeJSON(t, w, okResponse("2024-06-22T00:33:12+00:00"))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).LookupSunset(context.Background(), philly, runDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 22, 0, 33, 12, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestClient_LookupSunset_Classification(t *testing.T) {
	cases := []struct {
		name      string
		handler   http.HandlerFunc
		transient bool
		status    int
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			transient: true,
			status:    http.StatusTooManyRequests,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			transient: true,
			status:    http.StatusBadGateway,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", http.StatusBadRequest)
			},
		},
		{
			name: "unknown error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":"","status":"UNKNOWN_ERROR"}`))
			},
			transient: true,
		},
		{
			name: "invalid request status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":"","status":"INVALID_REQUEST"}`))
			},
		},
		{
			name: "missing status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":{"sunset":"2024-06-22T00:33:12+00:00"}}`))
			},
		},
		{
			name: "missing sunset",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":{"sunrise":"2024-06-21T09:32:41+00:00"},"status":"OK"}`))
			},
		},
		{
			name: "unparsable sunset",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":{"sunset":"7:33:12 PM"},"status":"OK"}`))
			},
		},
		{
			name: "results not an object",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results":"","status":"OK"}`))
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := testClient(srv.URL).LookupSunset(context.Background(), philly, runDate)
			require.Error(t, err)
			assert.Equal(t, tc.transient, domain.IsTransient(err), "err: %v", err)

			var te *domain.TransientFetchError
			if errors.As(err, &te) {
				assert.Equal(t, tc.status, te.StatusCode)
			}
		})
	}
}

func TestClient_RetryAfterHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).LookupSunset(context.Background(), philly, runDate)
	var te *domain.TransientFetchError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 7*time.Second, te.RetryAfter)
}

func TestClient_BreakerOpensOnTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.LookupSunset(context.Background(), philly, runDate)
		require.Error(t, err)
	}

	_, err := c.LookupSunset(context.Background(), philly, runDate)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCircuitOpen)
	assert.True(t, domain.IsTransient(err), "open breaker is retryable later")
	assert.Equal(t, int32(3), calls.Load(), "open breaker should not reach the server")
	assert.True(t, domain.IsRejected(err))
}

func TestClient_OpenBreakerReportsTimeLeft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := NewClient(Options{
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  30 * time.Second,
		Clock:           clock,
	}, observability.NewMetricsForTesting(), observability.DiscardLogger())

	for i := 0; i < 2; i++ {
		_, err := c.LookupSunset(context.Background(), philly, runDate)
		require.Error(t, err)
		assert.False(t, domain.IsRejected(err), "calls that reached the server are not rejections")
	}

	_, err := c.LookupSunset(context.Background(), philly, runDate)
	var te *domain.TransientFetchError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Rejected)
	assert.Equal(t, 30*time.Second, te.RetryAfter)

	clock.Advance(12 * time.Second)
	_, err = c.LookupSunset(context.Background(), philly, runDate)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 18*time.Second, te.RetryAfter)
}

func TestClient_PermanentErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 6; i++ {
		_, err := c.LookupSunset(context.Background(), philly, runDate)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errCircuitOpen)
	}
	assert.Equal(t, int32(6), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).LookupSunset(ctx, philly, runDate)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, time.June, 21, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}
