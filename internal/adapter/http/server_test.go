package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/sunset-stats/internal/adapter/http"
	"github.com/couchcryptid/sunset-stats/internal/adapter/output"
	"github.com/couchcryptid/sunset-stats/internal/observability"
	"github.com/couchcryptid/sunset-stats/internal/pipeline"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

type mockRuns struct {
	readyErr error
	startID  string
	startErr error
	status   pipeline.Status
	latest   *pipeline.Run
}

func (m *mockRuns) CheckReadiness(context.Context) error { return m.readyErr }
func (m *mockRuns) Start() (string, error)               { return m.startID, m.startErr }
func (m *mockRuns) Status() pipeline.Status              { return m.status }
func (m *mockRuns) Latest() (*pipeline.Run, bool)        { return m.latest, m.latest != nil }

func newTestServer(runs *mockRuns) *httpadapter.Server {
	return httpadapter.NewServer(":0", runs, output.Settings{GridSize: 1, CacheTTL: 24 * time.Hour, Concurrency: 100},
		observability.DiscardLogger())
}

func serve(t *testing.T, srv *httpadapter.Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthzReturns200(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{}), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{readyErr: fmt.Errorf("no run has completed yet")}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no run has completed yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockRuns{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestProcessStartsRun(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{startID: "run-42"}), http.MethodPost, "/api/process")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, "run-42", body["run_id"])
}

func TestProcessConflictWhileRunning(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{startErr: pipeline.ErrRunInProgress}), http.MethodPost, "/api/process")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "busy", body["status"])
}

func TestProcessRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockRuns{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/process", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	runs := &mockRuns{status: pipeline.Status{Processing: true, RunID: "run-1", State: "fetching_misses", Completed: 10, Total: 40}}
	rec, body := serve(t, newTestServer(runs), http.MethodGet, "/api/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["processing"])
	assert.Equal(t, "fetching_misses", body["state"])
	assert.Equal(t, float64(40), body["total"])
	assert.Equal(t, false, body["has_results"])
}

func TestResultsNotFoundBeforeFirstRun(t *testing.T) {
	rec, body := serve(t, newTestServer(&mockRuns{}), http.MethodGet, "/api/results")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestResultsReturnsSummaryDocument(t *testing.T) {
	summary := stats.Summary{SummaryStatistics: stats.SummaryStatistics{AverageSunset: "20:30:00", TotalLocations: 2}}
	run := &pipeline.Run{
		ID:         "run-1",
		FinishedAt: time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
		Summary:    &summary,
		Result: &pipeline.Result{
			Date:        time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
			TotalCells:  1,
			TotalPoints: 2,
		},
	}
	rec := httptest.NewRecorder()
	newTestServer(&mockRuns{latest: run}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc output.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.ProcessingInfo.RunID)
	assert.Equal(t, 2, doc.DataSummary.TotalProcessed)
	assert.Equal(t, "20:30:00", doc.SunsetStatistics.SummaryStatistics.AverageSunset)
}
