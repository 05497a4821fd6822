// Package pipeline drives a sunset statistics run: grid the points, split
// cells into cache hits and misses, fetch the misses, expand every cell to
// its points, and aggregate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/fetcher"
	"github.com/couchcryptid/sunset-stats/internal/grid"
	"github.com/couchcryptid/sunset-stats/internal/observability"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

// CellFetcher resolves cache-miss cells.
type CellFetcher interface {
	Fetch(ctx context.Context, date time.Time, tasks []fetcher.Task, onDone func(fetcher.Outcome)) []fetcher.Outcome
}

// Options configures an Orchestrator.
type Options struct {
	GridSize       float64
	MaxFailureRate float64   // abort when failed/total cells exceeds this
	Date           time.Time // run date; zero means today (UTC) at run start
	Clock          clockwork.Clock
}

// Result is everything a completed run produced. Report is nil when no point
// resolved successfully.
type Result struct {
	Date   time.Time
	Points []domain.PointResult // sorted by ID
	Report *stats.Report

	TotalCells   int
	CacheHits    int
	FetchedCells int
	FailedCells  int
	TotalPoints  int
	FailedPoints int

	Duration time.Duration
}

// Orchestrator runs the pipeline. Runs on one Orchestrator must not overlap.
type Orchestrator struct {
	cache     domain.ResultCache
	fetcher   CellFetcher
	corrector Corrector
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	state     atomic.Int32
	ready     atomic.Bool
}

// NewOrchestrator creates an Orchestrator. A nil corrector uses the default
// longitude model.
func NewOrchestrator(cache domain.ResultCache, f CellFetcher, corrector Corrector, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.GridSize <= 0 {
		opts.GridSize = grid.DefaultSize
	}
	if opts.MaxFailureRate <= 0 {
		opts.MaxFailureRate = 0.5
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if corrector == nil {
		corrector = LongitudeCorrector{MinutesPerDegree: DefaultMinutesPerDegree}
	}
	return &Orchestrator{
		cache:     cache,
		fetcher:   f,
		corrector: corrector,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// State returns the state of the current or most recent run.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CheckReadiness returns nil once a run has completed and the result cache,
// when it can be pinged, answers.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if !o.ready.Load() {
		return errors.New("no run has completed yet")
	}
	if p, ok := o.cache.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("result cache: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.metrics.RunState.Set(float64(s))
	o.logger.Debug("run state", "state", s.String())
}

// Run processes points to completion. It returns a *domain.RunAbortedError
// when the cell failure rate exceeds the threshold or ctx ends first. When
// every point failed without tripping the threshold it returns the Result
// together with an error wrapping domain.ErrEmptyDistribution.
func (o *Orchestrator) Run(ctx context.Context, points []domain.Point, observer domain.ProgressObserver) (*Result, error) {
	start := o.opts.Clock.Now()
	o.setState(StateInitialized)
	o.metrics.RunActive.Set(1)
	defer o.metrics.RunActive.Set(0)

	if observer == nil {
		observer = domain.ProgressFunc(func(int, int) {})
	}

	date := o.opts.Date
	if date.IsZero() {
		date = start.UTC()
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dateKey := date.Format(domain.DateLayout)

	o.setState(StateGridding)
	cells, err := grid.Build(points, o.opts.GridSize)
	if err != nil {
		o.setState(StateFailed)
		o.metrics.RunsTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("build grid: %w", err)
	}
	gs := grid.Summarize(cells)
	o.logger.Info("grid built",
		"points", gs.Points, "cells", gs.Cells, "max_members", gs.MaxMembers,
		"grid_size", o.opts.GridSize, "date", dateKey)

	res := &Result{Date: date, TotalCells: len(cells), TotalPoints: len(points)}
	if err := ctx.Err(); err != nil {
		return nil, o.abort(res, "cancelled", err)
	}

	o.setState(StateFetchingMisses)
	resolved := make(map[domain.CellKey]domain.SunsetResult, len(cells))
	failed := make(map[domain.CellKey]error)
	tasks := make([]fetcher.Task, 0, len(cells))
	completed := 0

	for _, cell := range cells {
		key := domain.CacheKey(o.opts.GridSize, cell.Key, dateKey)
		cached, ok, err := o.cache.Get(ctx, key)
		switch {
		case err != nil:
			o.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
			o.metrics.CacheLookups.WithLabelValues("error").Inc()
		case ok:
			o.metrics.CacheLookups.WithLabelValues("hit").Inc()
		default:
			o.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		if ok && err == nil {
			resolved[cell.Key] = cached
			completed += len(cell.Members)
			continue
		}
		tasks = append(tasks, fetcher.Task{Key: key, Cell: cell})
	}
	res.CacheHits = len(resolved)
	o.metrics.Cells.WithLabelValues("cache").Add(float64(res.CacheHits))
	o.logger.Info("cache partitioned", "hits", res.CacheHits, "misses", len(tasks))
	observer.OnProgress(completed, len(points))

	outcomes := o.fetcher.Fetch(ctx, date, tasks, func(out fetcher.Outcome) {
		completed += len(out.Cell.Members)
		observer.OnProgress(completed, len(points))
	})
	outOfTime := false
	for _, out := range outcomes {
		if out.Err != nil {
			failed[out.Cell.Key] = out.Err
			outOfTime = outOfTime || errors.Is(out.Err, fetcher.ErrGateDeadline)
			continue
		}
		resolved[out.Cell.Key] = out.Result
	}
	res.FetchedCells = len(tasks) - len(failed)
	res.FailedCells = len(failed)
	o.metrics.Cells.WithLabelValues("fetched").Add(float64(res.FetchedCells))
	o.metrics.Cells.WithLabelValues("failed").Add(float64(res.FailedCells))
	for _, cell := range cells {
		if _, bad := failed[cell.Key]; bad {
			res.FailedPoints += len(cell.Members)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, o.abort(res, "cancelled", err)
	}
	if outOfTime {
		return nil, o.abort(res, "cancelled", context.DeadlineExceeded)
	}
	if res.TotalCells > 0 && float64(res.FailedCells)/float64(res.TotalCells) > o.opts.MaxFailureRate {
		return nil, o.abort(res, fmt.Sprintf("cell failure rate above %.2f", o.opts.MaxFailureRate), nil)
	}

	o.setState(StateExpanding)
	res.Points = make([]domain.PointResult, 0, len(points))
	for _, cell := range cells {
		if err, bad := failed[cell.Key]; bad {
			res.Points = append(res.Points, failCell(cell, err)...)
			continue
		}
		res.Points = append(res.Points, expandCell(date, cell, resolved[cell.Key], o.corrector, o.logger)...)
	}
	sort.Slice(res.Points, func(i, j int) bool { return res.Points[i].ID < res.Points[j].ID })

	res.FailedPoints = 0
	for _, p := range res.Points {
		if p.Failed {
			res.FailedPoints++
		}
	}
	o.metrics.Points.WithLabelValues("succeeded").Add(float64(len(res.Points) - res.FailedPoints))
	o.metrics.Points.WithLabelValues("failed").Add(float64(res.FailedPoints))

	o.setState(StateAggregating)
	report, err := stats.Aggregate(res.Points)
	res.Duration = o.opts.Clock.Since(start)
	o.metrics.RunDuration.Observe(res.Duration.Seconds())
	o.setState(StateCompleted)

	if err != nil {
		o.metrics.RunsTotal.WithLabelValues("empty").Inc()
		o.logger.Warn("run completed with no usable points",
			"points", res.TotalPoints, "failed_points", res.FailedPoints, "failed_cells", res.FailedCells)
		return res, fmt.Errorf("aggregate: %w", err)
	}

	res.Report = report
	o.ready.Store(true)
	o.metrics.RunsTotal.WithLabelValues("completed").Inc()
	o.logger.Info("run completed",
		"points", res.TotalPoints,
		"failed_points", res.FailedPoints,
		"cells", res.TotalCells,
		"cache_hits", res.CacheHits,
		"fetched", res.FetchedCells,
		"failed_cells", res.FailedCells,
		"duration", res.Duration,
	)
	return res, nil
}

func (o *Orchestrator) abort(res *Result, reason string, cause error) error {
	o.setState(StateFailed)
	o.metrics.RunsTotal.WithLabelValues("aborted").Inc()
	err := &domain.RunAbortedError{
		Reason:       reason,
		TotalCells:   res.TotalCells,
		FailedCells:  res.FailedCells,
		TotalPoints:  res.TotalPoints,
		FailedPoints: res.FailedPoints,
		Err:          cause,
	}
	o.logger.Error("run aborted", "error", err)
	return err
}
