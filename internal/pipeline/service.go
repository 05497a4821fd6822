package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Catalog is the reference data plus the identifiers to process.
type Catalog interface {
	domain.ReferenceData
	IDs() []string
}

// Sink receives every run that produced a report.
type Sink interface {
	Write(ctx context.Context, run *Run) error
}

// Run is the record of one service run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Dropped    int // identifiers the reference data could not resolve
	Result     *Result
	Summary    *stats.Summary
	Err        error
}

// Status is a point-in-time view of the service.
type Status struct {
	Processing bool   `json:"processing"`
	RunID      string `json:"run_id,omitempty"`
	State      string `json:"state"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	HasResults bool   `json:"has_results"`
	Error      string `json:"error,omitempty"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	RunTimeout time.Duration // 0 means no limit
	Clock      clockwork.Clock
}

// Service owns the run lifecycle: one run at a time, triggered in the
// foreground, in the background, or on a schedule.
type Service struct {
	orch    *Orchestrator
	catalog Catalog
	sinks   []Sink
	opts    ServiceOptions
	logger  *slog.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running   atomic.Bool
	completed atomic.Int64
	total     atomic.Int64

	mu      sync.RWMutex
	current string
	last    *Run // most recent finished run
	lastOK  *Run // most recent run with a report
}

// NewService creates a Service.
func NewService(orch *Orchestrator, catalog Catalog, sinks []Sink, opts ServiceOptions, logger *slog.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Service{
		orch:    orch,
		catalog: catalog,
		sinks:   sinks,
		opts:    opts,
		logger:  logger,
		root:    root,
		cancel:  cancel,
	}
}

// RunOnce runs the pipeline in the calling goroutine.
func (s *Service) RunOnce(ctx context.Context) (*Run, error) {
	id, err := s.begin()
	if err != nil {
		return nil, err
	}
	run := s.execute(ctx, id)
	return run, run.Err
}

// Start launches a run in the background and returns its ID. The run
// outlives the caller's request and stops only on Shutdown or its timeout.
func (s *Service) Start() (string, error) {
	id, err := s.begin()
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.root, id)
	}()
	return id, nil
}

// Shutdown cancels any background run and waits for it to finish or for ctx
// to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) begin() (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	id := uuid.NewString()
	s.completed.Store(0)
	s.total.Store(0)
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return id, nil
}

func (s *Service) execute(ctx context.Context, id string) *Run {
	defer s.running.Store(false)

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	logger := s.logger.With("run_id", id)
	run := &Run{ID: id, StartedAt: s.opts.Clock.Now().UTC()}
	logger.Info("run started")

	points, dropped := ResolvePoints(s.catalog.IDs(), s.catalog, logger)
	run.Dropped = dropped
	s.orch.metrics.Points.WithLabelValues("dropped").Add(float64(dropped))
	s.total.Store(int64(len(points)))

	progress := domain.ProgressFunc(func(completed, total int) {
		s.completed.Store(int64(completed))
		s.total.Store(int64(total))
	})
	run.Result, run.Err = s.orch.Run(ctx, points, progress)
	if run.Result != nil && run.Result.Report != nil {
		summary := run.Result.Report.Summary()
		run.Summary = &summary
		if err := s.publish(ctx, run); err != nil {
			logger.Error("publishing run output failed", "error", err)
			run.Err = err
		}
	}
	run.FinishedAt = s.opts.Clock.Now().UTC()

	s.mu.Lock()
	s.last = run
	if run.Summary != nil {
		s.lastOK = run
	}
	s.mu.Unlock()

	if run.Err != nil {
		logger.Error("run finished with error", "error", run.Err)
	} else {
		logger.Info("run finished", "duration", run.FinishedAt.Sub(run.StartedAt))
	}
	return run
}

func (s *Service) publish(ctx context.Context, run *Run) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("write run output: %w", errors.Join(errs...))
	}
	return nil
}

// Status reports whether a run is active and how the last one ended.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Processing: s.running.Load(),
		RunID:      s.current,
		State:      s.orch.State().String(),
		Completed:  int(s.completed.Load()),
		Total:      int(s.total.Load()),
		HasResults: s.lastOK != nil,
	}
	if s.last != nil && s.last.Err != nil && !st.Processing {
		st.Error = s.last.Err.Error()
	}
	return st
}

// Latest returns the most recent run that produced a report.
func (s *Service) Latest() (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastOK, s.lastOK != nil
}

// CheckReadiness returns nil once a run has produced a report and the result
// cache is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.orch.CheckReadiness(ctx)
}
