// Package fetcher resolves cache-miss cells against the remote sunset lookup
// under a concurrency bound, a global rate gate, and a bounded retry policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/observability"
)

// ErrGateDeadline is reported when the next rate-gate slot falls after the
// run's deadline, so the cell could not be attempted in time.
var ErrGateDeadline = fmt.Errorf("rate gate slot falls after the run deadline: %w", context.DeadlineExceeded)

// Options configures a Fetcher. Zero values fall back to DefaultOptions.
type Options struct {
	Concurrency    int
	MinInterval    time.Duration // 0 disables the rate gate
	MaxAttempts    int           // total attempts, including the first
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	TTL            time.Duration
	Clock          clockwork.Clock
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:    100,
		MinInterval:    100 * time.Millisecond,
		MaxAttempts:    3,
		BackoffInitial: 200 * time.Millisecond,
		BackoffMax:     5 * time.Second,
		TTL:            24 * time.Hour,
		Clock:          clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MinInterval < 0 {
		o.MinInterval = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = d.BackoffInitial
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = o.BackoffInitial
	}
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Task is one cell to resolve, with the cache key its result is stored under.
type Task struct {
	Key  string
	Cell domain.Cell
}

// Outcome is the terminal result of a Task. Err is nil on success and a
// *domain.PermanentFetchError otherwise.
type Outcome struct {
	Task
	Result   domain.SunsetResult
	Err      error
	Attempts int
}

// Fetcher owns the rate gate shared by every worker. It is safe to reuse
// across runs; the gate carries over so back-to-back runs stay under the
// remote's limit.
type Fetcher struct {
	lookup  domain.SunsetLookup
	cache   domain.ResultCache
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Fetcher.
func New(lookup domain.SunsetLookup, cache domain.ResultCache, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Fetcher{
		lookup:  lookup,
		cache:   cache,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: metrics,
	}
}

// Options returns the effective options.
func (f *Fetcher) Options() Options { return f.opts }

type indexed struct {
	i int
	Outcome
}

// Fetch resolves every task and returns one Outcome per task, in task order.
// onDone, if non-nil, is called once per task from a single goroutine as
// outcomes arrive. On cancellation no new tasks are dispatched and every task
// without an outcome is reported failed with the context error.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time, tasks []Task, onDone func(Outcome)) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	workers := min(f.opts.Concurrency, len(tasks))
	jobs := make(chan int)
	results := make(chan indexed, workers)

	go func() {
		defer close(jobs)
		for i := range tasks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- indexed{i: i, Outcome: f.resolve(ctx, date, tasks[i])}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([]bool, len(tasks))
	emit := func(i int, o Outcome) {
		outcomes[i] = o
		done[i] = true
		if onDone != nil {
			onDone(o)
		}
	}
	for r := range results {
		emit(r.i, r.Outcome)
	}

	cause := ctx.Err()
	if cause == nil {
		cause = errors.New("fetch ended without an outcome")
	}
	for i, ok := range done {
		if !ok {
			emit(i, Outcome{Task: tasks[i], Err: &domain.PermanentFetchError{Err: cause}})
		}
	}
	return outcomes
}

// cellState is the per-cell retry state.
type cellState int

const (
	statePending cellState = iota
	stateAttempting
	stateRetrying
	stateSucceeded
	statePermanentlyFailed
)

func (s cellState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateAttempting:
		return "attempting"
	case stateRetrying:
		return "retrying"
	case stateSucceeded:
		return "succeeded"
	case statePermanentlyFailed:
		return "permanently_failed"
	default:
		return "unknown"
	}
}

// resolve drives one cell through
// Pending -> Attempting -> {Succeeded | Retrying -> Attempting | PermanentlyFailed}.
// It runs entirely inside the calling worker, so retries never take an
// extra concurrency slot.
func (f *Fetcher) resolve(ctx context.Context, date time.Time, task Task) Outcome {
	var (
		st       = statePending
		attempts int
		sunset   time.Time
		lastErr  error
		wait     time.Duration
		backoff  = f.opts.BackoffInitial
	)
	coord := task.Cell.Representative

	for {
		switch st {
		case statePending, stateRetrying:
			if st == stateRetrying && !sleepWithContext(ctx, f.opts.Clock, wait) {
				lastErr = ctx.Err()
				st = statePermanentlyFailed
				continue
			}
			if err := f.limiter.Wait(ctx); err != nil {
				lastErr = gateError(ctx, err)
				st = statePermanentlyFailed
				continue
			}
			st = stateAttempting

		case stateAttempting:
			attempts++
			var err error
			sunset, err = f.attempt(ctx, coord, date)
			switch {
			case err == nil:
				st = stateSucceeded
			case ctx.Err() != nil:
				lastErr = ctx.Err()
				st = statePermanentlyFailed
			case domain.IsRejected(err):
				// Never reached the remote: wait out the breaker without
				// spending an attempt. Each reopening admits one real call,
				// so attempts still climb while the remote keeps failing.
				attempts--
				lastErr = err
				wait = retryDelay(err, backoff)
				st = stateRetrying
				f.logger.Debug("sunset lookup rejected locally, waiting",
					"cell", task.Cell.Key.String(), "wait", wait, "error", err)
			case domain.IsTransient(err) && attempts < f.opts.MaxAttempts:
				lastErr = err
				wait = retryDelay(err, backoff)
				backoff = nextBackoff(backoff, f.opts.BackoffMax)
				st = stateRetrying
				f.logger.Debug("transient sunset lookup failure, retrying",
					"cell", task.Cell.Key.String(), "attempt", attempts, "wait", wait, "error", err)
			default:
				lastErr = err
				st = statePermanentlyFailed
			}

		case stateSucceeded:
			result := f.buildResult(task.Cell, sunset)
			if err := f.cache.Put(ctx, task.Key, result, f.opts.TTL); err != nil {
				f.logger.Warn("cache put failed", "key", task.Key, "error", err)
			}
			return Outcome{Task: task, Result: result, Attempts: attempts}

		case statePermanentlyFailed:
			f.logger.Warn("sunset lookup failed",
				"cell", task.Cell.Key.String(), "attempts", attempts, "error", lastErr)
			return Outcome{Task: task, Err: &domain.PermanentFetchError{Err: lastErr, Attempts: attempts}, Attempts: attempts}
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, coord domain.Coordinate, date time.Time) (time.Time, error) {
	f.metrics.FetchInFlight.Inc()
	defer f.metrics.FetchInFlight.Dec()

	sunset, err := f.lookup.LookupSunset(ctx, coord, date)
	switch {
	case err == nil:
		f.metrics.FetchAttempts.WithLabelValues("success").Inc()
	case domain.IsRejected(err):
		f.metrics.FetchAttempts.WithLabelValues("rejected").Inc()
	case domain.IsTransient(err):
		f.metrics.FetchAttempts.WithLabelValues("transient").Inc()
	default:
		f.metrics.FetchAttempts.WithLabelValues("permanent").Inc()
	}
	return sunset, err
}

func (f *Fetcher) buildResult(cell domain.Cell, sunset time.Time) domain.SunsetResult {
	sunset = sunset.UTC()
	offset, err := domain.UTCOffset(cell.Timezone, sunset)
	if err != nil {
		f.logger.Warn("cell timezone unresolved, storing zero offset", "cell", cell.Key.String(), "error", err)
	}
	return domain.SunsetResult{
		Cell:      cell.Key,
		Coord:     cell.Representative,
		SunsetUTC: sunset,
		UTCOffset: offset,
		FetchedAt: f.opts.Clock.Now().UTC(),
	}
}

// gateError maps a rate gate failure onto the context. The limiter refuses
// up front when the reservation would land past the deadline, before the
// context itself has expired.
func gateError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w (%v)", ErrGateDeadline, err)
	}
	return err
}

// retryDelay honours a remote Retry-After when it is longer than the
// current backoff.
func retryDelay(err error, backoff time.Duration) time.Duration {
	var te *domain.TransientFetchError
	if errors.As(err, &te) && te.RetryAfter > backoff {
		return te.RetryAfter
	}
	return backoff
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
