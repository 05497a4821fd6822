package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/sunset-stats/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sunset-stats/internal/adapter/kafka"
	"github.com/couchcryptid/sunset-stats/internal/adapter/output"
	"github.com/couchcryptid/sunset-stats/internal/adapter/refdata"
	"github.com/couchcryptid/sunset-stats/internal/adapter/solar"
	"github.com/couchcryptid/sunset-stats/internal/adapter/sunriseapi"
	"github.com/couchcryptid/sunset-stats/internal/cache"
	"github.com/couchcryptid/sunset-stats/internal/config"
	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/fetcher"
	"github.com/couchcryptid/sunset-stats/internal/observability"
	"github.com/couchcryptid/sunset-stats/internal/pipeline"
	"github.com/couchcryptid/sunset-stats/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := refdata.LoadFile(cfg.PointsFile, refdata.Options{ContiguousOnly: cfg.ContiguousOnly})
	if err != nil {
		logger.Error("failed to load reference data", "path", cfg.PointsFile, "error", err)
		return 1
	}
	logger.Info("reference data loaded", "path", cfg.PointsFile, "points", table.Len())

	resultCache, closeCache, err := openCache(ctx, cfg, clock)
	if err != nil {
		logger.Error("failed to open cache", "backend", cfg.CacheBackend, "error", err)
		return 1
	}
	defer func() {
		if err := closeCache.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()
	logger.Info("cache ready", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)

	lookup := newLookup(cfg, metrics, logger)

	f := fetcher.New(lookup, resultCache, fetcher.Options{
		Concurrency:    cfg.FetchConcurrency,
		MinInterval:    cfg.FetchMinInterval,
		MaxAttempts:    cfg.FetchMaxAttempts,
		BackoffInitial: cfg.FetchBackoffInitial,
		BackoffMax:     cfg.FetchBackoffMax,
		TTL:            cfg.CacheTTL,
		Clock:          clock,
	}, logger, metrics)

	orch := pipeline.NewOrchestrator(resultCache, f,
		pipeline.NewCorrector(cfg.CorrectionModel, cfg.CorrectionMinutesPerDegree),
		pipeline.Options{
			GridSize:       cfg.GridSize,
			MaxFailureRate: cfg.MaxFailureRate,
			Date:           cfg.Date,
			Clock:          clock,
		}, logger, metrics)

	fopts := f.Options()
	settings := output.Settings{GridSize: cfg.GridSize, CacheTTL: fopts.TTL, Concurrency: fopts.Concurrency}
	sinks := []pipeline.Sink{output.NewFiles(cfg.OutputDir, settings, logger)}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc := pipeline.NewService(orch, table, sinks, pipeline.ServiceOptions{
		RunTimeout: cfg.RunTimeout,
		Clock:      clock,
	}, logger)

	var code int
	if cfg.RunMode == config.ModeOnce {
		code = runOnce(ctx, svc, logger)
	} else {
		serve(ctx, cfg, svc, settings, logger)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return code
}

func runOnce(ctx context.Context, svc *pipeline.Service, logger *slog.Logger) int {
	run, err := svc.RunOnce(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	s := run.Summary.SummaryStatistics
	logger.Info("run complete",
		"run_id", run.ID,
		"locations", s.TotalLocations,
		"average_sunset", s.AverageSunset,
		"median_sunset", s.MedianSunset,
		"std_dev_minutes", s.StandardDeviationMinutes,
	)
	return 0
}

func serve(ctx context.Context, cfg *config.Config, svc *pipeline.Service, settings output.Settings, logger *slog.Logger) {
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, settings, logger)
	sched := scheduler.New(svc, cfg.RunInterval, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	if err := sched.Start(); err != nil {
		logger.Error("scheduler error", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("run shutdown error", "error", err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openCache(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (domain.ResultCache, io.Closer, error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		c, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, clock)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.CacheSQLite:
		c, err := cache.OpenSQLite(ctx, cfg.SQLitePath, clock)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.CacheMemory:
		return cache.NewMemory(cfg.CacheSize, clock), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func newLookup(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.SunsetLookup {
	if cfg.LookupMode == config.LookupSolar {
		logger.Info("sunset lookup: offline solar calculation")
		return solar.Lookup{}
	}
	logger.Info("sunset lookup: remote api", "url", cfg.SunsetAPIURL)
	return sunriseapi.NewClient(sunriseapi.Options{
		BaseURL:         cfg.SunsetAPIURL,
		Timeout:         cfg.SunsetAPITimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}, metrics, logger)
}
