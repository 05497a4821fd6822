// Package output writes run results as sunset_times.csv and
// sunset_summary.json.
package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/pipeline"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

// File names written into the output directory.
const (
	TimesFile   = "sunset_times.csv"
	SummaryFile = "sunset_summary.json"
)

// TimesHeader is the header row of the per-point table.
var TimesHeader = []string{"zip_code", "sunset_time", "timezone_offset"}

// Document is the content of sunset_summary.json.
type Document struct {
	DataSummary      DataSummary    `json:"data_summary"`
	SunsetStatistics *stats.Summary `json:"sunset_statistics"`
	ProcessingInfo   ProcessingInfo `json:"processing_info"`
}

type DataSummary struct {
	TotalProcessed       int     `json:"total_processed"`
	TotalZips            int     `json:"total_zips"`
	SuccessRate          float64 `json:"success_rate"` // percent of total_zips
	UniqueGridsProcessed int     `json:"unique_grids_processed"`
	FailedPoints         int     `json:"failed_points"`
	DroppedZips          int     `json:"dropped_zips"`
}

type ProcessingInfo struct {
	RunID            string  `json:"run_id"`
	Date             string  `json:"date"`
	GridSizeDegrees  float64 `json:"grid_size_degrees"`
	CacheExpiryHours float64 `json:"cache_expiry_hours"`
	Concurrency      int     `json:"concurrency"`
	CacheHits        int     `json:"cache_hits"`
	FetchedCells     int     `json:"fetched_cells"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Timestamp        string  `json:"timestamp"`
}

// Settings are the run parameters echoed into processing_info.
type Settings struct {
	GridSize    float64
	CacheTTL    time.Duration
	Concurrency int
}

// NewDocument assembles the summary document for a run with a report.
func NewDocument(run *pipeline.Run, s Settings) Document {
	res := run.Result
	total := res.TotalPoints + run.Dropped
	processed := res.TotalPoints - res.FailedPoints

	var rate float64
	if total > 0 {
		rate = math.Round(float64(processed)/float64(total)*10000) / 100
	}
	return Document{
		DataSummary: DataSummary{
			TotalProcessed:       processed,
			TotalZips:            total,
			SuccessRate:          rate,
			UniqueGridsProcessed: res.TotalCells,
			FailedPoints:         res.FailedPoints,
			DroppedZips:          run.Dropped,
		},
		SunsetStatistics: run.Summary,
		ProcessingInfo: ProcessingInfo{
			RunID:            run.ID,
			Date:             res.Date.Format(domain.DateLayout),
			GridSizeDegrees:  s.GridSize,
			CacheExpiryHours: s.CacheTTL.Hours(),
			Concurrency:      s.Concurrency,
			CacheHits:        res.CacheHits,
			FetchedCells:     res.FetchedCells,
			DurationSeconds:  res.Duration.Seconds(),
			Timestamp:        run.FinishedAt.UTC().Format(time.RFC3339),
		},
	}
}

// Files writes both output files into a directory. It implements
// pipeline.Sink.
type Files struct {
	dir      string
	settings Settings
	logger   *slog.Logger
}

// NewFiles creates a file sink rooted at dir.
func NewFiles(dir string, settings Settings, logger *slog.Logger) *Files {
	return &Files{dir: dir, settings: settings, logger: logger}
}

// Settings returns the run parameters echoed into each document.
func (f *Files) Settings() Settings { return f.settings }

func (f *Files) Write(_ context.Context, run *pipeline.Run) error {
	if run.Result == nil || run.Summary == nil {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(f.dir, TimesFile), func(file *os.File) error {
		return WriteTimes(file, run.Result.Points)
	}); err != nil {
		return err
	}

	doc := NewDocument(run, f.settings)
	if err := writeAtomic(filepath.Join(f.dir, SummaryFile), func(file *os.File) error {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "    ")
		return enc.Encode(doc)
	}); err != nil {
		return err
	}

	f.logger.Info("results written", "dir", f.dir, "points", doc.DataSummary.TotalProcessed)
	return nil
}

// WriteTimes writes the successful point results as CSV rows.
func WriteTimes(out io.Writer, points []domain.PointResult) error {
	w := csv.NewWriter(out)
	if err := w.Write(TimesHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range points {
		if p.Failed {
			continue
		}
		row := []string{p.ID, domain.FormatMinuteOfDay(p.MinuteOfDay), stats.OffsetKey(p.OffsetHours())}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", p.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

// writeAtomic writes through a temp file and renames it into place so
// readers never see a partial file.
func writeAtomic(path string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
