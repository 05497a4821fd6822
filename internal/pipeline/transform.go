package pipeline

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/sunset-stats/internal/adapter/solar"
	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Corrector shifts a cell's sunset to one of its member points. The
// correction is a model, not an exact solar calculation.
type Corrector interface {
	Correct(date time.Time, p domain.Point, r domain.SunsetResult) time.Time
}

// LongitudeCorrector applies a fixed number of minutes per degree of
// longitude between the point and the coordinate the result was computed at.
// Points west of it set later.
type LongitudeCorrector struct {
	MinutesPerDegree float64
}

// DefaultMinutesPerDegree is one degree of Earth rotation in minutes.
const DefaultMinutesPerDegree = 4.0

func (c LongitudeCorrector) Correct(_ time.Time, p domain.Point, r domain.SunsetResult) time.Time {
	delta := (p.Coord.Lon - r.Coord.Lon) * c.MinutesPerDegree * float64(time.Minute)
	return r.SunsetUTC.Add(-time.Duration(delta))
}

// AstronomicalCorrector shifts the result by the difference between the
// locally computed sunsets at the point and at the result's coordinate.
// Where either has no sunset it falls back to the longitude model.
type AstronomicalCorrector struct {
	Fallback LongitudeCorrector
}

func (c AstronomicalCorrector) Correct(date time.Time, p domain.Point, r domain.SunsetResult) time.Time {
	at, err := solar.Sunset(p.Coord, date)
	if err != nil {
		return c.Fallback.Correct(date, p, r)
	}
	ref, err := solar.Sunset(r.Coord, date)
	if err != nil {
		return c.Fallback.Correct(date, p, r)
	}
	return r.SunsetUTC.Add(at.Sub(ref))
}

// NewCorrector returns the corrector for a model name: "longitude" or
// "astronomical".
func NewCorrector(model string, minutesPerDegree float64) Corrector {
	lon := LongitudeCorrector{MinutesPerDegree: minutesPerDegree}
	if model == "astronomical" {
		return AstronomicalCorrector{Fallback: lon}
	}
	return lon
}

// expandCell produces one PointResult per member of a resolved cell. Each
// point's local time is taken in its own timezone at the corrected instant.
func expandCell(date time.Time, cell domain.Cell, r domain.SunsetResult, corrector Corrector, logger *slog.Logger) []domain.PointResult {
	out := make([]domain.PointResult, 0, len(cell.Members))
	for _, p := range cell.Members {
		instant := corrector.Correct(date, p, r)
		loc, err := domain.LoadZone(p.Timezone)
		if err != nil {
			logger.Warn("point timezone unresolved", "zip_code", p.ID, "timezone", p.Timezone, "error", err)
			out = append(out, domain.FailedPoint(p, cell.Key, err))
			continue
		}
		local := instant.In(loc)
		_, secs := local.Zone()
		out = append(out, domain.PointResult{
			ID:          p.ID,
			Sunset:      local,
			UTCOffset:   time.Duration(secs) * time.Second,
			MinuteOfDay: domain.MinuteOfDay(local),
			Cell:        cell.Key,
		})
	}
	return out
}

func failCell(cell domain.Cell, err error) []domain.PointResult {
	out := make([]domain.PointResult, len(cell.Members))
	for i, p := range cell.Members {
		out[i] = domain.FailedPoint(p, cell.Key, err)
	}
	return out
}
