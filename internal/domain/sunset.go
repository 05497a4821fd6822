package domain

import (
	"fmt"
	"math"
	"time"
)

// MinutesPerDay bounds minute-of-day values to [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

// DateLayout is the run date format used by the remote lookup and cache keys.
const DateLayout = "2006-01-02"

// SunsetResult is the sunset of one cell, computed at Coord.
type SunsetResult struct {
	Cell      CellKey       `json:"cell"`
	Coord     Coordinate    `json:"coord"`
	SunsetUTC time.Time     `json:"sunset_utc"`
	UTCOffset time.Duration `json:"utc_offset"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// PointResult is the resolved sunset of one point. Failed results carry a
// reason and are excluded from statistics.
type PointResult struct {
	ID          string        `json:"zip_code"`
	Sunset      time.Time     `json:"sunset"`
	UTCOffset   time.Duration `json:"utc_offset"`
	MinuteOfDay float64       `json:"minute_of_day"`
	Cell        CellKey       `json:"cell"`
	Failed      bool          `json:"failed,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// OffsetHours returns the UTC offset in fractional hours, e.g. -5 or 5.5.
func (r PointResult) OffsetHours() float64 {
	return r.UTCOffset.Hours()
}

// FailedPoint records a point that could not be resolved.
func FailedPoint(p Point, cell CellKey, err error) PointResult {
	return PointResult{ID: p.ID, Cell: cell, Failed: true, Reason: err.Error()}
}

// MinuteOfDay returns minutes since local midnight of t, in t's location.
func MinuteOfDay(t time.Time) float64 {
	h, m, s := t.Clock()
	return float64(h*60+m) + float64(s)/60 + float64(t.Nanosecond())/6e10
}

// FormatMinuteOfDay renders a minute-of-day as "HH:MM:SS", rounded to the
// nearest second and wrapped into [0, 1440).
func FormatMinuteOfDay(m float64) string {
	secs := int(math.Round(m * 60))
	secs %= MinutesPerDay * 60
	if secs < 0 {
		secs += MinutesPerDay * 60
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ParseMinuteOfDay parses "HH:MM:SS" or "HH:MM" into minute-of-day.
func ParseMinuteOfDay(s string) (float64, error) {
	for _, layout := range []string{"15:04:05", "15:04", "3:04:05 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MinuteOfDay(t), nil
		}
	}
	return 0, fmt.Errorf("parse time of day %q", s)
}
