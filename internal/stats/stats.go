// Package stats folds per-point sunset results into distribution statistics
// over local minute-of-day.
package stats

import (
	"math"
	"sort"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Report is the aggregate view over all successful point results.
type Report struct {
	Count    int
	Excluded int // failed points left out of every aggregate

	Mean   float64
	Median float64
	StdDev float64

	Percentiles []Percentile

	Earliest     Extreme
	Latest       Extreme
	RangeMinutes float64

	Hours     [24]HourBucket
	Timezones []TimezoneBucket // ascending by offset
}

// Percentile is one row of the percentile table.
type Percentile struct {
	P      float64
	Minute float64
}

// Extreme identifies the point at one end of the distribution.
type Extreme struct {
	ID          string
	Minute      float64
	OffsetHours float64
}

// HourBucket counts points whose local sunset falls in one clock hour.
type HourBucket struct {
	Count      int
	Percentage float64
}

// TimezoneBucket summarizes points sharing one UTC offset.
type TimezoneBucket struct {
	OffsetHours float64
	Count       int
	Mean        float64
	StdDev      float64
}

// Aggregate computes the report over the successful results. Failed results
// are counted in Excluded and otherwise ignored. With no successful results
// it returns domain.ErrEmptyDistribution and no report.
func Aggregate(results []domain.PointResult) (*Report, error) {
	ok := make([]domain.PointResult, 0, len(results))
	for _, r := range results {
		if !r.Failed {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return nil, domain.ErrEmptyDistribution
	}

	// Sorting by ID first makes ties in the extremes resolve to the smallest ID.
	sort.Slice(ok, func(i, j int) bool { return ok[i].ID < ok[j].ID })

	minutes := make([]float64, len(ok))
	for i, r := range ok {
		minutes[i] = r.MinuteOfDay
	}

	rep := &Report{
		Count:    len(ok),
		Excluded: len(results) - len(ok),
	}
	rep.Mean = mean(minutes)
	rep.StdDev = stdDev(minutes, rep.Mean)

	pv := percentiles(minutes, append([]float64{50}, DefaultPercentiles...))
	rep.Median = pv[0]
	for i, p := range DefaultPercentiles {
		rep.Percentiles = append(rep.Percentiles, Percentile{P: p, Minute: pv[i+1]})
	}

	lo, hi := 0, 0
	for i, m := range minutes {
		if m < minutes[lo] {
			lo = i
		}
		if m > minutes[hi] {
			hi = i
		}
	}
	rep.Earliest = extreme(ok[lo])
	rep.Latest = extreme(ok[hi])
	rep.RangeMinutes = minutes[hi] - minutes[lo]

	for _, m := range minutes {
		rep.Hours[hourOf(m)].Count++
	}
	for h := range rep.Hours {
		rep.Hours[h].Percentage = float64(rep.Hours[h].Count) / float64(rep.Count) * 100
	}

	rep.Timezones = timezoneBuckets(ok)
	return rep, nil
}

func extreme(r domain.PointResult) Extreme {
	return Extreme{ID: r.ID, Minute: r.MinuteOfDay, OffsetHours: r.OffsetHours()}
}

func hourOf(minute float64) int {
	h := int(math.Floor(minute / 60))
	return max(0, min(23, h))
}

func timezoneBuckets(results []domain.PointResult) []TimezoneBucket {
	groups := make(map[float64][]float64)
	for _, r := range results {
		off := r.OffsetHours()
		groups[off] = append(groups[off], r.MinuteOfDay)
	}

	buckets := make([]TimezoneBucket, 0, len(groups))
	for off, ms := range groups {
		mu := mean(ms)
		buckets = append(buckets, TimezoneBucket{
			OffsetHours: off,
			Count:       len(ms),
			Mean:        mu,
			StdDev:      stdDev(ms, mu),
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].OffsetHours < buckets[j].OffsetHours })
	return buckets
}
