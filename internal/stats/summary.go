package stats

import (
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Summary is the structured summary record written alongside the per-point
// table. Times are "HH:MM:SS" strings; minutes and percentages are numbers.
type Summary struct {
	SummaryStatistics      SummaryStatistics          `json:"summary_statistics"`
	RangeAnalysis          RangeAnalysis              `json:"range_analysis"`
	PercentileDistribution map[string]string          `json:"percentile_distribution"`
	HourDistribution       map[string]HourShare       `json:"hour_distribution"`
	TimezoneAnalysis       map[string]TimezoneSummary `json:"timezone_analysis"`
}

type SummaryStatistics struct {
	AverageSunset            string  `json:"average_sunset"`
	MedianSunset             string  `json:"median_sunset"`
	StandardDeviationMinutes float64 `json:"standard_deviation_minutes"`
	TotalLocations           int     `json:"total_locations"`
}

type RangeAnalysis struct {
	EarliestSunset   SunsetAt `json:"earliest_sunset"`
	LatestSunset     SunsetAt `json:"latest_sunset"`
	TimeRangeMinutes float64  `json:"time_range_minutes"`
}

type SunsetAt struct {
	Time           string  `json:"time"`
	ZipCode        string  `json:"zip_code"`
	TimezoneOffset float64 `json:"timezone_offset"`
}

type HourShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type TimezoneSummary struct {
	Count         int     `json:"count"`
	Average       string  `json:"average"`
	StdDevMinutes float64 `json:"std_dev_minutes"`
}

// Summary renders the report as the output summary record. Empty hours are
// left out of the hour distribution.
func (r *Report) Summary() Summary {
	s := Summary{
		SummaryStatistics: SummaryStatistics{
			AverageSunset:            domain.FormatMinuteOfDay(r.Mean),
			MedianSunset:             domain.FormatMinuteOfDay(r.Median),
			StandardDeviationMinutes: round(r.StdDev, 2),
			TotalLocations:           r.Count,
		},
		RangeAnalysis: RangeAnalysis{
			EarliestSunset:   sunsetAt(r.Earliest),
			LatestSunset:     sunsetAt(r.Latest),
			TimeRangeMinutes: round(r.RangeMinutes, 2),
		},
		PercentileDistribution: make(map[string]string, len(r.Percentiles)),
		HourDistribution:       make(map[string]HourShare),
		TimezoneAnalysis:       make(map[string]TimezoneSummary, len(r.Timezones)),
	}

	for _, p := range r.Percentiles {
		s.PercentileDistribution[PercentileLabel(p.P)] = domain.FormatMinuteOfDay(p.Minute)
	}
	for h, b := range r.Hours {
		if b.Count == 0 {
			continue
		}
		s.HourDistribution[strconv.Itoa(h)] = HourShare{Count: b.Count, Percentage: round(b.Percentage, 1)}
	}
	for _, tz := range r.Timezones {
		s.TimezoneAnalysis[OffsetKey(tz.OffsetHours)] = TimezoneSummary{
			Count:         tz.Count,
			Average:       domain.FormatMinuteOfDay(tz.Mean),
			StdDevMinutes: round(tz.StdDev, 2),
		}
	}
	return s
}

// PercentileLabel names a percentile row, e.g. "10th_percentile"; the 50th
// is labelled "median".
func PercentileLabel(p float64) string {
	if p == 50 {
		return "median"
	}
	return fmt.Sprintf("%gth_percentile", p)
}

// OffsetKey formats a UTC offset in hours as a timezone_analysis key,
// e.g. "-5.0" or "5.5".
func OffsetKey(hours float64) string {
	return strconv.FormatFloat(hours, 'f', 1, 64)
}

func sunsetAt(e Extreme) SunsetAt {
	return SunsetAt{
		Time:           domain.FormatMinuteOfDay(e.Minute),
		ZipCode:        e.ID,
		TimezoneOffset: e.OffsetHours,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
