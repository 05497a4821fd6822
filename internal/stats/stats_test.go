package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

func result(id string, minute float64, offsetHours float64) domain.PointResult {
	return domain.PointResult{
		ID:          id,
		MinuteOfDay: minute,
		UTCOffset:   time.Duration(offsetHours * float64(time.Hour)),
	}
}

func TestAggregate_Empty(t *testing.T) {
	rep, err := Aggregate(nil)
	require.ErrorIs(t, err, domain.ErrEmptyDistribution)
	assert.Nil(t, rep)

	failed := []domain.PointResult{{ID: "1", Failed: true}, {ID: "2", Failed: true}}
	rep, err = Aggregate(failed)
	require.ErrorIs(t, err, domain.ErrEmptyDistribution)
	assert.Nil(t, rep)
}

func TestAggregate_SmallSet(t *testing.T) {
	results := []domain.PointResult{
		result("10001", 1230, -4), // 20:30
		result("60601", 1215, -5), // 20:15
		result("60602", 1225, -5), // 20:25
		result("94105", 1230, -7), // 20:30
		{ID: "99999", Failed: true},
	}

	rep, err := Aggregate(results)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Count)
	assert.Equal(t, 1, rep.Excluded)
	assert.InDelta(t, 1225, rep.Mean, 1e-9)
	assert.InDelta(t, 1227.5, rep.Median, 1e-9)
	assert.InDelta(t, math.Sqrt((25+100+0+25)/4.0), rep.StdDev, 1e-9)

	assert.Equal(t, Extreme{ID: "60601", Minute: 1215, OffsetHours: -5}, rep.Earliest)
	assert.Equal(t, "10001", rep.Latest.ID, "ties go to the smallest id")
	assert.InDelta(t, 15, rep.RangeMinutes, 1e-9)

	assert.Equal(t, 4, rep.Hours[20].Count)
	assert.InDelta(t, 100, rep.Hours[20].Percentage, 1e-9)

	require.Len(t, rep.Timezones, 3)
	assert.Equal(t, -7.0, rep.Timezones[0].OffsetHours)
	assert.Equal(t, -5.0, rep.Timezones[1].OffsetHours)
	assert.Equal(t, 2, rep.Timezones[1].Count)
	assert.InDelta(t, 1220, rep.Timezones[1].Mean, 1e-9)
	assert.InDelta(t, 5, rep.Timezones[1].StdDev, 1e-9)
	assert.Equal(t, 0.0, rep.Timezones[2].StdDev, "single member bucket")
}

func TestAggregate_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	offsets := []float64{-4, -5, -6, -7}
	results := make([]domain.PointResult, 1000)
	for i := range results {
		results[i] = result(fmt.Sprintf("%05d", i), 1140+rng.Float64()*120, offsets[rng.Intn(len(offsets))])
	}

	rep, err := Aggregate(results)
	require.NoError(t, err)

	raw := make([]float64, len(results))
	var sum float64
	for i, r := range results {
		raw[i] = r.MinuteOfDay
		sum += r.MinuteOfDay
	}
	sort.Float64s(raw)

	assert.InDelta(t, sum/float64(len(raw)), rep.Mean, 1e-9)
	assert.InDelta(t, (raw[499]+raw[500])/2, rep.Median, 1e-9)
	var ss float64
	for _, v := range raw {
		ss += (v - rep.Mean) * (v - rep.Mean)
	}
	assert.InDelta(t, math.Sqrt(ss/float64(len(raw))), rep.StdDev, 1e-9)
	assert.Equal(t, raw[0], rep.Earliest.Minute)
	assert.Equal(t, raw[len(raw)-1], rep.Latest.Minute)

	var hourTotal, tzTotal int
	for _, h := range rep.Hours {
		hourTotal += h.Count
	}
	for _, tz := range rep.Timezones {
		tzTotal += tz.Count
	}
	assert.Equal(t, len(results), hourTotal)
	assert.Equal(t, len(results), tzTotal)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	results := make([]domain.PointResult, 200)
	for i := range results {
		results[i] = result(fmt.Sprintf("%05d", i), float64(1150+rng.Intn(60)), -5)
	}

	want, err := Aggregate(results)
	require.NoError(t, err)

	shuffled := append([]domain.PointResult(nil), results...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got, err := Aggregate(shuffled)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("report depends on input order (-want +got):\n%s", diff)
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	results := []domain.PointResult{result("b", 1200, -5), result("a", 1100, -5)}
	_, err := Aggregate(results)
	require.NoError(t, err)
	assert.Equal(t, "b", results[0].ID)
}

func TestPercentiles(t *testing.T) {
	values := []float64{15, 20, 35, 40, 50}
	got := percentiles(values, []float64{0, 10, 25, 50, 75, 90, 100})

	// Same values numpy.percentile gives with its default interpolation.
	want := []float64{15, 17, 20, 35, 40, 46, 50}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "p index %d", i)
	}
	assert.Equal(t, []float64{15, 20, 35, 40, 50}, values, "input left unsorted")

	assert.Equal(t, []float64{0, 0}, percentiles(nil, []float64{10, 90}))
	assert.Equal(t, []float64{7}, percentiles([]float64{7}, []float64{90}))
}

func TestAggregate_PopulationStdDev(t *testing.T) {
	rep, err := Aggregate([]domain.PointResult{
		result("a", 1200, -5),
		result("b", 1202, -5),
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, rep.StdDev, 1e-9)
	require.Len(t, rep.Timezones, 1)
	assert.InDelta(t, 1.0, rep.Timezones[0].StdDev, 1e-9)
	assert.Equal(t, 1.0, rep.Summary().SummaryStatistics.StandardDeviationMinutes)
}

func TestStdDev_Population(t *testing.T) {
	assert.Equal(t, 0.0, stdDev(nil, 0))
	assert.Equal(t, 0.0, stdDev([]float64{1210}, 1210))
	assert.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 5), 1e-9)
}

func TestHourOf(t *testing.T) {
	assert.Equal(t, 0, hourOf(0))
	assert.Equal(t, 19, hourOf(1199.99))
	assert.Equal(t, 20, hourOf(1200))
	assert.Equal(t, 23, hourOf(1439.9))
	assert.Equal(t, 23, hourOf(1440))
}

func TestSummary_Shape(t *testing.T) {
	rep, err := Aggregate([]domain.PointResult{
		result("10001", 1230.5, -4),
		result("60601", 1215, -5),
		result("60602", 1225, -5),
		result("94105", 1290, -7),
	})
	require.NoError(t, err)

	s := rep.Summary()
	assert.Equal(t, "20:40:08", s.SummaryStatistics.AverageSunset) // 1240.125 rounds up
	assert.Equal(t, "20:27:45", s.SummaryStatistics.MedianSunset)
	assert.Equal(t, 4, s.SummaryStatistics.TotalLocations)

	assert.Equal(t, SunsetAt{Time: "20:15:00", ZipCode: "60601", TimezoneOffset: -5}, s.RangeAnalysis.EarliestSunset)
	assert.Equal(t, SunsetAt{Time: "21:30:00", ZipCode: "94105", TimezoneOffset: -7}, s.RangeAnalysis.LatestSunset)
	assert.Equal(t, 75.0, s.RangeAnalysis.TimeRangeMinutes)

	assert.Equal(t, map[string]HourShare{
		"20": {Count: 3, Percentage: 75},
		"21": {Count: 1, Percentage: 25},
	}, s.HourDistribution)

	require.Contains(t, s.TimezoneAnalysis, "-5.0")
	assert.Equal(t, TimezoneSummary{Count: 2, Average: "20:20:00", StdDevMinutes: 5}, s.TimezoneAnalysis["-5.0"])
	assert.Contains(t, s.TimezoneAnalysis, "-4.0")
	assert.Contains(t, s.TimezoneAnalysis, "-7.0")

	assert.Len(t, s.PercentileDistribution, 5)
	assert.Equal(t, s.SummaryStatistics.MedianSunset, s.PercentileDistribution["median"])
	assert.Contains(t, s.PercentileDistribution, "10th_percentile")
	assert.Contains(t, s.PercentileDistribution, "90th_percentile")
}

func TestSummary_JSONKeys(t *testing.T) {
	rep, err := Aggregate([]domain.PointResult{result("10001", 1230, -5)})
	require.NoError(t, err)

	b, err := json.Marshal(rep.Summary())
	require.NoError(t, err)

	var generic map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))

	for _, key := range []string{"summary_statistics", "range_analysis", "hour_distribution", "timezone_analysis", "percentile_distribution"} {
		assert.Contains(t, generic, key)
	}
	ss := generic["summary_statistics"]
	for _, key := range []string{"average_sunset", "median_sunset", "standard_deviation_minutes", "total_locations"} {
		assert.Contains(t, ss, key)
	}
	ra := generic["range_analysis"]
	for _, key := range []string{"earliest_sunset", "latest_sunset", "time_range_minutes"} {
		assert.Contains(t, ra, key)
	}
}

func TestOffsetKey(t *testing.T) {
	assert.Equal(t, "-5.0", OffsetKey(-5))
	assert.Equal(t, "5.5", OffsetKey(5.5))
	assert.Equal(t, "0.0", OffsetKey(0))
}

func TestPercentileLabel(t *testing.T) {
	assert.Equal(t, "10th_percentile", PercentileLabel(10))
	assert.Equal(t, "median", PercentileLabel(50))
	assert.Equal(t, "90th_percentile", PercentileLabel(90))
}
