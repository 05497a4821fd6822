// Command validate recomputes the sunset statistics from sunset_times.csv and
// checks them against sunset_summary.json. It verifies counts, the central
// tendency figures, range extremes, percentiles, the hour histogram, and the
// per-offset breakdown.
//
// Usage:
//
//	go run ./cmd/validate -dir output
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/sunset-stats/internal/adapter/output"
	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/stats"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "output", "directory holding sunset_times.csv and sunset_summary.json")
	tolerance := flag.Float64("tolerance", 0.05, "allowed difference in minutes for recomputed figures")
	flag.Parse()

	os.Exit(run(*dir, *tolerance))
}

func run(dir string, tolerance float64) int {
	fmt.Println("=== Sunset Output Validation ===")
	fmt.Println()

	f, err := os.Open(filepath.Join(dir, output.TimesFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open times: %v\n", err)
		return 1
	}
	rows, err := output.ReadTimes(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read times: %v\n", err)
		return 1
	}

	doc, err := output.ReadDocument(filepath.Join(dir, output.SummaryFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read summary: %v\n", err)
		return 1
	}
	if doc.SunsetStatistics == nil {
		fmt.Fprintln(os.Stderr, "FATAL: summary has no sunset_statistics")
		return 1
	}

	results := make([]domain.PointResult, len(rows))
	for i, r := range rows {
		results[i] = r.PointResult()
	}
	report, err := stats.Aggregate(results)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: aggregate times: %v\n", err)
		return 1
	}
	got := report.Summary()
	want := *doc.SunsetStatistics

	phases := []*phase{
		validateCounts(doc, len(rows)),
		validateCentral(got, want, tolerance),
		validateRange(got, want, tolerance),
		validatePercentiles(got, want, tolerance),
		validateHours(got, want),
		validateTimezones(got, want, tolerance),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d times CSV, %d summary locations\n", len(rows), want.SummaryStatistics.TotalLocations)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateCounts(doc output.Document, rows int) *phase {
	p := &phase{name: "Row counts"}
	if n := doc.SunsetStatistics.SummaryStatistics.TotalLocations; n != rows {
		p.errorf("total_locations = %d, times CSV has %d rows", n, rows)
	}
	if doc.DataSummary.TotalProcessed != rows {
		p.errorf("total_processed = %d, times CSV has %d rows", doc.DataSummary.TotalProcessed, rows)
	}
	if doc.DataSummary.TotalProcessed > doc.DataSummary.TotalZips {
		p.errorf("total_processed %d exceeds total_zips %d", doc.DataSummary.TotalProcessed, doc.DataSummary.TotalZips)
	}
	return p
}

func validateCentral(got, want stats.Summary, tol float64) *phase {
	p := &phase{name: "Mean, median, std dev"}
	g, w := got.SummaryStatistics, want.SummaryStatistics
	compareTime(p, "average_sunset", g.AverageSunset, w.AverageSunset, tol)
	compareTime(p, "median_sunset", g.MedianSunset, w.MedianSunset, tol)
	compareFloat(p, "standard_deviation_minutes", g.StandardDeviationMinutes, w.StandardDeviationMinutes, tol)
	return p
}

func validateRange(got, want stats.Summary, tol float64) *phase {
	p := &phase{name: "Range extremes"}
	g, w := got.RangeAnalysis, want.RangeAnalysis
	for _, e := range []struct {
		name string
		g, w stats.SunsetAt
	}{
		{"earliest_sunset", g.EarliestSunset, w.EarliestSunset},
		{"latest_sunset", g.LatestSunset, w.LatestSunset},
	} {
		if e.g.ZipCode != e.w.ZipCode {
			p.errorf("%s zip_code = %s, recomputed %s", e.name, e.w.ZipCode, e.g.ZipCode)
		}
		compareTime(p, e.name, e.g.Time, e.w.Time, tol)
		compareFloat(p, e.name+" timezone_offset", e.g.TimezoneOffset, e.w.TimezoneOffset, 1e-9)
	}
	compareFloat(p, "time_range_minutes", g.TimeRangeMinutes, w.TimeRangeMinutes, tol)
	return p
}

func validatePercentiles(got, want stats.Summary, tol float64) *phase {
	p := &phase{name: "Percentiles"}
	if len(got.PercentileDistribution) != len(want.PercentileDistribution) {
		p.errorf("%d percentiles in summary, recomputed %d", len(want.PercentileDistribution), len(got.PercentileDistribution))
	}
	for label, w := range want.PercentileDistribution {
		g, ok := got.PercentileDistribution[label]
		if !ok {
			p.errorf("%s missing from recomputed distribution", label)
			continue
		}
		compareTime(p, label, g, w, tol)
	}
	return p
}

func validateHours(got, want stats.Summary) *phase {
	p := &phase{name: "Hour distribution"}
	for hour, w := range want.HourDistribution {
		g := got.HourDistribution[hour]
		if g.Count != w.Count {
			p.errorf("hour %s count = %d, recomputed %d", hour, w.Count, g.Count)
		}
	}
	for hour, g := range got.HourDistribution {
		if _, ok := want.HourDistribution[hour]; !ok {
			p.errorf("hour %s (%d points) missing from summary", hour, g.Count)
		}
	}
	return p
}

func validateTimezones(got, want stats.Summary, tol float64) *phase {
	p := &phase{name: "Timezone analysis"}
	for key, w := range want.TimezoneAnalysis {
		g, ok := got.TimezoneAnalysis[key]
		if !ok {
			p.errorf("offset %s missing from recomputed analysis", key)
			continue
		}
		if g.Count != w.Count {
			p.errorf("offset %s count = %d, recomputed %d", key, w.Count, g.Count)
		}
		compareTime(p, "offset "+key+" average", g.Average, w.Average, tol)
		compareFloat(p, "offset "+key+" std_dev_minutes", g.StdDevMinutes, w.StdDevMinutes, tol)
	}
	if len(got.TimezoneAnalysis) != len(want.TimezoneAnalysis) {
		p.errorf("%d offsets in summary, recomputed %d", len(want.TimezoneAnalysis), len(got.TimezoneAnalysis))
	}
	return p
}

// compareTime compares two HH:MM:SS clock readings. The CSV stores times to
// the second, so recomputed values may drift by up to a second plus tol.
func compareTime(p *phase, name, got, want string, tol float64) {
	g, err := domain.ParseMinuteOfDay(got)
	if err != nil {
		p.errorf("%s: recomputed %q: %v", name, got, err)
		return
	}
	w, err := domain.ParseMinuteOfDay(want)
	if err != nil {
		p.errorf("%s: summary %q: %v", name, want, err)
		return
	}
	if math.Abs(g-w) > tol+1.0/60 {
		p.errorf("%s = %s, recomputed %s", name, want, got)
	}
}

func compareFloat(p *phase, name string, got, want, tol float64) {
	if math.Abs(got-want) > tol {
		p.errorf("%s = %v, recomputed %v", name, want, got)
	}
}
