// Command genmock writes a deterministic synthetic ZIP code reference table
// (zip_code,latitude,longitude,timezone,state) for local runs and demos. The
// same seed always produces the same file, and the output loads cleanly
// through the refdata adapter.
//
// Usage:
//
//	go run ./cmd/genmock -out data/zip_codes.csv -count 2000 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/sunset-stats/internal/adapter/refdata"
	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/grid"
)

// region is a rough bounding box within one state and zone.
type region struct {
	state    string
	timezone string
	zipBase  int
	latMin   float64
	latMax   float64
	lonMin   float64
	lonMax   float64
}

var regions = []region{
	{"NY", "America/New_York", 10000, 40.5, 45.0, -79.7, -72.0},
	{"PA", "America/New_York", 15000, 39.7, 42.0, -80.5, -75.0},
	{"GA", "America/New_York", 30000, 30.5, 35.0, -85.0, -81.0},
	{"FL", "America/New_York", 32000, 25.5, 30.5, -82.5, -80.0},
	{"MN", "America/Chicago", 55000, 43.5, 49.0, -97.0, -89.5},
	{"IL", "America/Chicago", 60000, 37.0, 42.5, -91.0, -87.5},
	{"TX", "America/Chicago", 75000, 26.0, 36.0, -104.0, -94.0},
	{"CO", "America/Denver", 80000, 37.0, 41.0, -109.0, -102.0},
	{"UT", "America/Denver", 84000, 37.0, 42.0, -114.0, -109.0},
	{"AZ", "America/Phoenix", 85000, 31.5, 37.0, -114.5, -109.0},
	{"CA", "America/Los_Angeles", 90000, 32.5, 42.0, -124.0, -114.5},
	{"WA", "America/Los_Angeles", 98000, 45.5, 49.0, -124.5, -117.0},
}

var nonContiguous = []region{
	{"HI", "Pacific/Honolulu", 96700, 19.0, 22.0, -160.0, -155.0},
	{"AK", "America/Anchorage", 99500, 58.0, 65.0, -155.0, -140.0},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/zip_codes.csv", "output path for the reference CSV")
	count := flag.Int("count", 2000, "number of rows to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	withNonContiguous := flag.Bool("non-contiguous", false, "also generate AK and HI rows")
	flag.Parse()

	if *count <= 0 {
		flag.Usage()
		return fmt.Errorf("-count must be positive")
	}

	pool := regions
	if *withNonContiguous {
		pool = append(append([]region{}, regions...), nonContiguous...)
	}
	rows := generate(pool, *count, *seed)

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := write(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d rows to %s", len(rows), *out)

	printStats(rows)
	return nil
}

type mockRow struct {
	zip      string
	lat, lon float64
	timezone string
	state    string
}

// generate spreads count rows across the regions round-robin. ZIP codes grow
// from each region's base by a small random step and never repeat.
func generate(pool []region, count int, seed uint64) []mockRow {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	next := make([]int, len(pool))
	for i, r := range pool {
		next[i] = r.zipBase
	}
	used := make(map[int]bool, count)

	rows := make([]mockRow, 0, count)
	for i := range count {
		ri := i % len(pool)
		r := pool[ri]

		zip := next[ri] + 1 + rng.IntN(3)
		for used[zip] {
			zip++
		}
		if zip > 99999 {
			break
		}
		used[zip] = true
		next[ri] = zip

		rows = append(rows, mockRow{
			zip:      fmt.Sprintf("%05d", zip),
			lat:      round4(r.latMin + rng.Float64()*(r.latMax-r.latMin)),
			lon:      round4(r.lonMin + rng.Float64()*(r.lonMax-r.lonMin)),
			timezone: r.timezone,
			state:    r.state,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].zip < rows[j].zip })
	return rows
}

func write(w io.Writer, rows []mockRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(refdata.Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.zip,
			strconv.FormatFloat(r.lat, 'f', 4, 64),
			strconv.FormatFloat(r.lon, 'f', 4, 64),
			r.timezone,
			r.state,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

// printStats reports the per-state spread and how many grid cells the rows
// fall into at the default size.
func printStats(rows []mockRow) {
	states := map[string]int{}
	cells := map[string]bool{}
	for _, r := range rows {
		states[r.state]++
		key := grid.KeyFor(domain.Coordinate{Lat: r.lat, Lon: r.lon}, grid.DefaultSize)
		cells[key.String()] = true
	}

	names := make([]string, 0, len(states))
	for s := range states {
		names = append(names, s)
	}
	sort.Strings(names)

	fmt.Printf("\nRows by state:\n")
	for _, s := range names {
		fmt.Printf("  %-4s %d\n", s, states[s])
	}
	fmt.Printf("Distinct %.1f° cells: %d\n", grid.DefaultSize, len(cells))
}
