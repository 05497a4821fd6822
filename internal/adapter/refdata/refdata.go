// Package refdata loads the ZIP code reference table
// (zip_code,latitude,longitude,timezone,state) and implements
// domain.ReferenceData over it.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// Header is the expected column order.
var Header = []string{"zip_code", "latitude", "longitude", "timezone", "state"}

// NonContiguous lists the state codes left out by the contiguous-US filter.
var NonContiguous = map[string]bool{
	"AK": true, "HI": true, "PR": true,
	"GU": true, "VI": true, "AS": true, "MP": true,
}

// Options controls loading.
type Options struct {
	ContiguousOnly bool
}

type row struct {
	point domain.Point
	err   string // set when the row cannot become a point
}

// Table is an immutable in-memory reference table.
type Table struct {
	ids  []string
	rows map[string]row
}

// LoadFile reads a reference table from path.
func LoadFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load reads a reference table. Malformed CSV or numbers fail the load;
// rows with an unknown timezone or out-of-range coordinates are kept and
// reported by Lookup.
func Load(in io.Reader, opts Options) (*Table, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = len(Header)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read reference header: %w", err)
	}
	for i, col := range Header {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return nil, fmt.Errorf("reference column %d is %q, want %q", i, header[i], col)
		}
	}

	t := &Table{rows: make(map[string]row)}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read reference line %d: %w", line, err)
		}

		id := strings.TrimSpace(rec[0])
		state := strings.ToUpper(strings.TrimSpace(rec[4]))
		if opts.ContiguousOnly && NonContiguous[state] {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude %q: %w", line, rec[1], err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude %q: %w", line, rec[2], err)
		}

		p := domain.Point{
			ID:       id,
			Coord:    domain.Coordinate{Lat: lat, Lon: lon},
			Timezone: strings.TrimSpace(rec[3]),
			State:    state,
		}
		entry := row{point: p}
		switch {
		case !p.Coord.Valid():
			entry.err = fmt.Sprintf("coordinate out of range: %v,%v", lat, lon)
		default:
			if _, err := domain.LoadZone(p.Timezone); err != nil {
				entry.err = fmt.Sprintf("unknown timezone %q", p.Timezone)
			}
		}

		if _, dup := t.rows[id]; !dup {
			t.ids = append(t.ids, id)
		}
		t.rows[id] = entry
	}
}

// Lookup implements domain.ReferenceData.
func (t *Table) Lookup(id string) (domain.Point, error) {
	r, ok := t.rows[id]
	if !ok {
		return domain.Point{}, &domain.ReferenceLookupError{ID: id, Reason: "unknown zip code"}
	}
	if r.err != "" {
		return domain.Point{}, &domain.ReferenceLookupError{ID: id, Reason: r.err}
	}
	return r.point, nil
}

// IDs returns every identifier in file order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of identifiers in the table.
func (t *Table) Len() int { return len(t.ids) }
