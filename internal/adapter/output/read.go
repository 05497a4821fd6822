package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// TimeRow is one parsed row of sunset_times.csv.
type TimeRow struct {
	ZipCode     string
	MinuteOfDay float64
	OffsetHours float64
}

// PointResult rebuilds a point result from the row. Only the fields the
// statistics read are populated.
func (r TimeRow) PointResult() domain.PointResult {
	return domain.PointResult{
		ID:          r.ZipCode,
		MinuteOfDay: r.MinuteOfDay,
		UTCOffset:   time.Duration(r.OffsetHours * float64(time.Hour)),
	}
}

// ReadTimes parses a sunset_times.csv stream.
func ReadTimes(in io.Reader) ([]TimeRow, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = len(TimesHeader)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range TimesHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected csv column %d: %q, want %q", i, header[i], col)
		}
	}

	var rows []TimeRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		minute, err := domain.ParseMinuteOfDay(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		offset, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse offset %q: %w", line, rec[2], err)
		}
		rows = append(rows, TimeRow{ZipCode: rec[0], MinuteOfDay: minute, OffsetHours: offset})
	}
}

// ReadDocument loads a sunset_summary.json file.
func ReadDocument(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
