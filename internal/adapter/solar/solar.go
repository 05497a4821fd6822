// Package solar computes sunsets locally with the NOAA approximation from
// keep94/sunrise. It serves as an offline domain.SunsetLookup and as the
// reference for the astronomical correction model.
package solar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keep94/sunrise"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// ErrNoSunset is returned on polar day or night.
var ErrNoSunset = errors.New("sun does not set on this date")

// Sunset returns the UTC sunset instant at coord on the solar day of date.
func Sunset(coord domain.Coordinate, date time.Time) (time.Time, error) {
	if !coord.Valid() {
		return time.Time{}, fmt.Errorf("invalid coordinate %+v", coord)
	}
	// Anchor on local solar noon so the sunrise and sunset found by Around
	// belong to the same solar day.
	day := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	noon := day.Add(-time.Duration(coord.Lon * 4 * float64(time.Minute)))

	var s sunrise.Sunrise
	s.Around(coord.Lat, coord.Lon, noon)

	rise, set := s.Sunrise(), s.Sunset()
	if set.IsZero() || !set.After(rise) || set.Sub(rise) >= 24*time.Hour {
		return time.Time{}, ErrNoSunset
	}
	return set.UTC(), nil
}

// Lookup implements domain.SunsetLookup without network access.
type Lookup struct{}

func (Lookup) LookupSunset(ctx context.Context, coord domain.Coordinate, date time.Time) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	t, err := Sunset(coord, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("solar sunset at %.4f,%.4f: %w", coord.Lat, coord.Lon, err)
	}
	return t, nil
}
