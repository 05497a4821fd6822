// Package grid partitions points into fixed-size geographic cells so that
// one sunset lookup can serve every point in a cell.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// DefaultSize is the default cell edge length in degrees.
const DefaultSize = 1.0

// KeyFor returns the cell key of a coordinate for the given cell size.
// A coordinate on a cell edge belongs to the cell whose lower edge it is.
func KeyFor(c domain.Coordinate, size float64) domain.CellKey {
	return domain.CellKey{
		Lat: int(math.Floor(c.Lat / size)),
		Lon: int(math.Floor(c.Lon / size)),
	}
}

// Build assigns every point to exactly one cell. The result is sorted by
// cell key and each cell's members by point ID, so it does not depend on the
// order of points.
func Build(points []domain.Point, size float64) ([]domain.Cell, error) {
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("invalid grid size %v", size)
	}

	seen := make(map[string]struct{}, len(points))
	members := make(map[domain.CellKey][]domain.Point)

	for _, p := range points {
		if !p.Coord.Valid() {
			return nil, fmt.Errorf("point %q: invalid coordinate %+v", p.ID, p.Coord)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate point id %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		key := KeyFor(p.Coord, size)
		members[key] = append(members[key], p)
	}

	cells := make([]domain.Cell, 0, len(members))
	for key, pts := range members {
		sort.Slice(pts, func(i, j int) bool { return pts[i].ID < pts[j].ID })
		cells = append(cells, domain.Cell{
			Key:            key,
			Representative: centroid(pts),
			Timezone:       dominantTimezone(pts),
			Members:        pts,
		})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Key.Less(cells[j].Key) })

	return cells, nil
}

// centroid returns the spherical centroid of the points: the normalized sum
// of their unit vectors. pts must already be in a stable order.
func centroid(pts []domain.Point) domain.Coordinate {
	if len(pts) == 1 {
		return pts[0].Coord
	}
	var sum r3.Vector
	for _, p := range pts {
		v := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Coord.Lat, p.Coord.Lon))
		sum = sum.Add(v.Vector)
	}
	if sum.Norm() == 0 {
		return pts[0].Coord
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return domain.Coordinate{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()}
}

// dominantTimezone returns the most common member timezone, breaking ties
// by name.
func dominantTimezone(pts []domain.Point) string {
	counts := make(map[string]int)
	for _, p := range pts {
		counts[p.Timezone]++
	}
	best, bestCount := "", 0
	for tz, n := range counts {
		if n > bestCount || (n == bestCount && tz < best) {
			best, bestCount = tz, n
		}
	}
	return best
}

// Stats summarizes a partition for logging.
type Stats struct {
	Cells      int
	Points     int
	MaxMembers int
}

// Summarize counts cells, points, and the largest cell.
func Summarize(cells []domain.Cell) Stats {
	s := Stats{Cells: len(cells)}
	for _, c := range cells {
		s.Points += len(c.Members)
		if len(c.Members) > s.MaxMembers {
			s.MaxMembers = len(c.Members)
		}
	}
	return s
}
