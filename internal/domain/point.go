package domain

import (
	"fmt"
	"math"
)

// Coordinate is a WGS-84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Point is one input location. Immutable once loaded.
type Point struct {
	ID       string     `json:"zip_code"`
	Coord    Coordinate `json:"coord"`
	Timezone string     `json:"timezone"`
	State    string     `json:"state,omitempty"`
}

// CellKey identifies a grid cell by its floor-divided latitude and longitude
// indices.
type CellKey struct {
	Lat int `json:"lat"`
	Lon int `json:"lon"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%d:%d", k.Lat, k.Lon)
}

// Less orders keys by latitude index, then longitude index.
func (k CellKey) Less(o CellKey) bool {
	if k.Lat != o.Lat {
		return k.Lat < o.Lat
	}
	return k.Lon < o.Lon
}

// Cell groups the points that share one representative sunset lookup.
// Members are sorted by point ID.
type Cell struct {
	Key            CellKey
	Representative Coordinate
	Timezone       string
	Members        []Point
}

// CacheKey builds the result cache key for a cell on a given run date. The
// grid size is part of the key because cells of different sizes with the same
// indices cover different ground.
func CacheKey(size float64, key CellKey, date string) string {
	return fmt.Sprintf("sunset:grid:%g:%d:%d:%s", size, key.Lat, key.Lon, date)
}
