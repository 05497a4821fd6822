package domain

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

var zones sync.Map // name -> *time.Location

// LoadZone resolves an IANA timezone name, memoizing successful loads.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	zones.Store(name, loc)
	return loc, nil
}

// UTCOffset returns the offset of the named zone at instant t.
func UTCOffset(name string, t time.Time) (time.Duration, error) {
	loc, err := LoadZone(name)
	if err != nil {
		return 0, err
	}
	_, secs := t.In(loc).Zone()
	return time.Duration(secs) * time.Second, nil
}
