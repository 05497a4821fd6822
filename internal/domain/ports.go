package domain

import (
	"context"
	"time"
)

// SunsetLookup returns the sunset instant (UTC) at a coordinate on a date.
// Implementations classify retryable failures as *TransientFetchError; any
// other error is treated as permanent.
type SunsetLookup interface {
	LookupSunset(ctx context.Context, coord Coordinate, date time.Time) (time.Time, error)
}

// ResultCache stores sunset results by key with a time-to-live. Entries past
// their expiry read as absent.
type ResultCache interface {
	Get(ctx context.Context, key string) (SunsetResult, bool, error)
	Put(ctx context.Context, key string, result SunsetResult, ttl time.Duration) error
}

// ReferenceData resolves a location identifier to a point. Unknown
// identifiers return a *ReferenceLookupError.
type ReferenceData interface {
	Lookup(id string) (Point, error)
}

// ProgressObserver receives progress notifications during a run. It has no
// effect on scheduling.
type ProgressObserver interface {
	OnProgress(completed, total int)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(completed, total int)

func (f ProgressFunc) OnProgress(completed, total int) { f(completed, total) }
