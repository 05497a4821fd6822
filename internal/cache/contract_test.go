package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

var epoch = time.Date(2024, time.June, 21, 12, 0, 0, 0, time.UTC)

func sampleResult(lat, lon int) domain.SunsetResult {
	return domain.SunsetResult{
		Cell:      domain.CellKey{Lat: lat, Lon: lon},
		Coord:     domain.Coordinate{Lat: float64(lat) + 0.5, Lon: float64(lon) + 0.5},
		SunsetUTC: time.Date(2024, time.June, 22, 0, 31, 15, 0, time.UTC),
		UTCOffset: -4 * time.Hour,
		FetchedAt: epoch,
	}
}

// runContract exercises the behaviour every domain.ResultCache backend must
// share.
func runContract(t *testing.T, newCache func(t *testing.T, clock clockwork.Clock) domain.ResultCache) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get returns the result", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		c := newCache(t, clock)
		want := sampleResult(40, -75)

		require.NoError(t, c.Put(ctx, "k1", want, time.Hour))
		got, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("missing key is absent", func(t *testing.T) {
		c := newCache(t, clockwork.NewFakeClockAt(epoch))
		_, ok, err := c.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired entry reads as absent", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		c := newCache(t, clock)
		require.NoError(t, c.Put(ctx, "k1", sampleResult(40, -75), time.Hour))

		clock.Advance(59 * time.Minute)
		_, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok, "still within ttl")

		clock.Advance(time.Minute)
		_, ok, err = c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, ok, "expiry instant is exclusive")
	})

	t.Run("later put overwrites", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		c := newCache(t, clock)
		require.NoError(t, c.Put(ctx, "k1", sampleResult(40, -75), time.Minute))
		clock.Advance(2 * time.Minute)

		fresh := sampleResult(41, -74)
		require.NoError(t, c.Put(ctx, "k1", fresh, time.Hour))
		got, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fresh, got)
	})

	t.Run("concurrent readers and writers", func(t *testing.T) {
		c := newCache(t, clockwork.NewFakeClockAt(epoch))
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("cell-%d", i)
				assert.NoError(t, c.Put(ctx, key, sampleResult(i, -i), time.Hour))
				got, ok, err := c.Get(ctx, key)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, i, got.Cell.Lat)
			}(i)
		}
		wg.Wait()
	})
}
