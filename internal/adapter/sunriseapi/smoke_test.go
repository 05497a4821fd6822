//go:build smoke

package sunriseapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sunset-stats/internal/domain"
	"github.com/couchcryptid/sunset-stats/internal/observability"
)

// These tests hit the public sunrise-sunset.org API.
// Run with: go test -tags=smoke ./internal/adapter/sunriseapi/ -v -count=1

func smokeClient() *Client {
	return NewClient(Options{Timeout: 10 * time.Second}, observability.NewMetricsForTesting(), observability.DiscardLogger())
}

func TestSmoke_LookupSunset(t *testing.T) {
	c := smokeClient()

	// Philadelphia on the summer solstice sets around 20:33 EDT (00:33 UTC next day).
	got, err := c.LookupSunset(context.Background(), domain.Coordinate{Lat: 39.95, Lon: -75.16}, runDate)
	require.NoError(t, err)

	want := time.Date(2024, time.June, 22, 0, 33, 0, 0, time.UTC)
	assert.WithinDuration(t, want, got, 5*time.Minute)
}

func TestSmoke_LookupSunset_Polar(t *testing.T) {
	c := smokeClient()

	// Midnight sun: the API reports a sentinel instant rather than failing.
	_, err := c.LookupSunset(context.Background(), domain.Coordinate{Lat: 78.2, Lon: 15.6}, runDate)
	require.NoError(t, err)
}
