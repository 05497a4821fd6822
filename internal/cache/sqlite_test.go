package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

func openTestSQLite(t *testing.T, clock clockwork.Clock) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := OpenSQLite(context.Background(), path, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLite_Contract(t *testing.T) {
	runContract(t, func(t *testing.T, clock clockwork.Clock) domain.ResultCache {
		return openTestSQLite(t, clock)
	})
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenSQLite(ctx, path, clock)
	require.NoError(t, err)
	want := sampleResult(40, -75)
	require.NoError(t, c.Put(ctx, "k1", want, 24*time.Hour))
	require.NoError(t, c.Close())

	c, err = OpenSQLite(ctx, path, clock)
	require.NoError(t, err)
	defer c.Close()

	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.NoError(t, c.Ping(ctx))
}

func TestSQLite_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	c := openTestSQLite(t, clockwork.NewFakeClockAt(epoch))

	_, err := c.db.ExecContext(ctx, upsert, "bad", []byte("{not json"), epoch.Add(time.Hour).UnixNano())
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "bad")
	require.Error(t, err)
	assert.False(t, ok)
}
