package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testCache interface {
	core.VerdictCache
	Stop()
}

func newEntry(id string, label core.Label, ttl time.Duration) *core.VerdictEntry {
	return &core.VerdictEntry{
		MessageID: id,
		Sender:    "alice@example.com",
		Label:     label,
		LastSeen:  epoch,
		ExpiresAt: epoch.Add(ttl),
	}
}

func caches(t *testing.T) map[string]func(now *time.Time) testCache {
	return map[string]func(now *time.Time) testCache{
		"memory": func(now *time.Time) testCache {
			c := NewMemoryCache(zap.NewNop(), 0)
			c.now = func() time.Time { return *now }
			return c
		},
		"sqlite": func(now *time.Time) testCache {
			c, err := NewSQLiteCache(":memory:", zap.NewNop(), 0)
			require.NoError(t, err)
			c.now = func() time.Time { return *now }
			return c
		},
	}
}

func TestVerdictCacheRoundTrip(t *testing.T) {
	for name, build := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := epoch
			c := build(&now)
			defer c.Stop()

			_, err := c.Get(ctx, "m1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, c.Set(ctx, newEntry("m1", core.LabelSpam, time.Hour)))
			got, err := c.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, core.LabelSpam, got.Label)
			assert.Equal(t, "alice@example.com", got.Sender)
			assert.True(t, got.LastSeen.Equal(epoch))

			// replacing keeps a single entry per message
			require.NoError(t, c.Set(ctx, newEntry("m1", core.LabelHam, time.Hour)))
			got, err = c.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, core.LabelHam, got.Label)

			require.NoError(t, c.Delete(ctx, "m1"))
			_, err = c.Get(ctx, "m1")
			assert.Error(t, err)
		})
	}
}

func TestVerdictCacheExpiry(t *testing.T) {
	for name, build := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := epoch
			c := build(&now)
			defer c.Stop()

			require.NoError(t, c.Set(ctx, newEntry("short", core.LabelUnsure, time.Minute)))
			require.NoError(t, c.Set(ctx, newEntry("long", core.LabelHam, 2*time.Hour)))

			now = epoch.Add(time.Hour)
			_, err := c.Get(ctx, "short")
			assert.Error(t, err)
			_, err = c.Get(ctx, "long")
			assert.NoError(t, err)

			require.NoError(t, c.Cleanup(ctx))
			now = epoch
			_, err = c.Get(ctx, "short")
			assert.ErrorIs(t, err, ErrNotFound, "cleanup removes expired entries")
			_, err = c.Get(ctx, "long")
			assert.NoError(t, err)
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewMemoryCache(zap.NewNop(), time.Hour)
	c.Stop()
	assert.NotPanics(t, c.Stop)
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := formatTime(epoch)
	b := formatTime(epoch.Add(time.Nanosecond))
	c := formatTime(epoch.Add(10 * time.Second).In(time.FixedZone("x", 3600)))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
