package redis_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/d3vfreak/fleet-overview/internal/redis"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) (*redis.SessionTracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return redis.NewSessionTracker(client), mr
}

func TestSessionTracker(t *testing.T) {
	t.Parallel()

	tracker, mr := newTracker(t)
	ctx := t.Context()

	require.NoError(t, tracker.Track(ctx, "conn-1", "Boss Pilot"))
	require.NoError(t, tracker.Track(ctx, "conn-2", "Wing Pilot"))
	assert.Equal(t, "Boss Pilot", mr.HGet(redis.SessionsKey, "conn-1"))

	require.NoError(t, tracker.Untrack(ctx, "conn-1"))

	sessions, err := tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"conn-2": "Wing Pilot"}, sessions)

	require.NoError(t, tracker.Reset(ctx))

	sessions, err = tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionTracker_UntrackMissing(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t)
	require.NoError(t, tracker.Untrack(t.Context(), "never-tracked"))
}
