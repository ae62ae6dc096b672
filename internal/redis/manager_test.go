package redis_test

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/d3vfreak/fleet-overview/internal/redis"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_GetClientReusesConnection(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: mr.Host(), Port: port}, zap.NewNop())
	defer manager.Close()

	first, err := manager.GetClient(t.Context(), redis.SessionDBIndex)
	require.NoError(t, err)

	second, err := manager.GetClient(t.Context(), redis.SessionDBIndex)
	require.NoError(t, err)
	assert.Same(t, first, second)

	tracker := redis.NewSessionTracker(first)
	require.NoError(t, tracker.Track(t.Context(), "conn-1", "Boss Pilot"))

	mr.Select(redis.SessionDBIndex)
	assert.Equal(t, "Boss Pilot", mr.HGet(redis.SessionsKey, "conn-1"))
}
