package database_test

import (
	"path/filepath"
	"testing"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "data", "users.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := t.Context()

	user := &types.User{
		Name:          "Jita Trader",
		CharacterID:   90000001,
		RefreshToken:  "refresh-1",
		SessionHash:   "digest-1",
		AllianceID:    99000001,
		CorporationID: 98000001,
	}
	require.NoError(t, store.SaveUser(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	got, err := store.GetUser(ctx, "Jita Trader")
	require.NoError(t, err)
	assert.Equal(t, user.CharacterID, got.CharacterID)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, "digest-1", got.SessionHash)
	assert.Equal(t, user.AllianceID, got.AllianceID)
	assert.Equal(t, user.CorporationID, got.CorporationID)
	assert.Equal(t, user.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestSQLiteStore_SaveReplacesExisting(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.SaveUser(ctx, &types.User{Name: "Pilot", CharacterID: 1, CorporationID: 10}))
	require.NoError(t, store.SaveUser(ctx, &types.User{Name: "Pilot", CharacterID: 1, CorporationID: 20}))

	got, err := store.GetUser(ctx, "Pilot")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.CorporationID)
}

func TestSQLiteStore_UpdateCredentials(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.SaveUser(ctx, &types.User{
		Name: "Pilot", CharacterID: 1, RefreshToken: "old", SessionHash: "old-hash", CorporationID: 10,
	}))

	require.NoError(t, store.UpdateCredentials(ctx, "Pilot", "new", "new-hash"))

	got, err := store.GetUser(ctx, "Pilot")
	require.NoError(t, err)
	assert.Equal(t, "new", got.RefreshToken)
	assert.Equal(t, "new-hash", got.SessionHash)
	assert.Equal(t, int64(10), got.CorporationID)

	require.NoError(t, store.UpdateRefreshToken(ctx, "Pilot", "rotated"))

	got, err = store.GetUser(ctx, "Pilot")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.RefreshToken)
	assert.Equal(t, "new-hash", got.SessionHash)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := t.Context()

	_, err := store.GetUser(ctx, "Nobody")
	require.ErrorIs(t, err, database.ErrUserNotFound)

	err = store.UpdateRefreshToken(ctx, "Nobody", "token")
	require.ErrorIs(t, err, database.ErrUserNotFound)

	err = store.UpdateCredentials(ctx, "Nobody", "token", "hash")
	require.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "users.db")

	store, err := database.NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.SaveUser(t.Context(), &types.User{Name: "Pilot", CharacterID: 7}))
	require.NoError(t, store.Close())

	store, err = database.NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetUser(t.Context(), "Pilot")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.CharacterID)
}
