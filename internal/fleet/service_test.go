package fleet_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/d3vfreak/fleet-overview/internal/fleet"
	"github.com/d3vfreak/fleet-overview/internal/namecache"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newFleetServer fakes ESI and the SSO. A refresh with the token "hanging"
// never gets an answer and is reported on hung.
func newFleetServer(t *testing.T, hung chan<- struct{}) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("refresh_token") == "hanging" {
			select {
			case hung <- struct{}{}:
			default:
			}
			<-r.Context().Done()
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer","expires_in":1199,"refresh_token":"rotated"}`))
	})
	mux.HandleFunc("/latest/characters/1/fleet/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fleet_id":77,"fleet_boss_id":1,"role":"fleet_commander","squad_id":-1,"wing_id":-1}`))
	})
	mux.HandleFunc("/latest/characters/1/location/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"solar_system_id":30000142}`))
	})
	mux.HandleFunc("/latest/fleets/77/members/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"character_id":1,"ship_type_id":587,"solar_system_id":30000142,"join_time":"2024-01-01T00:00:00Z"},
			{"character_id":2,"ship_type_id":587,"solar_system_id":30000142,"join_time":"2024-01-01T00:00:00Z"},
			{"character_id":3,"ship_type_id":24690,"solar_system_id":30002187,"join_time":"2024-01-01T00:00:00Z"}
		]`))
	})
	for id, name := range map[string]string{"1": "Alpha", "2": "Bravo", "3": "Charlie"} {
		mux.HandleFunc("/latest/characters/"+id+"/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"name":"` + name + `","corporation_id":98000001}`))
		})
	}
	mux.HandleFunc("/latest/universe/types/587/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type_id":587,"name":"Rifter"}`))
	})
	mux.HandleFunc("/latest/universe/types/24690/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type_id":24690,"name":"Drake"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestService_Snapshot(t *testing.T) {
	t.Parallel()

	server := newFleetServer(t, nil)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.ESI.ClientID = "client-id"
	cfg.ESI.BaseURL = server.URL
	cfg.ESI.LoginURL = server.URL

	esiClient := esi.New(client.NewClient(client.WithTimeout(5*time.Second)), cfg, zap.NewNop())
	ships := namecache.New(esiClient, namecache.NewFileStore(filepath.Join(dir, "ship_types.json")), zap.NewNop())

	users, err := database.NewSQLiteStore(filepath.Join(dir, "users.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	user := &types.User{Name: "Alpha", CharacterID: 1, RefreshToken: "original"}
	require.NoError(t, users.SaveUser(t.Context(), user))

	service := fleet.NewService(esiClient, ships, users, 4, zap.NewNop())

	current, err := service.CurrentFleet(t.Context(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(77), current.FleetID)

	snapshot, err := service.Snapshot(t.Context(), user, current)
	require.NoError(t, err)
	assert.Len(t, snapshot.All["Rifter"], 2)
	assert.Len(t, snapshot.All["Drake"], 1)
	assert.Len(t, snapshot.Colocated, 1)
	assert.Equal(t, "Bravo", snapshot.Colocated["Rifter"][2].Username)
	assert.Equal(t, 2, ships.Len())

	// The rotated refresh token is written back
	assert.Equal(t, "rotated", user.RefreshToken)
	stored, err := users.GetUser(t.Context(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.RefreshToken)
}

func TestService_HangingSSOOnlyBlocksItsUser(t *testing.T) {
	t.Parallel()

	hung := make(chan struct{}, 1)
	server := newFleetServer(t, hung)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.ESI.ClientID = "client-id"
	cfg.ESI.BaseURL = server.URL
	cfg.ESI.LoginURL = server.URL
	cfg.ESI.RequestTimeout = 2000

	esiClient := esi.New(client.NewClient(client.WithTimeout(5*time.Second)), cfg, zap.NewNop())
	ships := namecache.New(esiClient, namecache.NewFileStore(filepath.Join(dir, "ship_types.json")), zap.NewNop())

	users, err := database.NewSQLiteStore(filepath.Join(dir, "users.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	service := fleet.NewService(esiClient, ships, users, 4, zap.NewNop())

	stuckErr := make(chan error, 1)
	go func() {
		_, err := service.CurrentFleet(context.Background(), &types.User{Name: "Stuck", CharacterID: 9, RefreshToken: "hanging"})
		stuckErr <- err
	}()

	select {
	case <-hung:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "token refresh never reached the SSO")
	}

	// Another user is served while the first exchange is still pending
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	current, err := service.CurrentFleet(ctx, &types.User{Name: "Alpha", CharacterID: 1, RefreshToken: "original"})
	require.NoError(t, err)
	assert.Equal(t, int64(77), current.FleetID)

	// The pending exchange gives up after the request timeout
	select {
	case err := <-stuckErr:
		require.ErrorIs(t, err, esi.ErrAuthFailure)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "token refresh ignored the request timeout")
	}
}
