package poll_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const cookieHash = "0123456789abcdef0123456789abcdef01234567"

type memoryUsers struct {
	users map[string]*types.User
}

func (m *memoryUsers) GetUser(_ context.Context, name string) (*types.User, error) {
	user, ok := m.users[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrUserNotFound, name)
	}

	copied := *user

	return &copied, nil
}

type corpFilters map[int64]json.RawMessage

func (f corpFilters) For(corporationID int64) json.RawMessage {
	return f[corporationID]
}

type memoryTracker struct {
	mu       sync.Mutex
	sessions map[string]string
}

func (m *memoryTracker) Track(_ context.Context, connID, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[connID] = user

	return nil
}

func (m *memoryTracker) Untrack(_ context.Context, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, connID)

	return nil
}

func (m *memoryTracker) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

type registryFixture struct {
	registry *poll.Registry
	source   *fakeSource
	tracker  *memoryTracker
	ticker   *manualTicker
}

func newRegistry(t *testing.T) *registryFixture {
	t.Helper()

	digest, err := bcrypt.GenerateFromPassword([]byte(cookieHash), bcrypt.MinCost)
	require.NoError(t, err)

	user := testUser()
	user.SessionHash = string(digest)

	fixture := &registryFixture{
		source:  &fakeSource{},
		tracker: &memoryTracker{sessions: make(map[string]string)},
		ticker:  newManualTicker(),
	}
	fixture.registry = poll.NewRegistry(
		&memoryUsers{users: map[string]*types.User{user.Name: user}},
		fixture.source,
		corpFilters{98000001: json.RawMessage(`{"Frigates":["Rifter"]}`)},
		fixture.tracker,
		poll.Options{FailureThreshold: 2, Ticker: fixture.ticker.start},
		zap.NewNop(),
	)
	t.Cleanup(func() { fixture.registry.Close(context.Background()) })

	return fixture
}

func TestRegistry_LoginMismatchClearsCookies(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)

	err := f.registry.Login(t.Context(), "conn-1", "Boss Pilot", "wrong-hash")
	require.ErrorIs(t, err, poll.ErrInvalidCredentials)
	assert.Equal(t, 1, emitter.count(poll.EventClearCookies))
	assert.Zero(t, emitter.count(poll.EventFilters))

	// No session can be created without a login
	err = f.registry.Monitor(t.Context(), "conn-1", true)
	require.ErrorIs(t, err, poll.ErrNotLoggedIn)
	assert.Zero(t, f.registry.Active())
	assert.Zero(t, f.source.fleetCalls.Load())
}

func TestRegistry_LoginUnknownUser(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)

	err := f.registry.Login(t.Context(), "conn-1", "Stranger", cookieHash)
	require.ErrorIs(t, err, poll.ErrInvalidCredentials)
	assert.Equal(t, 1, emitter.count(poll.EventClearCookies))
}

func TestRegistry_LoginSendsFilters(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)

	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))
	assert.Equal(t, 1, emitter.count(poll.EventFilters))
	assert.JSONEq(t, `{"Frigates":["Rifter"]}`, string(emitter.last().payload.(json.RawMessage)))
	assert.Zero(t, f.registry.Active())
}

func TestRegistry_MonitorLifecycle(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)
	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))

	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", true))
	assert.Equal(t, 1, f.registry.Active())
	assert.Equal(t, 1, f.tracker.len())
	require.Eventually(t, func() bool { return emitter.count(poll.EventFleetUpdate) == 1 }, waitFor, every)

	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", false))
	assert.Equal(t, 1, emitter.count(poll.EventClear))
	assert.Zero(t, f.registry.Active())
	assert.Zero(t, f.tracker.len())

	// Turning it off again sends nothing
	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", false))
	assert.Equal(t, 1, emitter.count(poll.EventClear))
}

func TestRegistry_ReloginClearsDashboard(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)
	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))
	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", true))
	require.Eventually(t, func() bool { return emitter.count(poll.EventFleetUpdate) == 1 }, waitFor, every)

	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))
	assert.Equal(t, 1, emitter.count(poll.EventClear))
	assert.Equal(t, 2, emitter.count(poll.EventFilters))
	assert.Zero(t, f.registry.Active())
	assert.Zero(t, f.tracker.len())

	// A login without a running session has nothing to clear
	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))
	assert.Equal(t, 1, emitter.count(poll.EventClear))
}

func TestRegistry_DisconnectStopsSession(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	emitter := &recordingEmitter{}
	f.registry.Connect("conn-1", emitter)
	require.NoError(t, f.registry.Login(t.Context(), "conn-1", "Boss Pilot", cookieHash))
	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", true))

	f.registry.Disconnect(t.Context(), "conn-1")

	assert.Zero(t, f.registry.Active())
	assert.Zero(t, f.tracker.len())
	assert.Equal(t, int32(1), f.ticker.stopped.Load())
	assert.Zero(t, emitter.count(poll.EventClear))

	err := f.registry.Monitor(t.Context(), "conn-1", true)
	require.ErrorIs(t, err, poll.ErrUnknownConnection)
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	t.Parallel()

	f := newRegistry(t)
	first, second := &recordingEmitter{}, &recordingEmitter{}
	f.registry.Connect("conn-1", first)
	f.registry.Connect("conn-2", second)

	for _, id := range []string{"conn-1", "conn-2"} {
		require.NoError(t, f.registry.Login(t.Context(), id, "Boss Pilot", cookieHash))
		require.NoError(t, f.registry.Monitor(t.Context(), id, true))
	}
	assert.Equal(t, 2, f.registry.Active())

	require.NoError(t, f.registry.Monitor(t.Context(), "conn-1", false))
	assert.Equal(t, 1, f.registry.Active())
	assert.Equal(t, 1, first.count(poll.EventClear))
	assert.Zero(t, second.count(poll.EventClear))
}
