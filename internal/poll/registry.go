package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotLoggedIn is returned when monitoring is toggled before a successful login.
	ErrNotLoggedIn = errors.New("connection is not logged in")
	// ErrUnknownConnection is returned for a connection id that was never registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrInvalidCredentials is returned when the login cookie does not match a user.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrSuperseded is returned by Enable when a Disable or Enable overtook the boss check.
	ErrSuperseded = errors.New("monitoring request superseded")
)

// UserStore looks up users by display name.
type UserStore interface {
	GetUser(ctx context.Context, name string) (*types.User, error)
}

// FilterSource returns the dashboard filter presets for a corporation, or nil.
type FilterSource interface {
	For(corporationID int64) json.RawMessage
}

// Tracker records which connections are monitoring. It may be nil.
type Tracker interface {
	Track(ctx context.Context, connID, user string) error
	Untrack(ctx context.Context, connID string) error
}

// connection is the registry entry for one realtime connection.
type connection struct {
	emitter Emitter
	user    *types.User
	session *Session
}

// Registry owns the login binding and poll session of every connection.
type Registry struct {
	users   UserStore
	source  FleetSource
	filters FilterSource
	tracker Tracker
	opts    Options
	logger  *zap.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// NewRegistry creates an empty registry.
func NewRegistry(
	users UserStore, source FleetSource, filters FilterSource, tracker Tracker, opts Options, logger *zap.Logger,
) *Registry {
	return &Registry{
		users:   users,
		source:  source,
		filters: filters,
		tracker: tracker,
		opts:    opts.withDefaults(),
		logger:  logger.Named("poll"),
		conns:   make(map[string]*connection),
	}
}

// Connect registers a new connection and the emitter used to reach it.
func (r *Registry) Connect(connID string, emitter Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = &connection{emitter: emitter}
}

// Login binds a user to the connection when the cookie hash matches.
// On mismatch the client is told to clear its cookies and nothing is bound.
func (r *Registry) Login(ctx context.Context, connID, name, hash string) error {
	conn, err := r.get(connID)
	if err != nil {
		return err
	}

	user, err := r.users.GetUser(ctx, name)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		r.rejectLogin(conn, name)
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, name)
	case err != nil:
		return fmt.Errorf("failed to load user %s: %w", name, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.SessionHash), []byte(hash)) != nil {
		r.rejectLogin(conn, name)
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, name)
	}

	r.mu.Lock()
	previous := conn.session
	conn.session = nil
	conn.user = user
	r.mu.Unlock()

	// The old dashboard belongs to the previous binding
	if previous != nil {
		stopped := previous.Disable()
		r.untrack(ctx, connID)

		if stopped {
			if err := conn.emitter.Emit(EventClear, empty{}); err != nil {
				r.logger.Warn("Failed to emit clear", zap.String("connID", connID), zap.Error(err))
			}
		}
	}

	var filters any = empty{}
	if r.filters != nil {
		if preset := r.filters.For(user.CorporationID); len(preset) > 0 {
			filters = preset
		}
	}

	r.logger.Info("User logged in",
		zap.String("connID", connID),
		zap.String("user", user.Name))

	if err := conn.emitter.Emit(EventFilters, filters); err != nil {
		r.logger.Warn("Failed to emit filters", zap.String("connID", connID), zap.Error(err))
	}

	return nil
}

// Monitor turns fleet polling on or off for a logged in connection.
func (r *Registry) Monitor(ctx context.Context, connID string, active bool) error {
	conn, err := r.get(connID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	user := conn.user
	if user == nil {
		r.mu.Unlock()
		return ErrNotLoggedIn
	}

	session := conn.session
	if session == nil && active {
		session = NewSession(r.source, conn.emitter, r.opts,
			r.logger.With(zap.String("connID", connID), zap.String("user", user.Name)))
		conn.session = session
	}
	r.mu.Unlock()

	if !active {
		if session != nil && session.Disable() {
			r.untrack(ctx, connID)
			if err := conn.emitter.Emit(EventClear, empty{}); err != nil {
				r.logger.Warn("Failed to emit clear", zap.String("connID", connID), zap.Error(err))
			}
		}
		return nil
	}

	if err := session.Enable(ctx, user); err != nil {
		r.untrack(ctx, connID)
		return err
	}

	if r.tracker != nil {
		if err := r.tracker.Track(ctx, connID, user.Name); err != nil {
			r.logger.Warn("Failed to track session", zap.String("connID", connID), zap.Error(err))
		}
	}

	return nil
}

// Disconnect stops the connection's session and forgets the connection.
func (r *Registry) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	delete(r.conns, connID)
	var session *Session
	if ok {
		session = conn.session
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if session != nil && session.Disable() {
		r.logger.Info("Stopped monitoring on disconnect", zap.String("connID", connID))
	}

	r.untrack(ctx, connID)
}

// Active returns the number of sessions currently polling.
func (r *Registry) Active() int {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.session != nil {
			sessions = append(sessions, conn.session)
		}
	}
	r.mu.Unlock()

	count := 0
	for _, session := range sessions {
		if session.State() == StateActive {
			count++
		}
	}

	return count
}

// Close disconnects every connection.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Disconnect(ctx, id)
	}
}

func (r *Registry) get(connID string) (*connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	return conn, nil
}

func (r *Registry) rejectLogin(conn *connection, name string) {
	r.logger.Info("Rejected login", zap.String("user", name))

	if err := conn.emitter.Emit(EventClearCookies, empty{}); err != nil {
		r.logger.Warn("Failed to emit clearCookies", zap.Error(err))
	}
}

func (r *Registry) untrack(ctx context.Context, connID string) {
	if r.tracker == nil {
		return
	}

	if err := r.tracker.Untrack(ctx, connID); err != nil {
		r.logger.Warn("Failed to untrack session", zap.String("connID", connID), zap.Error(err))
	}
}
