package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// SessionsKey is the hash of connection id to user name for every monitoring connection.
const SessionsKey = "fleet:sessions"

// SessionTracker mirrors the live poll sessions into Redis so operators can
// see who is monitoring without attaching to the process.
type SessionTracker struct {
	client rueidis.Client
}

// NewSessionTracker creates a tracker on the given client.
func NewSessionTracker(client rueidis.Client) *SessionTracker {
	return &SessionTracker{client: client}
}

// Track records that a connection started monitoring.
func (t *SessionTracker) Track(ctx context.Context, connID, user string) error {
	cmd := t.client.B().Hset().Key(SessionsKey).FieldValue().FieldValue(connID, user).Build()
	if err := t.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to track session %s: %w", connID, err)
	}

	return nil
}

// Untrack removes a connection.
func (t *SessionTracker) Untrack(ctx context.Context, connID string) error {
	cmd := t.client.B().Hdel().Key(SessionsKey).Field(connID).Build()
	if err := t.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to untrack session %s: %w", connID, err)
	}

	return nil
}

// Sessions returns every tracked connection and its user.
func (t *SessionTracker) Sessions(ctx context.Context) (map[string]string, error) {
	cmd := t.client.B().Hgetall().Key(SessionsKey).Build()

	sessions, err := t.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// Reset drops entries left behind by a previous process.
func (t *SessionTracker) Reset(ctx context.Context) error {
	cmd := t.client.B().Del().Key(SessionsKey).Build()
	if err := t.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to reset sessions: %w", err)
	}

	return nil
}
