package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		name TEXT PRIMARY KEY,
		character_id INTEGER NOT NULL,
		refresh_token TEXT NOT NULL,
		session_hash TEXT NOT NULL,
		alliance_id INTEGER NOT NULL,
		corporation_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)
`

// SQLiteStore keeps users in a single embedded database file.
// A connection is not safe for concurrent use, so every call holds mu.
type SQLiteStore struct {
	conn   *sqlite.Conn
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSQLiteStore opens (or creates) the database file and ensures the schema exists.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := sqlitex.ExecuteTransient(conn, sqliteSchema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	logger = logger.Named("sqlite")
	logger.Info("SQLite user store opened", zap.String("path", path))

	return &SQLiteStore{
		conn:   conn,
		logger: logger,
	}, nil
}

// GetUser implements Store.
func (s *SQLiteStore) GetUser(_ context.Context, name string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user *types.User

	err := sqlitex.Execute(s.conn, `
		SELECT name, character_id, refresh_token, session_hash,
			alliance_id, corporation_id, created_at, updated_at
		FROM users WHERE name = ?
	`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			user = &types.User{
				Name:          stmt.ColumnText(0),
				CharacterID:   stmt.ColumnInt64(1),
				RefreshToken:  stmt.ColumnText(2),
				SessionHash:   stmt.ColumnText(3),
				AllianceID:    stmt.ColumnInt64(4),
				CorporationID: stmt.ColumnInt64(5),
				CreatedAt:     time.Unix(stmt.ColumnInt64(6), 0).UTC(),
				UpdatedAt:     time.Unix(stmt.ColumnInt64(7), 0).UTC(),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query user %q: %w", name, err)
	}

	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}

	return user, nil
}

// SaveUser implements Store.
func (s *SQLiteStore) SaveUser(_ context.Context, user *types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	err := sqlitex.Execute(s.conn, `
		INSERT INTO users (name, character_id, refresh_token, session_hash,
			alliance_id, corporation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			character_id = excluded.character_id,
			refresh_token = excluded.refresh_token,
			session_hash = excluded.session_hash,
			alliance_id = excluded.alliance_id,
			corporation_id = excluded.corporation_id,
			updated_at = excluded.updated_at
	`, &sqlitex.ExecOptions{
		Args: []any{
			user.Name, user.CharacterID, user.RefreshToken, user.SessionHash,
			user.AllianceID, user.CorporationID, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save user %q: %w", user.Name, err)
	}

	return nil
}

// UpdateCredentials implements Store.
func (s *SQLiteStore) UpdateCredentials(_ context.Context, name, refreshToken, sessionHash string) error {
	return s.update(name,
		"UPDATE users SET refresh_token = ?, session_hash = ?, updated_at = ? WHERE name = ?",
		refreshToken, sessionHash, time.Now().Unix(), name,
	)
}

// UpdateRefreshToken implements Store.
func (s *SQLiteStore) UpdateRefreshToken(_ context.Context, name, refreshToken string) error {
	return s.update(name,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE name = ?",
		refreshToken, time.Now().Unix(), name,
	)
}

// update runs a single-row update and reports ErrUserNotFound when nothing matched.
func (s *SQLiteStore) update(name, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("failed to update user %q: %w", name, err)
	}

	if s.conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}

	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
		return err
	}

	s.logger.Info("SQLite user store closed")

	return nil
}
