package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"go.uber.org/zap"
)

var ErrUserNotFound = errors.New("user not found")

// Store defines the user operations every storage backend must implement.
type Store interface {
	// GetUser returns the user with the given display name or ErrUserNotFound.
	GetUser(ctx context.Context, name string) (*types.User, error)
	// SaveUser inserts the user or replaces every field of an existing row.
	SaveUser(ctx context.Context, user *types.User) error
	// UpdateCredentials rotates the refresh token and session hash after a login.
	UpdateCredentials(ctx context.Context, name, refreshToken, sessionHash string) error
	// UpdateRefreshToken stores a refresh token rotated by the SSO.
	UpdateRefreshToken(ctx context.Context, name, refreshToken string) error
	// Close releases the underlying connection.
	Close() error
}

// NewStore opens the user store selected by the storage configuration.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Storage.UserBackend {
	case config.UserBackendSQLite:
		return NewSQLiteStore(cfg.Storage.SQLitePath, logger)
	case config.UserBackendPostgres:
		return NewPostgresStore(ctx, &cfg.PostgreSQL, logger, true)
	default:
		return nil, fmt.Errorf("%w: unknown user backend %q", config.ErrInvalidConfig, cfg.Storage.UserBackend)
	}
}
