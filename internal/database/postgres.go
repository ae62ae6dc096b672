package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/d3vfreak/fleet-overview/internal/database/dbretry"
	"github.com/d3vfreak/fleet-overview/internal/database/migrations"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// PostgresStore keeps users in PostgreSQL through bun.
type PostgresStore struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPostgresStore establishes a new database connection and optionally runs pending migrations.
func NewPostgresStore(
	ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (*PostgresStore, error) {
	logger = logger.Named("postgres")

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("fleet-overview"),
	))

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Minute)

	bunjson.SetProvider(sonicProvider{})

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(NewHook(logger))
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.DBName)))

	if autoMigrate {
		migrator := migrate.NewMigrator(db, migrations.Migrations)
		if err := migrator.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize migrations: %w", err)
		}

		group, err := migrator.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		if !group.IsZero() {
			logger.Info("Automatically ran migrations", zap.String("group", group.String()))
		}
	}

	logger.Info("Database connection established")

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// DB returns the underlying bun.DB instance.
func (s *PostgresStore) DB() *bun.DB {
	return s.db
}

// GetUser implements Store.
func (s *PostgresStore) GetUser(ctx context.Context, name string) (*types.User, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.User, error) {
		var user types.User

		err := s.db.NewSelect().
			Model(&user).
			Where("name = ?", name).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query user %q: %w", name, err)
		}

		return &user, nil
	})
}

// SaveUser implements Store.
func (s *PostgresStore) SaveUser(ctx context.Context, user *types.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().
			Model(user).
			On("CONFLICT (name) DO UPDATE").
			Set("character_id = EXCLUDED.character_id").
			Set("refresh_token = EXCLUDED.refresh_token").
			Set("session_hash = EXCLUDED.session_hash").
			Set("alliance_id = EXCLUDED.alliance_id").
			Set("corporation_id = EXCLUDED.corporation_id").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save user %q: %w", user.Name, err)
		}

		return nil
	})
}

// UpdateCredentials implements Store.
func (s *PostgresStore) UpdateCredentials(ctx context.Context, name, refreshToken, sessionHash string) error {
	return s.update(ctx, name, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("refresh_token = ?", refreshToken).Set("session_hash = ?", sessionHash)
	})
}

// UpdateRefreshToken implements Store.
func (s *PostgresStore) UpdateRefreshToken(ctx context.Context, name, refreshToken string) error {
	return s.update(ctx, name, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("refresh_token = ?", refreshToken)
	})
}

// update applies the given setters to a single user row.
func (s *PostgresStore) update(ctx context.Context, name string, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		query := s.db.NewUpdate().
			Model((*types.User)(nil)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("name = ?", name)

		result, err := set(query).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update user %q: %w", name, err)
		}

		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			return fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}

		return nil
	})
}

// Close gracefully shuts down the database connection.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	s.logger.Info("Database connection closed")

	return nil
}
