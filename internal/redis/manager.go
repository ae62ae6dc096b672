package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/d3vfreak/fleet-overview/pkg/utils"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// CacheDBIndex stores the resolved ship type names.
	CacheDBIndex = 0

	// SessionDBIndex tracks live poll sessions for operators.
	SessionDBIndex = 3
)

// Manager maintains a thread-safe mapping of database indices to Redis clients.
// Each database index gets its own dedicated connection pool through rueidis.
type Manager struct {
	clients map[int]rueidis.Client
	config  *config.Redis
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewManager initializes the Redis connection manager with an empty client pool.
// Actual client connections are created lazily when first requested.
func NewManager(config *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[int]rueidis.Client),
		config:  config,
		logger:  logger.Named("redis"),
	}
}

// GetClient retrieves or creates a Redis client for the specified database index.
// Redis is often still starting when the server boots, so the first
// connection is retried with backoff.
func (m *Manager) GetClient(ctx context.Context, dbIndex int) (rueidis.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	client, err := utils.Retry(ctx, func() (rueidis.Client, error) {
		return rueidis.NewClient(rueidis.ClientOption{
			InitAddress: []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
			Username:    m.config.Username,
			Password:    m.config.Password,
			SelectDB:    dbIndex,
			ClientName:  "fleet-overview",
			// Values here are written by this process only
			DisableCache: true,
		})
	}, utils.StartupBackoff, func(err error, wait time.Duration) {
		m.logger.Warn("Redis not reachable yet",
			zap.Int("dbIndex", dbIndex),
			zap.Duration("retryIn", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))

	return client, nil
}

// Close gracefully shuts down all active Redis clients in the pool.
// Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		delete(m.clients, dbIndex)
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}
}
