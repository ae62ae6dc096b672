package namecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrPersistence is returned when a resolved name could not be written to the store.
// The name is still kept in memory.
var ErrPersistence = errors.New("failed to persist name cache")

// fetchTimeout bounds a shared fetch and its save.
const fetchTimeout = 30 * time.Second

// Fetcher looks up a type name upstream.
type Fetcher interface {
	TypeName(ctx context.Context, typeID int64) (string, error)
}

// Store persists the complete type id to name mapping.
type Store interface {
	// Load returns every persisted entry. A missing store yields an empty map.
	Load(ctx context.Context) (map[int64]string, error)
	// Save replaces the persisted mapping with names.
	Save(ctx context.Context, names map[int64]string) error
}

// Cache resolves ship type ids to names, fetching each id at most once.
// Entries are immutable once stored.
type Cache struct {
	fetcher Fetcher
	store   Store
	logger  *zap.Logger

	names  map[int64]string
	mu     sync.RWMutex
	saveMu sync.Mutex
	group  singleflight.Group
}

// New creates an empty cache. Call Load to warm it from the store.
func New(fetcher Fetcher, store Store, logger *zap.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		store:   store,
		logger:  logger.Named("namecache"),
		names:   make(map[int64]string),
	}
}

// Load merges the persisted entries into memory.
func (c *Cache) Load(ctx context.Context) error {
	names, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load name cache: %w", err)
	}

	c.mu.Lock()
	for id, name := range names {
		if _, ok := c.names[id]; !ok {
			c.names[id] = name
		}
	}
	size := len(c.names)
	c.mu.Unlock()

	c.logger.Info("Loaded ship type names", zap.Int("count", size))

	return nil
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.names)
}

// Resolve returns the name of a type, fetching and persisting it on a miss.
// Concurrent misses for one id share a single fetch, which is not tied to any
// one caller: a caller that goes away only stops waiting.
func (c *Cache) Resolve(ctx context.Context, typeID int64) (string, error) {
	if name, ok := c.lookup(typeID); ok {
		return name, nil
	}

	ch := c.group.DoChan(strconv.FormatInt(typeID, 10), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		return c.fetch(fetchCtx, typeID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("failed to resolve type %d: %w", typeID, ctx.Err())
	}
}

func (c *Cache) fetch(ctx context.Context, typeID int64) (string, error) {
	if name, ok := c.lookup(typeID); ok {
		return name, nil
	}

	name, err := c.fetcher.TypeName(ctx, typeID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch type %d: %w", typeID, err)
	}

	c.mu.Lock()
	if existing, ok := c.names[typeID]; ok {
		name = existing
	} else {
		c.names[typeID] = name
	}
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		c.logger.Error("Failed to persist ship type names",
			zap.Int64("typeID", typeID),
			zap.Error(err))
		return name, err
	}

	c.logger.Debug("Resolved ship type", zap.Int64("typeID", typeID), zap.String("name", name))

	return name, nil
}

func (c *Cache) lookup(typeID int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name, ok := c.names[typeID]

	return name, ok
}

// persist writes a full copy of the map. Saves are serialized and each copy
// is taken under the save lock, so a later save is always a superset.
func (c *Cache) persist(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	snapshot := make(map[int64]string, len(c.names))
	for id, name := range c.names {
		snapshot[id] = name
	}
	c.mu.RUnlock()

	if err := c.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}
