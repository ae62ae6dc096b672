package namecache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"
)

// RedisKey is the hash holding the type id to name mapping.
const RedisKey = "fleet:ship_types"

// RedisStore keeps the names in a Redis hash.
type RedisStore struct {
	client rueidis.Client
	key    string
}

// NewRedisStore creates a store backed by the RedisKey hash.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    RedisKey,
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (map[int64]string, error) {
	cmd := s.client.B().Hgetall().Key(s.key).Build()

	raw, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.key, err)
	}

	names := make(map[int64]string, len(raw))
	for field, name := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid type id %q in %s: %w", field, s.key, err)
		}
		names[id] = name
	}

	return names, nil
}

// Save implements Store. The hash is replaced in a single transaction.
func (s *RedisStore) Save(ctx context.Context, names map[int64]string) error {
	return s.client.Dedicated(func(c rueidis.DedicatedClient) error {
		cmds := rueidis.Commands{
			c.B().Multi().Build(),
			c.B().Del().Key(s.key).Build(),
		}

		if len(names) > 0 {
			hset := c.B().Hset().Key(s.key).FieldValue()
			for id, name := range names {
				hset = hset.FieldValue(strconv.FormatInt(id, 10), name)
			}
			cmds = append(cmds, hset.Build())
		}

		cmds = append(cmds, c.B().Exec().Build())

		for _, resp := range c.DoMulti(ctx, cmds...) {
			if err := resp.Error(); err != nil {
				return fmt.Errorf("failed to save %s: %w", s.key, err)
			}
		}

		return nil
	})
}
