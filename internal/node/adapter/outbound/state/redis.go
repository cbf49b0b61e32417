package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot as JSON under a single key, for nodes without a
// durable local disk.
type RedisStore struct {
	client *redis.Client
	key    string
}

// Ensure RedisStore implements port.StateStore.
var _ port.StateStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Save(ctx context.Context, state port.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (port.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return port.State{}, port.ErrNoState
	}
	if err != nil {
		return port.State{}, fmt.Errorf("failed to load state: %w", err)
	}

	var state port.State
	if err := json.Unmarshal(data, &state); err != nil {
		return port.State{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
