package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() port.State {
	return port.State{
		KSize:     20,
		Alpha:     3,
		ID:        routing.NewNodeID("node"),
		Neighbors: []string{"10.0.0.1:8468", "10.0.0.2:8468"},
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "node.state")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, port.ErrNoState)

	require.NoError(t, store.Save(ctx, sampleState()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	// Overwrite leaves no temporary files behind.
	next := sampleState()
	next.Neighbors = []string{"10.0.0.3:8468"}
	require.NoError(t, store.Save(ctx, next))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	require.NoError(t, store.Close())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.state")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrNoState)
}

func TestRedisStore_SaveLoad(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	key := "kademlia:state:test:" + t.Name()
	store := NewRedisStore(client, key)
	defer func() {
		_ = client.Del(ctx, key).Err()
		_ = store.Close()
	}()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, port.ErrNoState)

	require.NoError(t, store.Save(ctx, sampleState()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}
