package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qmaze/qtable"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func trainedState() qtable.State {
	state := qtable.NewState()
	state.Seed = 4023527299
	for i := range state.Table {
		state.Table[i] = int32(i*7 - 300)
	}
	return state
}

// exercise runs the behavior every backend shares.
func exercise(t *testing.T, s Store, key string) {
	ctx := context.Background()

	_, err := s.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh, err := LoadOrNew(ctx, s, key, qtable.NewState())
	require.NoError(t, err)
	assert.Equal(t, qtable.NewState(), fresh)

	want := trainedState()
	require.NoError(t, s.Save(ctx, key, want))
	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// overwrite
	want.Seed++
	want.Table[42] = -1
	require.NoError(t, s.Save(ctx, key, want))
	got, err = LoadOrNew(ctx, s, key, qtable.NewState())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	exercise(t, fs, DefaultKey)

	data, err := os.ReadFile(filepath.Join(dir, "qmaze_state.bin"))
	require.NoError(t, err)
	assert.Len(t, data, qtable.StateSize)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.bin"), []byte{1, 2, 3}, 0o644))

	_, err = fs.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, qtable.ErrSnapshotSize)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	rs := NewRedisStore(client, 10*time.Second)
	defer rs.Close()

	ctx := context.Background()
	key := "qmaze:test:" + t.Name()
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	exercise(t, rs, key)

	unlock, err := rs.Lock(ctx, key)
	require.NoError(t, err)
	_, err = rs.Lock(ctx, key)
	assert.ErrorIs(t, err, ErrLocked)
	unlock()

	unlock, err = rs.Lock(ctx, key)
	require.NoError(t, err)
	unlock()
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	ms := NewMongoStore(client, "qmaze_test", "states")
	key := "test:" + t.Name()
	_, _ = ms.collection.DeleteOne(ctx, map[string]string{"_id": key})
	defer ms.collection.DeleteOne(context.Background(), map[string]string{"_id": key})

	exercise(t, ms, key)
}
