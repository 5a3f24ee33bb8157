package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qmaze/qtable"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each snapshot as a single binary string value. Several
// servers may share it; Lock serializes their training calls.
type RedisStore struct {
	client  *redis.Client
	locker  *redsync.Redsync
	lockTTL time.Duration
}

// NewRedisStore wraps client. lockTTL bounds how long a crashed holder keeps the lock.
func NewRedisStore(client *redis.Client, lockTTL time.Duration) *RedisStore {
	pool := goredis.NewPool(client)
	return &RedisStore{
		client:  client,
		locker:  redsync.New(pool),
		lockTTL: lockTTL,
	}
}

func (rs *RedisStore) Load(ctx context.Context, key string) (state qtable.State, err error) {
	data, err := rs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return state, err
	}
	err = state.UnmarshalBinary(data)
	return
}

func (rs *RedisStore) Save(ctx context.Context, key string, state qtable.State) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return err
	}
	if err = rs.client.Set(ctx, key, data, 0).Err(); err != nil {
		return err
	}
	logger.Printf("saved %s seed=%d", key, state.Seed)
	return nil
}

// Lock takes the distributed training lock for key, trying once.
func (rs *RedisStore) Lock(ctx context.Context, key string) (func(), error) {
	mutex := rs.locker.NewMutex(key+":train_lock",
		redsync.WithExpiry(rs.lockTTL),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, key, err)
	}
	return func() {
		if _, err := mutex.Unlock(); err != nil {
			logger.Printf("WARNING: unlock %s: %v", key, err)
		}
	}, nil
}

// Close closes the underlying client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
