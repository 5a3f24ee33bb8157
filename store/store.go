// Package store persists the training state (seed and q-table) between runs.
// Every backend stores the same logical record under a caller-chosen key.
package store

import (
	"context"
	"errors"
	"log"
	"os"

	"qmaze/qtable"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved under the key.
	// Callers then start from qtable.NewState().
	ErrNotFound = errors.New("no persisted state")
	// ErrLocked is returned when another process holds the training lock.
	ErrLocked = errors.New("state is locked")
)

// DefaultKey is the key under which the single maze's state is kept.
const DefaultKey = "qmaze:state"

// Store loads and saves training state.
type Store interface {
	Load(ctx context.Context, key string) (qtable.State, error)
	Save(ctx context.Context, key string, state qtable.State) error
}

// Locker is implemented by stores shared between processes. The returned func
// releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LoadOrNew loads the state under key, or returns fresh when none exists.
func LoadOrNew(ctx context.Context, s Store, key string, fresh qtable.State) (qtable.State, error) {
	state, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fresh, nil
	}
	return state, err
}

var logger = log.New(os.Stderr, "[STORE] ", log.LstdFlags)
