package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"qmaze/qtable"
)

// FileStore keeps one binary snapshot file per key under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) string {
	// keys like "qmaze:state" are not portable file names
	return filepath.Join(f.dir, strings.ReplaceAll(key, ":", "_")+".bin")
}

func (f *FileStore) Load(_ context.Context, key string) (state qtable.State, err error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return state, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return state, err
	}
	err = state.UnmarshalBinary(data)
	return
}

// Save writes to a temp file and renames it over the old snapshot, so a crash
// mid-write leaves the previous state intact.
func (f *FileStore) Save(_ context.Context, key string, state qtable.State) error {
	data, err := state.MarshalBinary()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "state-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), f.path(key)); err != nil {
		return err
	}
	logger.Printf("saved %s seed=%d", key, state.Seed)
	return nil
}
