package state

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
)

// FileStore keeps the snapshot in a gob file. Writes go to a temporary file
// that replaces the previous snapshot only once fully written.
type FileStore struct {
	path string
}

// Ensure FileStore implements port.StateStore.
var _ port.StateStore = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(ctx context.Context, state port.State) error {
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := gob.NewEncoder(f).Encode(state); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Load(ctx context.Context) (port.State, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return port.State{}, port.ErrNoState
	}
	if err != nil {
		return port.State{}, err
	}
	defer func() { _ = f.Close() }()

	var state port.State
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return port.State{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

func (s *FileStore) Close() error {
	return nil
}
