package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNotFound = errors.New("blob not found")

// Store is the content-addressed interface the coordinator externalizes
// large weight payloads through. Put returns the content identifier of
// the stored bytes; identical content yields an identical identifier.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

type fsStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore returns a filesystem-backed content-addressed store rooted
// at basePath. Blobs are keyed by the hex sha256 of their content and
// published atomically, so a reader never observes a partial write.
func NewFSStore(basePath string) (Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	path := filepath.Join(s.basePath, id)

	// Content-addressed writes are idempotent.
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	tmp, err := os.CreateTemp(s.basePath, "blob-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish blob: %w", err)
	}

	return id, nil
}

func (s *fsStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" || id != filepath.Base(id) {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.basePath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return data, nil
}
