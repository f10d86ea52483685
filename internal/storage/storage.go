// Package storage writes account archives to object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/types"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Storage wraps an ObjectStorage backend with the archive operations used
// by account deletion.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend named by cfg.Backend. It returns nil when archives
// are disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}

	s := NewStorage(backend)
	if err := s.backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return s, nil
}

// ArchiveKey returns the object key of an archive written at archive.DeletedAt.
func ArchiveKey(archive types.AccountArchive) string {
	return fmt.Sprintf("archives/%s/%d.json", archive.User.ID, archive.DeletedAt.Unix())
}

// ArchiveAccount uploads a JSON snapshot of the account and returns its key.
func (s *Storage) ArchiveAccount(ctx context.Context, archive types.AccountArchive) (string, error) {
	data, err := json.Marshal(archive)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	key := ArchiveKey(archive)
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// LoadArchive reads back an archive written by ArchiveAccount.
func (s *Storage) LoadArchive(ctx context.Context, key string) (types.AccountArchive, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return types.AccountArchive{}, err
	}
	defer rc.Close()

	var archive types.AccountArchive
	if err := json.NewDecoder(rc).Decode(&archive); err != nil {
		return types.AccountArchive{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return archive, nil
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
