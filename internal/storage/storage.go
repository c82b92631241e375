// Package storage uploads avatar images to an external object store
// and resolves their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns the public URL of an object in the configured bucket.
	URL(key string) string
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// UploadAvatar stores an avatar image keyed by username, overwriting
// any previous upload, and returns its public URL.
func (s *Storage) UploadAvatar(ctx context.Context, username string, r io.Reader, size int64, contentType string) (string, error) {
	key := avatarKey(username)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return s.backend.URL(key), nil
}

// DeleteAvatar removes a previously uploaded avatar.
func (s *Storage) DeleteAvatar(ctx context.Context, username string) error {
	return s.backend.Delete(ctx, avatarKey(username))
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func avatarKey(username string) string {
	return fmt.Sprintf("avatars/%s", username)
}
