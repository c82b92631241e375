// Package cache provides a key-value cache with per-entry expiry, used
// as a read-through accelerator in front of the user store.
package cache

import (
	"context"
	"time"
)

// Cache defines the get/set/delete operations used by the app. Get
// reports absence through its second return value; an absent key is not
// an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
