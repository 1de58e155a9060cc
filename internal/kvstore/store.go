// Package kvstore is the namespaced key/value store behind the per-ad
// counters.
package kvstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("key not found")
	// ErrStorageUnavailable is wrapped by every StorageError.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is a namespaced key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Increment adds delta to the integer stored at key, creating it at 0,
	// and returns the new value.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

// StorageError reports an operation that kept failing after every retry.
type StorageError struct {
	Op       string
	Key      string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q failed after %d attempts: %v", e.Op, e.Key, e.Attempts, e.Err)
}

// Unwrap exposes both ErrStorageUnavailable and the last underlying error.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

func namespaced(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}
