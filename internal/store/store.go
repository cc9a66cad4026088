// Package store defines the durable key-value persistence used for credential
// and profile records, with in-memory, SQLite and encrypted drivers.
package store

import (
	"context"
	"errors"
)

// ErrNotFound reports a missing key. Readers at the credential layer treat it
// as "no data", never as a failure.
var ErrNotFound = errors.New("store: key not found")

// KV is durable key-value storage. All writes are last-write-wins replacements
// with no merge; drivers serialize concurrent writes internally.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces any prior value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
