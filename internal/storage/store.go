// Package storage persists raw history payloads keyed by session id.
package storage

import (
	"context"
	"fmt"
	"slices"
)

// Store is a flat, durable key-value namespace of session records.
type Store interface {
	// List returns every stored key, newest first by key order. The backing
	// namespace is created if it does not exist yet.
	List(ctx context.Context) ([]string, error)

	// Read returns the payload for id. A missing key is reported with
	// found == false and a nil error.
	Read(ctx context.Context, id string) (payload []byte, found bool, err error)

	// Write replaces the payload for id entirely.
	Write(ctx context.Context, id string, payload []byte) error

	// Delete removes id. Deleting a missing key is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// Error is returned when the underlying medium fails.
type Error struct {
	Op  string // "list", "read", "write", "delete"
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newestFirst sorts keys in descending order in place and returns them.
func newestFirst(keys []string) []string {
	slices.Sort(keys)
	slices.Reverse(keys)
	return keys
}
