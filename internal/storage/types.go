// Package storage persists JSON values under string keys for restart recovery.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (journal + snapshot)
//   - "sqlite": SQLite database file
//   - "redis": Redis keys under Prefix
//   - "memory": process-local map, lost on restart
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	URL    string // redis only
	Prefix string // redis only; default "charitybot:"
}

// Store is a small durable key/value store. Values are JSON encoded.
type Store interface {
	// Get decodes the value under key into out. ok is false when the key was never written.
	Get(ctx context.Context, key string, out any) (ok bool, err error)
	Set(ctx context.Context, key string, v any) error
	Close() error
}

// backend is what a driver implements; Store adds the JSON codec on top.
type backend interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	set(ctx context.Context, key string, b []byte) error
	Close() error
}
