package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	logx "charitybot/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		b   backend
		err error
	)
	switch driver {
	case "file":
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg, log)
	case "redis":
		b, err = openRedis(cfg, log)
	case "memory":
		b = newMemory()
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return &codec{b: b}, nil
}

// NewMemory returns an in-memory Store. Tests use it directly.
func NewMemory() Store { return &codec{b: newMemory()} }

type codec struct {
	b backend
}

func (c *codec) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := c.b.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (c *codec) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return c.b.set(ctx, key, raw)
}

func (c *codec) Close() error { return c.b.Close() }

// Namespace scopes every key of st under ns. Closing the result does not close st.
func Namespace(st Store, ns string) Store {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return st
	}
	return &namespaced{st: st, prefix: ns + "/"}
}

type namespaced struct {
	st     Store
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string, out any) (bool, error) {
	return n.st.Get(ctx, n.prefix+key, out)
}

func (n *namespaced) Set(ctx context.Context, key string, v any) error {
	return n.st.Set(ctx, n.prefix+key, v)
}

func (n *namespaced) Close() error { return nil }
