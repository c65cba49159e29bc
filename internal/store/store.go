// Package store persists user preferences and the DNS host list.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrBuiltinImmutable = errors.New("builtin host records cannot be modified")
	ErrInvalidHost      = errors.New("invalid host record")
	ErrUnknownKey       = errors.New("unknown preference key")
	ErrInvalidValue     = errors.New("invalid preference value")
)

// Store is the raw persistence capability. Values are strings; typing and
// defaults live in Prefs. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error

	// LoadHosts returns the stored host list as saved, nil when nothing
	// has been saved yet.
	LoadHosts(ctx context.Context) ([]HostRecord, error)
	SaveHosts(ctx context.Context, hosts []HostRecord) error

	Close() error
}
