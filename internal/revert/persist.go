package revert

import (
	"context"
	"encoding/json"
	"fmt"

	"qtsettings/internal/store"
)

// Persistence keeps the pending revert across restarts.
type Persistence[T any] interface {
	Load(ctx context.Context) (*Pending[T], error)
	Save(ctx context.Context, p Pending[T]) error
	Clear(ctx context.Context) error
}

// StorePersistence stores the pending revert as JSON under one key.
type StorePersistence[T any] struct {
	Store store.Store
	Key   string
}

func (s StorePersistence[T]) Load(ctx context.Context) (*Pending[T], error) {
	raw, ok, err := s.Store.Get(ctx, s.Key)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var p Pending[T]
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.Key, err)
	}
	return &p, nil
}

func (s StorePersistence[T]) Save(ctx context.Context, p Pending[T]) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, s.Key, string(data))
}

func (s StorePersistence[T]) Clear(ctx context.Context) error {
	return s.Store.Remove(ctx, s.Key)
}

// nopPersistence is used when no store is configured.
type nopPersistence[T any] struct{}

func (nopPersistence[T]) Load(context.Context) (*Pending[T], error) { return nil, nil }
func (nopPersistence[T]) Save(context.Context, Pending[T]) error    { return nil }
func (nopPersistence[T]) Clear(context.Context) error               { return nil }
