package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection is a typed view over one kind of a Cache.
type Collection[T any] struct {
	cache Cache
	kind  Kind
}

// NewCollection binds kind of cache to the element type T.
func NewCollection[T any](cache Cache, kind Kind) Collection[T] {
	return Collection[T]{cache: cache, kind: kind}
}

// Kind returns the collection's kind.
func (c Collection[T]) Kind() Kind { return c.kind }

// Get decodes the entity stored under id. ok is false when it is absent.
func (c Collection[T]) Get(ctx context.Context, id string) (v T, ok bool, err error) {
	data, err := c.cache.Get(ctx, c.kind, id)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("get %s/%s: %w", c.kind, id, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", c.kind, id, err)
	}
	return v, true, nil
}

// List decodes every entity of the collection.
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	records, err := c.cache.List(ctx, c.kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c.kind, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Put stores v under id, replacing any previous value.
func (c Collection[T]) Put(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.kind, id, err)
	}
	if err := c.cache.Put(ctx, c.kind, id, data); err != nil {
		return fmt.Errorf("put %s/%s: %w", c.kind, id, err)
	}
	return nil
}

// Delete removes the entity under id.
func (c Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.cache.Delete(ctx, c.kind, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.kind, id, err)
	}
	return nil
}
