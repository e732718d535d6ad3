// Package redis implements storage.Cache on Redis hashes, one hash per kind.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/bankline/internal/storage"
)

// DefaultPrefix namespaces the hash keys.
const DefaultPrefix = "bankline"

// Store keeps each kind in the hash "<prefix>:<kind>".
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ storage.Cache = (*Store)(nil)

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open parses a redis:// URL, connects and pings the server.
func Open(ctx context.Context, rawURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

func (s *Store) key(kind storage.Kind) string {
	return s.prefix + ":" + string(kind)
}

func (s *Store) Get(ctx context.Context, kind storage.Kind, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.key(kind), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns the records of kind ordered by id.
func (s *Store) List(ctx context.Context, kind storage.Kind) ([]storage.Record, error) {
	entries, err := s.client.HGetAll(ctx, s.key(kind)).Result()
	if err != nil {
		return nil, err
	}
	records := make([]storage.Record, 0, len(entries))
	for id, data := range entries {
		records = append(records, storage.Record{ID: id, Data: []byte(data)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) Put(ctx context.Context, kind storage.Kind, id string, data []byte) error {
	return s.client.HSet(ctx, s.key(kind), id, data).Err()
}

func (s *Store) Delete(ctx context.Context, kind storage.Kind, id string) error {
	return s.client.HDel(ctx, s.key(kind), id).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
