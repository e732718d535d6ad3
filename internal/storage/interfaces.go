// Package storage defines the local entity cache used by the repository layer.
// Entities are stored as JSON documents keyed by (kind, id).
package storage

import (
	"context"
	"errors"
)

// Kind names an entity collection.
type Kind string

const (
	KindAccount         Kind = "accounts"
	KindTransferHistory Kind = "transfer_history"
	KindPayee           Kind = "payees"
	KindPending         Kind = "pending_operations"
	KindSession         Kind = "session"
)

// ErrNotFound is returned by Get when no entity is stored under the id.
var ErrNotFound = errors.New("storage: entity not found")

// Record is one stored document.
type Record struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

// Cache persists entity documents. Implementations must be safe for
// concurrent use. Delete of a missing id is not an error.
type Cache interface {
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)
	List(ctx context.Context, kind Kind) ([]Record, error)
	Put(ctx context.Context, kind Kind, id string, data []byte) error
	Delete(ctx context.Context, kind Kind, id string) error
}
