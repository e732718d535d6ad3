// Package system runs the long-lived components of the client in a fixed
// order and stops them in reverse.
package system

import "context"

// Service represents a lifecycle-managed component. Background workers such as
// the connectivity monitor and the outbox syncer implement it so the manager
// can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
