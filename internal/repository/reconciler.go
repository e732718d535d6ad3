// Package repository reconciles bank API results with the local entity cache.
// Reads go to the network when possible and fall back to the cache on
// connectivity failures; writes land in the cache first and are mirrored to
// the network, or deferred to the outbox while offline.
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/metrics"
	"github.com/R3E-Network/bankline/internal/storage"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// Remote is the network side of the repository. *bankapi.Client satisfies it.
type Remote interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
	Account(ctx context.Context, id string) (domain.Account, error)
	UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) (domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	Transactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error)
	CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error)
	TransferHistory(ctx context.Context) ([]domain.TransferHistory, error)
	Payees(ctx context.Context) ([]domain.FrequentAccount, error)
	CreatePayee(ctx context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error)
	UpdatePayee(ctx context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error)
	DeletePayee(ctx context.Context, id string) error
}

// State is the progress of one fetch.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateMergingLocal
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMergingLocal:
		return "merging_local"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateObserver receives fetch state transitions.
type StateObserver func(op string, state State)

// DefaultMaxAttempts bounds how often a pending operation is replayed after
// transient failures before it is dropped.
const DefaultMaxAttempts = 5

// Config configures a Reconciler.
type Config struct {
	Cache storage.Cache
	// Remote is nil for a cache-only repository.
	Remote   Remote
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	Observer StateObserver
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
}

// Reconciler is the offline-first repository for accounts, transactions,
// transfers and payees.
type Reconciler struct {
	accounts storage.Collection[domain.Account]
	history  storage.Collection[domain.TransferHistory]
	payees   storage.Collection[domain.FrequentAccount]
	pending  storage.Collection[domain.PendingOperation]

	remote      Remote
	log         *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	observer    StateObserver
	maxAttempts int

	locks   *keyedMutex
	queueMu sync.Mutex
	syncMu  sync.Mutex
}

// New creates a reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("repository: cache is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("repository")
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Reconciler{
		accounts:    storage.NewCollection[domain.Account](cfg.Cache, storage.KindAccount),
		history:     storage.NewCollection[domain.TransferHistory](cfg.Cache, storage.KindTransferHistory),
		payees:      storage.NewCollection[domain.FrequentAccount](cfg.Cache, storage.KindPayee),
		pending:     storage.NewCollection[domain.PendingOperation](cfg.Cache, storage.KindPending),
		remote:      cfg.Remote,
		log:         log,
		metrics:     cfg.Metrics,
		now:         now,
		observer:    cfg.Observer,
		maxAttempts: maxAttempts,
		locks:       newKeyedMutex(),
	}, nil
}

// Online reports whether a remote is configured.
func (r *Reconciler) Online() bool { return r.remote != nil }

func (r *Reconciler) transition(op string, s State) {
	r.log.WithFields(map[string]interface{}{"op": op, "state": s.String()}).Debug("fetch state")
	if r.observer != nil {
		r.observer(op, s)
	}
}

// fetch runs the network-first, cache-fallback read shared by every entity.
func fetch[T any](ctx context.Context, r *Reconciler, op string,
	remote func(context.Context) (T, error),
	merge func(context.Context, T) error,
	local func(context.Context) (T, error),
) (T, error) {
	var zero T
	r.transition(op, StateFetching)
	defer r.transition(op, StateDone)

	if r.remote == nil {
		r.transition(op, StateMergingLocal)
		return local(ctx)
	}

	data, err := remote(ctx)
	if err == nil {
		r.transition(op, StateMergingLocal)
		if err := merge(ctx, data); err != nil {
			return zero, fmt.Errorf("%s: merge: %w", op, err)
		}
		return data, nil
	}
	if !apperrors.IsConnectivity(err) {
		return zero, err
	}

	r.log.WithError(err).WithField("op", op).Info("network unavailable, serving cached data")
	r.metrics.RecordFallback(op)
	r.transition(op, StateMergingLocal)
	return local(ctx)
}

// keyedMutex serialises mutations per entity key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func entityKey(kind storage.Kind, id string) string {
	return string(kind) + "/" + id
}
