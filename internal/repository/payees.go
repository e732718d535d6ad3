package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/storage"
)

const entityPayee = "payee"

// Payees returns the saved payees.
func (r *Reconciler) Payees(ctx context.Context) ([]domain.FrequentAccount, error) {
	return fetch(ctx, r, "payees",
		func(ctx context.Context) ([]domain.FrequentAccount, error) {
			return r.remote.Payees(ctx)
		},
		func(ctx context.Context, payees []domain.FrequentAccount) error {
			for _, p := range payees {
				if err := r.putPayee(ctx, markSynced(p)); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context) ([]domain.FrequentAccount, error) {
			payees, err := r.payees.List(ctx)
			if err != nil {
				return nil, err
			}
			sort.Slice(payees, func(i, j int) bool { return payees[i].Name < payees[j].Name })
			return payees, nil
		},
	)
}

// Payee returns a cached payee.
func (r *Reconciler) Payee(ctx context.Context, id string) (domain.FrequentAccount, error) {
	p, ok, err := r.payees.Get(ctx, id)
	if err != nil {
		return domain.FrequentAccount{}, err
	}
	if !ok {
		return domain.FrequentAccount{}, apperrors.NotFound(entityPayee, id)
	}
	return p, nil
}

// SavePayee stores p locally and mirrors it. A payee without an id gets a
// local id; payees with a local id are created on the server and remapped to
// the server id once confirmed.
func (r *Reconciler) SavePayee(ctx context.Context, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	if p.AccountNumber == "" {
		return domain.FrequentAccount{}, fmt.Errorf("save payee: account number is required")
	}
	if p.ID == "" {
		p.ID = domain.NewLocalID()
	}
	creating := domain.IsLocalID(p.ID)
	if creating {
		p.SyncState = domain.SyncLocal
	}
	if err := r.putPayee(ctx, p); err != nil {
		return domain.FrequentAccount{}, err
	}
	if r.remote == nil {
		return p, nil
	}

	if creating {
		server, err := r.remote.CreatePayee(ctx, p)
		if err != nil {
			return r.deferPayee(ctx, err, domain.OpCreatePayee, p)
		}
		server = markSynced(server)
		if err := r.RemapPayee(ctx, p.ID, server); err != nil {
			return domain.FrequentAccount{}, err
		}
		return server, nil
	}

	server, err := r.remote.UpdatePayee(ctx, p)
	if err != nil {
		return r.deferPayee(ctx, err, domain.OpUpdatePayee, p)
	}
	server = markSynced(server)
	if err := r.putPayee(ctx, server); err != nil {
		return domain.FrequentAccount{}, err
	}
	return server, nil
}

func (r *Reconciler) deferPayee(ctx context.Context, err error, op domain.OperationType, p domain.FrequentAccount) (domain.FrequentAccount, error) {
	if !apperrors.IsConnectivity(err) {
		return domain.FrequentAccount{}, err
	}
	if err := r.enqueue(ctx, op, p.ID, nil); err != nil {
		return domain.FrequentAccount{}, err
	}
	return p, nil
}

// RemapPayee replaces the payee cached under oldID with server, stored under
// the server id as synced. No entry remains under oldID.
func (r *Reconciler) RemapPayee(ctx context.Context, oldID string, server domain.FrequentAccount) error {
	if server.ID == "" {
		return fmt.Errorf("remap payee %s: server id is empty", oldID)
	}
	return remap(ctx, r, r.payees, oldID, server.ID, markSynced(server))
}

// DeletePayee removes the payee from the cache and from the server. A payee
// that only exists locally never reaches the network; its queued writes are
// discarded.
func (r *Reconciler) DeletePayee(ctx context.Context, id string) error {
	unlock := r.locks.Lock(entityKey(storage.KindPayee, id))
	err := r.payees.Delete(ctx, id)
	unlock()
	if err != nil {
		return err
	}

	if domain.IsLocalID(id) {
		return r.discardPending(ctx, id)
	}
	return r.mirrorDelete(ctx, domain.OpDeletePayee, id, func(ctx context.Context) error {
		return r.remote.DeletePayee(ctx, id)
	})
}

func (r *Reconciler) putPayee(ctx context.Context, p domain.FrequentAccount) error {
	unlock := r.locks.Lock(entityKey(storage.KindPayee, p.ID))
	defer unlock()
	return r.payees.Put(ctx, p.ID, p)
}

func markSynced(p domain.FrequentAccount) domain.FrequentAccount {
	p.SyncState = domain.SyncSynced
	return p
}
