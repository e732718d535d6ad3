package repository

import (
	"context"
	"sort"
	"time"

	"github.com/R3E-Network/bankline/internal/domain"
	"github.com/R3E-Network/bankline/internal/storage"
)

// MergeAccount merges a server account into the cache under the account lock.
func (r *Reconciler) MergeAccount(ctx context.Context, server domain.Account) error {
	unlock := r.locks.Lock(entityKey(storage.KindAccount, server.ID))
	defer unlock()
	return r.mergeAccountLocked(ctx, server)
}

// mergeAccountLocked overwrites the mutable fields of an existing account or
// inserts a new one. Embedded transactions merge by id and never touch the
// balance; the server balance is authoritative.
func (r *Reconciler) mergeAccountLocked(ctx context.Context, server domain.Account) error {
	existing, ok, err := r.accounts.Get(ctx, server.ID)
	if err != nil {
		return err
	}

	if !ok {
		acct := server
		acct.Transactions = nil
		if acct.UpdatedAt.IsZero() {
			acct.UpdatedAt = r.now()
		}
		mergeTransactions(&acct, server.Transactions)
		return r.accounts.Put(ctx, acct.ID, acct)
	}

	changed := existing.Name != server.Name ||
		existing.Type != server.Type ||
		existing.Number != server.Number ||
		!existing.Balance.Equal(server.Balance) ||
		existing.IsActive != server.IsActive

	existing.Name = server.Name
	existing.Type = server.Type
	existing.Number = server.Number
	existing.Balance = server.Balance
	existing.IsActive = server.IsActive
	existing.UpdatedAt = refreshedAt(existing.UpdatedAt, server.UpdatedAt, changed, r.now)
	mergeTransactions(&existing, server.Transactions)
	return r.accounts.Put(ctx, existing.ID, existing)
}

// refreshedAt picks the new updatedAt: the server's value when present,
// otherwise the clock, keeping the old value when nothing changed.
func refreshedAt(old, server time.Time, changed bool, now func() time.Time) time.Time {
	if !server.IsZero() {
		return server
	}
	if !changed && !old.IsZero() {
		return old
	}
	return now()
}

// mergeTransactions refreshes known transactions and appends unknown ones,
// reassigning ownership to acct. Balances are left alone.
func mergeTransactions(acct *domain.Account, incoming []domain.Transaction) {
	for _, tx := range incoming {
		tx.AccountID = acct.ID
		if i := acct.FindTransaction(tx.ID); i >= 0 {
			acct.Transactions[i] = tx
			continue
		}
		acct.Transactions = append(acct.Transactions, tx)
	}
}

// remap moves the entity stored under oldID to newID, marking it synced.
// The new record is written before the old one is deleted.
func remap[T any](ctx context.Context, r *Reconciler, coll storage.Collection[T], oldID, newID string, v T) error {
	unlock := r.lockPair(coll.Kind(), oldID, newID)
	defer unlock()

	if err := coll.Put(ctx, newID, v); err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}
	return coll.Delete(ctx, oldID)
}

// lockPair locks two entity keys in a fixed order.
func (r *Reconciler) lockPair(kind storage.Kind, a, b string) func() {
	if a == b {
		return r.locks.Lock(entityKey(kind, a))
	}
	keys := []string{entityKey(kind, a), entityKey(kind, b)}
	sort.Strings(keys)
	first := r.locks.Lock(keys[0])
	second := r.locks.Lock(keys[1])
	return func() {
		second()
		first()
	}
}
