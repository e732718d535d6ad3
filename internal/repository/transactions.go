package repository

import (
	"context"
	"fmt"

	"github.com/R3E-Network/bankline/internal/bankapi"
	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/storage"
)

// Transactions returns one page of an account's transactions, newest first.
// Offline, the page is cut from the cached account.
func (r *Reconciler) Transactions(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = bankapi.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return fetch(ctx, r, "transactions",
		func(ctx context.Context) ([]domain.Transaction, error) {
			return r.remote.Transactions(ctx, accountID, limit, offset)
		},
		func(ctx context.Context, txs []domain.Transaction) error {
			return r.MergeTransactions(ctx, accountID, txs)
		},
		func(ctx context.Context) ([]domain.Transaction, error) {
			acct, err := r.cachedAccount(ctx, accountID)
			if err != nil {
				return nil, err
			}
			return page(acct.SortedTransactions(), limit, offset), nil
		},
	)
}

// MergeTransactions attaches server transactions to a cached account. Known
// ids are refreshed without touching the balance. Transactions for an
// account that is not cached are not stored.
func (r *Reconciler) MergeTransactions(ctx context.Context, accountID string, txs []domain.Transaction) error {
	unlock := r.locks.Lock(entityKey(storage.KindAccount, accountID))
	defer unlock()

	acct, ok, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		r.log.WithField("account_id", accountID).Debug("transactions for uncached account not stored")
		return nil
	}
	mergeTransactions(&acct, txs)
	return r.accounts.Put(ctx, accountID, acct)
}

// AddTransaction appends tx to the cached account and applies its balance
// delta. A transaction whose id is already attached is ignored, so repeated
// calls apply the delta once.
func (r *Reconciler) AddTransaction(ctx context.Context, tx domain.Transaction, accountID string) (domain.Account, error) {
	if err := tx.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("add transaction: %w", err)
	}

	unlock := r.locks.Lock(entityKey(storage.KindAccount, accountID))
	defer unlock()

	acct, err := r.cachedAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if acct.HasTransaction(tx.ID) {
		return acct, nil
	}

	tx.AccountID = accountID
	acct.Transactions = append(acct.Transactions, tx)
	acct.Balance = acct.Balance.Add(tx.Delta())
	acct.UpdatedAt = r.now()
	if err := r.accounts.Put(ctx, accountID, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// renameTransaction swaps a local transaction id for the server one. If the
// server transaction was already merged, the local copy is dropped.
func (r *Reconciler) renameTransaction(ctx context.Context, accountID, oldID, newID string) error {
	unlock := r.locks.Lock(entityKey(storage.KindAccount, accountID))
	defer unlock()

	acct, ok, err := r.accounts.Get(ctx, accountID)
	if err != nil || !ok {
		return err
	}
	i := acct.FindTransaction(oldID)
	if i < 0 {
		return nil
	}
	if acct.HasTransaction(newID) {
		acct.Transactions = append(acct.Transactions[:i], acct.Transactions[i+1:]...)
	} else {
		acct.Transactions[i].ID = newID
	}
	return r.accounts.Put(ctx, accountID, acct)
}

func page(txs []domain.Transaction, limit, offset int) []domain.Transaction {
	if offset >= len(txs) {
		return []domain.Transaction{}
	}
	end := offset + limit
	if end > len(txs) {
		end = len(txs)
	}
	return txs[offset:end]
}

// isNotFound reports a missing cached entity.
func isNotFound(err error) bool {
	return apperrors.KindOf(err) == apperrors.KindNotFound
}
