package repository

import (
	"context"
	"sort"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/storage"
)

const entityAccount = "account"

// Accounts returns the user's accounts.
func (r *Reconciler) Accounts(ctx context.Context) ([]domain.Account, error) {
	return fetch(ctx, r, "accounts",
		func(ctx context.Context) ([]domain.Account, error) {
			return r.remote.Accounts(ctx)
		},
		func(ctx context.Context, accounts []domain.Account) error {
			for _, acct := range accounts {
				if err := r.MergeAccount(ctx, acct); err != nil {
					return err
				}
			}
			return nil
		},
		r.cachedAccounts,
	)
}

// Account returns one account.
func (r *Reconciler) Account(ctx context.Context, id string) (domain.Account, error) {
	return fetch(ctx, r, "account",
		func(ctx context.Context) (domain.Account, error) {
			return r.remote.Account(ctx, id)
		},
		r.MergeAccount,
		func(ctx context.Context) (domain.Account, error) {
			return r.cachedAccount(ctx, id)
		},
	)
}

// UpdateAccount applies upd to the cached account, then mirrors it to the
// network. While offline the update is queued.
func (r *Reconciler) UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) (domain.Account, error) {
	local, err := r.updateCachedAccount(ctx, id, upd)
	if err != nil {
		return domain.Account{}, err
	}
	if r.remote == nil {
		return local, nil
	}

	server, err := r.remote.UpdateAccount(ctx, id, upd)
	if err != nil {
		if apperrors.IsConnectivity(err) {
			return local, r.enqueue(ctx, domain.OpUpdateAccount, id, upd)
		}
		return domain.Account{}, err
	}
	if err := r.MergeAccount(ctx, server); err != nil {
		return domain.Account{}, err
	}
	return r.cachedAccount(ctx, id)
}

func (r *Reconciler) updateCachedAccount(ctx context.Context, id string, upd domain.AccountUpdate) (domain.Account, error) {
	unlock := r.locks.Lock(entityKey(storage.KindAccount, id))
	defer unlock()

	acct, err := r.cachedAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	acct.Name = upd.Name
	acct.IsActive = upd.IsActive
	acct.UpdatedAt = r.now()
	if err := r.accounts.Put(ctx, id, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// DeleteAccount removes the account from the cache, then from the server.
func (r *Reconciler) DeleteAccount(ctx context.Context, id string) error {
	unlock := r.locks.Lock(entityKey(storage.KindAccount, id))
	err := r.accounts.Delete(ctx, id)
	unlock()
	if err != nil {
		return err
	}
	return r.mirrorDelete(ctx, domain.OpDeleteAccount, id, func(ctx context.Context) error {
		return r.remote.DeleteAccount(ctx, id)
	})
}

// mirrorDelete sends a delete to the network, queueing it on connectivity
// failure. A cache-only repository keeps the delete local.
func (r *Reconciler) mirrorDelete(ctx context.Context, op domain.OperationType, id string, send func(context.Context) error) error {
	if r.remote == nil {
		return nil
	}
	err := send(ctx)
	if err == nil {
		return nil
	}
	if apperrors.IsConnectivity(err) {
		return r.enqueue(ctx, op, id, nil)
	}
	return err
}

func (r *Reconciler) cachedAccount(ctx context.Context, id string) (domain.Account, error) {
	acct, ok, err := r.accounts.Get(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, apperrors.NotFound(entityAccount, id)
	}
	return acct, nil
}

func (r *Reconciler) cachedAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}
