package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
)

// CreateTransfer submits a transfer. On success the history entry is cached
// and the outgoing transaction is applied to the source account. While
// offline the transfer is recorded locally as pending and queued.
func (r *Reconciler) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	if err := validateTransfer(req); err != nil {
		return domain.TransferResult{}, err
	}
	if r.remote == nil {
		return r.createLocalTransfer(ctx, req)
	}

	result, err := r.remote.CreateTransfer(ctx, req)
	if err != nil {
		if apperrors.IsConnectivity(err) {
			return r.createLocalTransfer(ctx, req)
		}
		return domain.TransferResult{}, err
	}

	result.SyncState = domain.SyncSynced
	if err := r.recordTransfer(ctx, req, result); err != nil {
		return domain.TransferResult{}, err
	}
	return result, nil
}

func (r *Reconciler) createLocalTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	result := domain.TransferResult{
		ID:              domain.NewLocalID(),
		Status:          domain.TransferPending,
		FromAccountID:   req.FromAccountID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		CreatedAt:       r.now(),
		SyncState:       domain.SyncLocal,
	}
	if _, err := r.AddTransaction(ctx, transferTransaction(req, result), req.FromAccountID); err != nil {
		return domain.TransferResult{}, err
	}
	if err := r.history.Put(ctx, result.ID, domain.HistoryFromResult(result)); err != nil {
		return domain.TransferResult{}, err
	}
	if err := r.enqueue(ctx, domain.OpCreateTransfer, result.ID, req); err != nil {
		return domain.TransferResult{}, err
	}
	return result, nil
}

// recordTransfer caches a confirmed transfer. A source account missing from
// the cache is not an error here; the next account fetch brings it in.
func (r *Reconciler) recordTransfer(ctx context.Context, req domain.TransferRequest, result domain.TransferResult) error {
	if err := r.history.Put(ctx, result.ID, domain.HistoryFromResult(result)); err != nil {
		return err
	}
	_, err := r.AddTransaction(ctx, transferTransaction(req, result), req.FromAccountID)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// confirmTransfer remaps a locally recorded transfer to its server id.
func (r *Reconciler) confirmTransfer(ctx context.Context, localID string, result domain.TransferResult) error {
	result.SyncState = domain.SyncSynced
	if err := remap(ctx, r, r.history, localID, result.ID, domain.HistoryFromResult(result)); err != nil {
		return err
	}
	return r.renameTransaction(ctx, result.FromAccountID, localID, result.ID)
}

// TransferHistory returns the transfer history, newest first offline.
func (r *Reconciler) TransferHistory(ctx context.Context) ([]domain.TransferHistory, error) {
	return fetch(ctx, r, "transfer_history",
		func(ctx context.Context) ([]domain.TransferHistory, error) {
			return r.remote.TransferHistory(ctx)
		},
		func(ctx context.Context, entries []domain.TransferHistory) error {
			for _, h := range entries {
				h.SyncState = domain.SyncSynced
				if err := r.history.Put(ctx, h.ID, h); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context) ([]domain.TransferHistory, error) {
			entries, err := r.history.List(ctx)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].CreatedAt.After(entries[j].CreatedAt)
			})
			return entries, nil
		},
	)
}

func transferTransaction(req domain.TransferRequest, result domain.TransferResult) domain.Transaction {
	return domain.Transaction{
		ID:          result.ID,
		Amount:      req.Amount,
		Type:        domain.TransactionTransfer,
		IsOutgoing:  true,
		Category:    "transfer",
		Description: req.Description,
		Date:        result.CreatedAt,
		AccountID:   req.FromAccountID,
	}
}

func validateTransfer(req domain.TransferRequest) error {
	switch {
	case req.FromAccountID == "":
		return fmt.Errorf("transfer: source account is required")
	case req.ToAccountNumber == "":
		return fmt.Errorf("transfer: destination account number is required")
	case !req.Amount.IsPositive():
		return fmt.Errorf("transfer: amount must be positive")
	}
	return nil
}
