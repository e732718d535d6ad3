package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/R3E-Network/bankline/internal/domain"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
)

var (
	// ErrSyncInProgress is returned when SyncPending is already running.
	ErrSyncInProgress = errors.New("repository: sync already in progress")
	// ErrNoRemote is returned when a cache-only repository is asked to sync.
	ErrNoRemote = errors.New("repository: no remote configured")
)

// errDropOperation marks a pending operation that can never succeed.
var errDropOperation = errors.New("operation can no longer be applied")

// SyncReport summarises one SyncPending run.
type SyncReport struct {
	Synced    int `json:"synced"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// supersedes maps a queued delete to the update it makes pointless.
var supersedes = map[domain.OperationType]domain.OperationType{
	domain.OpDeleteAccount: domain.OpUpdateAccount,
	domain.OpDeletePayee:   domain.OpUpdatePayee,
}

// enqueue records a deferred write. An operation already queued for the same
// entity keeps its place in the queue and takes the newer payload. Queueing a
// delete removes the entity's queued update.
func (r *Reconciler) enqueue(ctx context.Context, op domain.OperationType, entityID string, payload any) error {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	ops, err := r.pending.List(ctx)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	if payload != nil {
		if raw, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("enqueue %s: %w", op, err)
		}
	}

	var seq int64
	left := len(ops)
	for _, p := range ops {
		if p.Op == op && p.EntityID == entityID {
			p.Payload = raw
			p.Revision++
			return r.pending.Put(ctx, p.ID, p)
		}
		if stale, ok := supersedes[op]; ok && p.Op == stale && p.EntityID == entityID {
			if err := r.pending.Delete(ctx, p.ID); err != nil {
				return err
			}
			left--
		}
		if p.Seq > seq {
			seq = p.Seq
		}
	}

	pending := domain.PendingOperation{
		ID:        fmt.Sprintf("%s:%s:%d", op, entityID, seq+1),
		Seq:       seq + 1,
		Op:        op,
		EntityID:  entityID,
		Payload:   raw,
		CreatedAt: r.now(),
	}
	if err := r.pending.Put(ctx, pending.ID, pending); err != nil {
		return err
	}
	r.log.WithFields(map[string]interface{}{"op": op, "entity_id": entityID, "seq": pending.Seq}).
		Info("queued operation for sync")
	r.metrics.SetPending(left + 1)
	return nil
}

// Pending returns the queued operations in the order they were recorded.
func (r *Reconciler) Pending(ctx context.Context) ([]domain.PendingOperation, error) {
	ops, err := r.pending.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Seq < ops[j].Seq })
	return ops, nil
}

// discardPending removes every queued operation for entityID.
func (r *Reconciler) discardPending(ctx context.Context, entityID string) error {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	ops, err := r.pending.List(ctx)
	if err != nil {
		return err
	}
	left := len(ops)
	for _, op := range ops {
		if op.EntityID != entityID {
			continue
		}
		if err := r.pending.Delete(ctx, op.ID); err != nil {
			return err
		}
		left--
	}
	r.metrics.SetPending(left)
	return nil
}

// SyncPending replays queued operations in order. Replay stops at the first
// connectivity or transient failure so later writes never overtake earlier
// ones; operations the server rejects outright are dropped.
func (r *Reconciler) SyncPending(ctx context.Context) (SyncReport, error) {
	if r.remote == nil {
		return SyncReport{}, ErrNoRemote
	}
	if !r.syncMu.TryLock() {
		return SyncReport{}, ErrSyncInProgress
	}
	defer r.syncMu.Unlock()

	ops, err := r.Pending(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			report.Remaining += len(ops) - i
			r.metrics.SetPending(report.Remaining)
			return report, err
		}

		log := r.log.WithFields(map[string]interface{}{"op": op.Op, "entity_id": op.EntityID, "seq": op.Seq})
		err := r.replay(ctx, op)
		switch {
		case err == nil:
			report.Synced++
			r.metrics.RecordPendingOutcome("synced")
			log.Info("pending operation synced")
		case apperrors.IsConnectivity(err):
			r.metrics.RecordPendingOutcome("deferred")
			log.WithError(err).Info("still offline, sync deferred")
			report.Remaining += len(ops) - i
			r.metrics.SetPending(report.Remaining)
			return report, nil
		case apperrors.IsRetryable(err):
			if op.Attempts+1 < r.maxAttempts {
				attempts, perr := r.recordAttempt(ctx, op)
				if perr != nil {
					return report, perr
				}
				r.metrics.RecordPendingOutcome("deferred")
				log.WithError(err).WithField("attempts", attempts).Warn("transient failure, sync deferred")
				report.Remaining += len(ops) - i
				r.metrics.SetPending(report.Remaining)
				return report, nil
			}
			report.Dropped++
			r.metrics.RecordPendingOutcome("dropped")
			log.WithError(err).WithField("attempts", op.Attempts+1).Warn("pending operation dropped after repeated failures")
			r.abandon(ctx, op)
		default:
			report.Dropped++
			r.metrics.RecordPendingOutcome("dropped")
			log.WithError(err).Warn("pending operation dropped")
			r.abandon(ctx, op)
		}

		requeued, err := r.settle(ctx, op)
		if err != nil {
			return report, err
		}
		if requeued {
			report.Remaining++
			log.Info("operation changed during sync, newer payload stays queued")
		}
	}
	r.metrics.SetPending(report.Remaining)
	return report, nil
}

// settle removes a replayed operation from the queue. When the queued copy
// was replaced while the replay was in flight it stays queued and settle
// reports true.
func (r *Reconciler) settle(ctx context.Context, op domain.PendingOperation) (bool, error) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	current, ok, err := r.pending.Get(ctx, op.ID)
	if err != nil || !ok {
		return false, err
	}
	if current.Revision != op.Revision {
		return true, nil
	}
	return false, r.pending.Delete(ctx, op.ID)
}

// recordAttempt counts a failed replay on the queued copy of op, keeping any
// payload that replaced it in the meantime.
func (r *Reconciler) recordAttempt(ctx context.Context, op domain.PendingOperation) (int, error) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	current, ok, err := r.pending.Get(ctx, op.ID)
	if err != nil || !ok {
		return op.Attempts + 1, err
	}
	current.Attempts++
	return current.Attempts, r.pending.Put(ctx, current.ID, current)
}

// abandon records the local consequence of a dropped operation. A transfer
// the server never accepted is marked failed; the account balance is
// corrected by the next account fetch.
func (r *Reconciler) abandon(ctx context.Context, op domain.PendingOperation) {
	if op.Op != domain.OpCreateTransfer {
		return
	}
	unlock := r.locks.Lock(entityKey(r.history.Kind(), op.EntityID))
	defer unlock()

	h, ok, err := r.history.Get(ctx, op.EntityID)
	if err == nil && ok {
		h.Status = domain.TransferFailed
		err = r.history.Put(ctx, h.ID, h)
	}
	if err != nil {
		r.log.WithError(err).WithField("transfer_id", op.EntityID).Warn("could not mark transfer failed")
	}
}

func (r *Reconciler) replay(ctx context.Context, op domain.PendingOperation) error {
	switch op.Op {
	case domain.OpUpdateAccount:
		var upd domain.AccountUpdate
		if err := json.Unmarshal(op.Payload, &upd); err != nil {
			return fmt.Errorf("%w: %v", errDropOperation, err)
		}
		server, err := r.remote.UpdateAccount(ctx, op.EntityID, upd)
		if err != nil {
			return err
		}
		if _, ok, err := r.accounts.Get(ctx, op.EntityID); err != nil || !ok {
			return err
		}
		return r.MergeAccount(ctx, server)

	case domain.OpDeleteAccount:
		return r.remote.DeleteAccount(ctx, op.EntityID)

	case domain.OpCreatePayee:
		p, ok, err := r.payees.Get(ctx, op.EntityID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payee %s no longer cached", errDropOperation, op.EntityID)
		}
		server, err := r.remote.CreatePayee(ctx, p)
		if err != nil {
			return err
		}
		return r.RemapPayee(ctx, op.EntityID, server)

	case domain.OpUpdatePayee:
		p, ok, err := r.payees.Get(ctx, op.EntityID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payee %s no longer cached", errDropOperation, op.EntityID)
		}
		server, err := r.remote.UpdatePayee(ctx, p)
		if err != nil {
			return err
		}
		return r.putPayee(ctx, markSynced(server))

	case domain.OpDeletePayee:
		return r.remote.DeletePayee(ctx, op.EntityID)

	case domain.OpCreateTransfer:
		var req domain.TransferRequest
		if err := json.Unmarshal(op.Payload, &req); err != nil {
			return fmt.Errorf("%w: %v", errDropOperation, err)
		}
		result, err := r.remote.CreateTransfer(ctx, req)
		if err != nil {
			return err
		}
		if result.FromAccountID == "" {
			result.FromAccountID = req.FromAccountID
		}
		return r.confirmTransfer(ctx, op.EntityID, result)

	default:
		return fmt.Errorf("%w: unknown operation %q", errDropOperation, op.Op)
	}
}
