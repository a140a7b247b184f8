// Package syncer drains the offline write queue once connectivity to the
// remote backend is restored.
package syncer

import (
	"context"

	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/queue"
	"github.com/nalvarez/comanda/internal/store"
)

// Reconciler replays pending operations against the remote backend.
type Reconciler struct {
	queue    *queue.Queue
	remote   store.Backend
	observer PassObserver
}

// PassObserver receives reconciliation pass lifecycle events. The realtime
// hub satisfies it.
type PassObserver interface {
	BroadcastSyncStarted(pending int)
	BroadcastSyncFinished(replayed, remaining int)
}

// NewReconciler creates a reconciler over the queue and remote backend.
func NewReconciler(q *queue.Queue, remote store.Backend) *Reconciler {
	return &Reconciler{queue: q, remote: remote}
}

// SetObserver installs the pass observer. Call before the first pass.
func (r *Reconciler) SetObserver(o PassObserver) {
	r.observer = o
}

// Result summarizes one reconciliation pass.
type Result struct {
	Replayed  int
	Remaining int
}

// Reconcile iterates the queue in FIFO order and replays each entry. A
// successful replay removes the entry; a failed one is retained in its
// original position, so surviving entries keep their submission order. The
// pass is not atomic: a crash mid-pass leaves some operations replayed and
// others still queued, which replay safely later because creates re-send
// the same client-generated id.
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	ops, err := r.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	if r.observer != nil {
		r.observer.BroadcastSyncStarted(len(ops))
	}

	result := &Result{}
	for _, op := range ops {
		select {
		case <-ctx.Done():
			result.Remaining = len(ops) - result.Replayed
			return result, ctx.Err()
		default:
		}

		if err := r.replay(ctx, &op); err != nil {
			if markErr := r.queue.MarkFailed(ctx, op.Seq, err); markErr != nil {
				return result, markErr
			}
			logging.Warn("replay failed, keeping queued", logging.Fields{
				"seq":   op.Seq,
				"kind":  op.Kind,
				"table": op.Table,
			})
			continue
		}

		if err := r.queue.Remove(ctx, op.Seq); err != nil {
			return result, err
		}
		result.Replayed++
	}

	result.Remaining = len(ops) - result.Replayed
	if r.observer != nil {
		r.observer.BroadcastSyncFinished(result.Replayed, result.Remaining)
	}
	logging.Info("reconciliation pass finished", logging.Fields{
		"replayed":  result.Replayed,
		"remaining": result.Remaining,
	})
	return result, nil
}

// replay re-issues one pending operation against the remote backend.
func (r *Reconciler) replay(ctx context.Context, op *models.PendingOp) error {
	payload, err := op.DecodePayload()
	if err != nil {
		return err
	}

	switch op.Kind {
	case models.OpCreate:
		_, err = r.remote.Create(ctx, op.Table, payload)
	case models.OpUpdate:
		_, err = r.remote.Update(ctx, op.Table, op.RecordID, payload)
	case models.OpDelete:
		_, err = r.remote.Delete(ctx, op.Table, op.RecordID)
	default:
		return nil
	}
	return err
}
