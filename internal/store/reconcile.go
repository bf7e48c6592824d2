package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"flightdeck/internal/mirror"
	"flightdeck/internal/remote"
)

// Reconciler drains the offline-write journal against a recovered remote.
// Replay is last-writer-wins: each journaled operation is applied as-is, in
// order, and a conflicting remote state is simply overwritten. Entries that
// fail to replay are kept with their last error so the operator can inspect
// them; entries whose target the remote rejects outright are surfaced in the
// result list, never dropped silently.
type Reconciler struct {
	Remote remote.Adapter
	Mirror mirror.Mirror
	Logger *slog.Logger
}

// ReplayResult reports the outcome of one journal entry.
type ReplayResult struct {
	Op         string `json:"op"`
	Collection string `json:"collection"`
	RecordID   string `json:"record_id,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// Drain replays the pending journal oldest first. It stops early only when
// the remote becomes unreachable again; per-record failures are recorded and
// the drain continues.
func (r Reconciler) Drain(ctx context.Context) ([]ReplayResult, error) {
	if r.Remote == nil {
		return nil, nil
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	ops, err := r.Mirror.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	var results []ReplayResult
	for _, op := range ops {
		err := r.replay(ctx, op)
		res := ReplayResult{Op: op.Op, Collection: op.Collection, RecordID: op.RecordID}
		if err != nil {
			err = Classify(err)
			if degradable(err) {
				// Lost the remote again; leave the rest of the journal intact.
				return results, err
			}
			res.Err = err
			res.Error = err.Error()
			results = append(results, res)
			if merr := r.Mirror.MarkPendingError(ctx, op.ID, err.Error()); merr != nil {
				return results, merr
			}
			log.Warn("replay failed", "op", op.Op, "collection", op.Collection, "record_id", op.RecordID, "error", err)
			continue
		}
		results = append(results, res)
		if err := r.Mirror.DeletePending(ctx, op.ID); err != nil {
			return results, err
		}
		log.Info("replayed offline write", "op", op.Op, "collection", op.Collection, "record_id", op.RecordID)
	}
	return results, nil
}

func (r Reconciler) replay(ctx context.Context, op mirror.PendingOp) error {
	switch op.Op {
	case "create":
		var record map[string]any
		if err := json.Unmarshal([]byte(op.Payload), &record); err != nil {
			return fmt.Errorf("decode journaled create: %w", err)
		}
		// The locally minted id travels with the record; identifiers are
		// permanent once assigned.
		_, err := r.Remote.Create(ctx, op.Collection, record)
		return err
	case "update":
		var fields map[string]any
		if err := json.Unmarshal([]byte(op.Payload), &fields); err != nil {
			return fmt.Errorf("decode journaled update: %w", err)
		}
		_, err := r.Remote.Update(ctx, op.Collection, op.RecordID, fields)
		return err
	case "delete":
		err := r.Remote.Delete(ctx, op.Collection, op.RecordID)
		if err != nil && errors.Is(Classify(err), ErrNotFound) {
			// Already gone remotely; the intent is satisfied.
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown journaled op %q", op.Op)
	}
}

// Failed filters a drain result down to the entries that did not replay.
func Failed(results []ReplayResult) []ReplayResult {
	var out []ReplayResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
