// Package store presents uniform CRUD over a remote collection backend with a
// durable local mirror. Every call attempts the remote within a bounded time
// budget and degrades to the mirror on timeout or transport failure; reads
// recover silently, writes are journaled for later replay. Permission failures
// are never swallowed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flightdeck/internal/mirror"
	"flightdeck/internal/remote"
)

// Failure taxonomy surfaced to callers.
var (
	ErrTimeout          = errors.New("remote call exceeded time budget")
	ErrUnreachable      = errors.New("remote unreachable")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

// Entity is any record the store can manage. Implemented by pointer types in
// the domain package.
type Entity interface {
	Identity() string
	StampIdentity(id, createdAt string)
}

// Patch enumerates changed fields keyed by wire name.
type Patch interface {
	Fields() map[string]any
}

// Where is a structured equality predicate, pushed to the remote when
// reachable. Arbitrary function predicates go through FilterFunc and are only
// ever evaluated locally.
type Where map[string]any

const DefaultTimeout = 8 * time.Second

// Store is the per-entity-type CRUD facade. Remote may be nil, in which case
// the store runs purely on the mirror.
type Store[T Entity] struct {
	Collection string
	Remote     remote.Adapter
	Mirror     mirror.Mirror
	Timeout    time.Duration
	Now        func() time.Time
	NewID      func() string
}

func New[T Entity](collection string, r remote.Adapter, m mirror.Mirror) *Store[T] {
	return &Store[T]{
		Collection: collection,
		Remote:     r,
		Mirror:     m,
		Timeout:    DefaultTimeout,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

func (s *Store[T]) now() string {
	n := s.Now
	if n == nil {
		n = time.Now
	}
	return n().UTC().Format(time.RFC3339)
}

func (s *Store[T]) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Store[T]) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// List returns all records, remote-first with mirror fallback. A successful
// remote read replaces the mirrored collection wholesale.
func (s *Store[T]) List(ctx context.Context, orderKey string) ([]T, error) {
	if s.Remote != nil {
		recs, err := race(ctx, s.timeout(), func(ctx context.Context) ([]T, error) {
			raws, err := s.Remote.List(ctx, s.Collection, orderKey)
			if err != nil {
				return nil, err
			}
			recs, err := decodeRaws[T](raws)
			if err != nil {
				return nil, err
			}
			if err := s.replaceMirror(ctx, recs); err != nil {
				return nil, err
			}
			return recs, nil
		})
		if err == nil {
			return recs, nil
		}
		if !degradable(err) {
			return nil, err
		}
	}
	return s.loadMirror(ctx)
}

// Filter evaluates a structured equality predicate, pushed to the remote when
// reachable and applied against the mirror otherwise. Matched records are
// merged into the mirrored collection by id.
func (s *Store[T]) Filter(ctx context.Context, where Where) ([]T, error) {
	if s.Remote != nil {
		recs, err := race(ctx, s.timeout(), func(ctx context.Context) ([]T, error) {
			raws, err := s.Remote.Filter(ctx, s.Collection, where)
			if err != nil {
				return nil, err
			}
			recs, err := decodeRaws[T](raws)
			if err != nil {
				return nil, err
			}
			if err := s.mergeMirror(ctx, recs); err != nil {
				return nil, err
			}
			return recs, nil
		})
		if err == nil {
			return recs, nil
		}
		if !degradable(err) {
			return nil, err
		}
	}
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return nil, err
	}
	return filterLocal(recs, where)
}

// FilterFunc evaluates an arbitrary predicate. The remote has no way to run
// it, so the freshest fetchable collection is filtered locally.
func (s *Store[T]) FilterFunc(ctx context.Context, fn func(T) bool) ([]T, error) {
	recs, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var res []T
	for _, r := range recs {
		if fn(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

// Get returns a single record by id via Filter.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	recs, err := s.Filter(ctx, Where{"id": id})
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		return zero, ErrNotFound
	}
	return recs[0], nil
}

// Create inserts a record. When the remote is reachable its returned record is
// authoritative; otherwise an id and creation timestamp are synthesized
// locally, the record is prepended to the mirror, and the write is journaled.
func (s *Store[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if s.Remote != nil {
		created, err := race(ctx, s.timeout(), func(ctx context.Context) (T, error) {
			raw, err := s.Remote.Create(ctx, s.Collection, rec)
			if err != nil {
				return zero, err
			}
			created, err := decodeRaw[T](raw)
			if err != nil {
				return zero, err
			}
			if err := s.mergeMirror(ctx, []T{created}); err != nil {
				return zero, err
			}
			return created, nil
		})
		if err == nil {
			return created, nil
		}
		if !degradable(err) {
			return zero, err
		}
	}
	rec.StampIdentity(s.newID(), s.now())
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return zero, err
	}
	recs = append([]T{rec}, recs...)
	if err := s.replaceMirror(ctx, recs); err != nil {
		return zero, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return zero, err
	}
	if err := s.Mirror.AppendPending(ctx, "create", s.Collection, rec.Identity(), payload); err != nil {
		return zero, err
	}
	return rec, nil
}

// Update patches a record by id. Offline it shallow-merges the patch into the
// mirrored record and journals the patch; NotFound if the id is absent from
// the mirror while offline.
func (s *Store[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	var zero T
	fields := patch.Fields()
	if s.Remote != nil {
		updated, err := race(ctx, s.timeout(), func(ctx context.Context) (T, error) {
			raw, err := s.Remote.Update(ctx, s.Collection, id, fields)
			if err != nil {
				return zero, err
			}
			updated, err := decodeRaw[T](raw)
			if err != nil {
				return zero, err
			}
			if err := s.mergeMirror(ctx, []T{updated}); err != nil {
				return zero, err
			}
			return updated, nil
		})
		if err == nil {
			return updated, nil
		}
		if !degradable(err) {
			return zero, err
		}
	}
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return zero, err
	}
	idx := -1
	for i, r := range recs {
		if r.Identity() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return zero, fmt.Errorf("%s %s: %w", s.Collection, id, ErrNotFound)
	}
	merged, err := mergeRecord(recs[idx], fields)
	if err != nil {
		return zero, err
	}
	recs[idx] = merged
	if err := s.replaceMirror(ctx, recs); err != nil {
		return zero, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return zero, err
	}
	if err := s.Mirror.AppendPending(ctx, "update", s.Collection, id, payload); err != nil {
		return zero, err
	}
	return merged, nil
}

// Delete removes a record by id, best effort. Offline deletes keep no
// tombstone in the mirror; the journal entry carries the replay.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if s.Remote != nil {
		_, err := race(ctx, s.timeout(), func(ctx context.Context) (struct{}, error) {
			if err := s.Remote.Delete(ctx, s.Collection, id); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, s.removeMirror(ctx, id)
		})
		if err == nil {
			return nil
		}
		if !degradable(err) {
			return err
		}
	}
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return err
	}
	kept := recs[:0]
	found := false
	for _, r := range recs {
		if r.Identity() == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%s %s: %w", s.Collection, id, ErrNotFound)
	}
	if err := s.replaceMirror(ctx, kept); err != nil {
		return err
	}
	return s.Mirror.AppendPending(ctx, "delete", s.Collection, id, nil)
}

// --- remote race ---

// race runs the remote attempt against the time budget. The in-flight call is
// not cancelled on timeout: fn carries its own write-through, so a late
// success still lands in the mirror even though the caller already degraded.
func race[R any](ctx context.Context, timeout time.Duration, fn func(context.Context) (R, error)) (R, error) {
	type outcome struct {
		val R
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := fn(context.WithoutCancel(ctx))
		ch <- outcome{val: val, err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var zero R
	select {
	case out := <-ch:
		if out.err != nil {
			return zero, Classify(out.err)
		}
		return out.val, nil
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Classify maps adapter errors onto the store taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, apiErr.Body)
		case 404:
			return ErrNotFound
		}
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return err
	}
	// Transport-class failures (connection refused, DNS, reset).
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func degradable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable)
}

// --- mirror plumbing ---

func (s *Store[T]) loadMirror(ctx context.Context) ([]T, error) {
	data, err := s.Mirror.Load(ctx, s.Collection)
	if errors.Is(err, mirror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode mirrored %s: %w", s.Collection, err)
	}
	return recs, nil
}

func (s *Store[T]) replaceMirror(ctx context.Context, recs []T) error {
	if recs == nil {
		recs = []T{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return s.Mirror.Replace(ctx, s.Collection, data)
}

// mergeMirror replaces matching records by id, appending unknown ones.
func (s *Store[T]) mergeMirror(ctx context.Context, incoming []T) error {
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return err
	}
	for _, in := range incoming {
		replaced := false
		for i, r := range recs {
			if r.Identity() == in.Identity() {
				recs[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			recs = append([]T{in}, recs...)
		}
	}
	return s.replaceMirror(ctx, recs)
}

func (s *Store[T]) removeMirror(ctx context.Context, id string) error {
	recs, err := s.loadMirror(ctx)
	if err != nil {
		return err
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.Identity() != id {
			kept = append(kept, r)
		}
	}
	return s.replaceMirror(ctx, kept)
}

// --- codec helpers ---

func decodeRaw[T Entity](raw json.RawMessage) (T, error) {
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode remote record: %w", err)
	}
	return rec, nil
}

func decodeRaws[T Entity](raws []json.RawMessage) ([]T, error) {
	recs := make([]T, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeRaw[T](raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// filterLocal compares predicate values against the record's wire form.
func filterLocal[T Entity](recs []T, where Where) ([]T, error) {
	var res []T
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		match := true
		for k, want := range where {
			if fmt.Sprint(m[k]) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if match {
			res = append(res, r)
		}
	}
	return res, nil
}

// mergeRecord shallow-merges patch fields into the record's wire form.
func mergeRecord[T Entity](rec T, fields map[string]any) (T, error) {
	var zero T
	data, err := json.Marshal(rec)
	if err != nil {
		return zero, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return zero, err
	}
	for k, v := range fields {
		m[k] = v
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return zero, err
	}
	return decodeRaw[T](merged)
}
