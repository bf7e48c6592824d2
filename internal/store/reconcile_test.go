package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"flightdeck/internal/db"
	"flightdeck/internal/domain"
	"flightdeck/internal/migrate"
	"flightdeck/internal/mirror"
	"flightdeck/internal/store"
)

func newJournaledStore(t *testing.T, fake *fakeRemote) (*store.Store[*domain.Pilot], store.Reconciler) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := mirror.New(conn)
	s := store.New[*domain.Pilot](domain.CollectionPilots, fake, m)
	s.Timeout = 100 * time.Millisecond
	return s, store.Reconciler{Remote: fake, Mirror: m}
}

func TestDrainReplaysOldestFirst(t *testing.T) {
	fake := newFakeRemote()
	fake.setDown(true)
	s, rec := newJournaledStore(t, fake)
	ctx := context.Background()

	first, err := s.Create(ctx, &domain.Pilot{Name: "Ada"})
	if err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if _, err := s.Update(ctx, first.ID, domain.PilotPatch{License: domain.StringPtr("A-9")}); err != nil {
		t.Fatalf("offline update: %v", err)
	}

	fake.setDown(false)
	results, err := rec.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(results) != 2 || results[0].Op != "create" || results[1].Op != "update" {
		t.Fatalf("expected create then update, got %+v", results)
	}
	if failed := store.Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	// The locally minted id must survive the replay.
	remoteRecs := fake.data[domain.CollectionPilots]
	if len(remoteRecs) != 1 || fmt.Sprint(remoteRecs[0]["id"]) != first.ID {
		t.Fatalf("replayed record lost its id: %+v", remoteRecs)
	}
	if fmt.Sprint(remoteRecs[0]["license"]) != "A-9" {
		t.Fatalf("update not applied: %+v", remoteRecs)
	}

	pending, err := rec.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("journal should be empty after drain: %+v", pending)
	}
}

func TestDrainKeepsFailedEntriesWithError(t *testing.T) {
	fake := newFakeRemote()
	fake.setDown(true)
	s, rec := newJournaledStore(t, fake)
	ctx := context.Background()

	if _, err := s.Create(ctx, &domain.Pilot{Name: "Ada"}); err != nil {
		t.Fatalf("offline create: %v", err)
	}
	// An update against a record the remote never saw replays as 404.
	if err := rec.Mirror.AppendPending(ctx, "update", domain.CollectionPilots, "ghost", []byte(`{"name":"x"}`)); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	fake.setDown(false)
	results, err := rec.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	failed := store.Failed(results)
	if len(failed) != 1 || !errors.Is(failed[0].Err, store.ErrNotFound) {
		t.Fatalf("expected one not-found failure, got %+v", failed)
	}

	pending, err := rec.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].LastError == "" {
		t.Fatalf("failed entry must stay journaled with its error, got %+v", pending)
	}
}

func TestDrainStopsWhenRemoteDropsAgain(t *testing.T) {
	fake := newFakeRemote()
	fake.setDown(true)
	s, rec := newJournaledStore(t, fake)
	ctx := context.Background()

	if _, err := s.Create(ctx, &domain.Pilot{Name: "Ada"}); err != nil {
		t.Fatalf("offline create: %v", err)
	}

	// Still down: the drain must bail without consuming the journal.
	_, err := rec.Drain(ctx)
	if !errors.Is(err, store.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	pending, err := rec.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("journal must be intact, got %+v", pending)
	}
}

func TestDrainDeleteAlreadyGoneIsSatisfied(t *testing.T) {
	fake := newFakeRemote()
	_, rec := newJournaledStore(t, fake)
	ctx := context.Background()

	if err := rec.Mirror.AppendPending(ctx, "delete", domain.CollectionPilots, "gone", nil); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	results, err := rec.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("remote 404 on delete should count as replayed, got %+v", results)
	}
}
