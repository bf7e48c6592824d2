package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"flightdeck/internal/db"
	"flightdeck/internal/domain"
	"flightdeck/internal/migrate"
	"flightdeck/internal/mirror"
	"flightdeck/internal/remote"
	"flightdeck/internal/store"
)

// fakeRemote is an in-memory collection backend. Setting down makes every
// call fail like a dead transport; failStatus makes every call fail with that
// HTTP status; delay makes every call slow.
type fakeRemote struct {
	mu         sync.Mutex
	data       map[string][]map[string]any
	down       bool
	failStatus int
	delay      time.Duration
	seq        int

	listCalls   int
	filterCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]map[string]any{}}
}

func (f *fakeRemote) gate() error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("dial tcp: connection refused")
	}
	if f.failStatus > 0 {
		return &remote.APIError{StatusCode: f.failStatus, Body: "nope"}
	}
	return nil
}

func encodeAll(records []map[string]any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		b, _ := json.Marshal(r)
		out = append(out, b)
	}
	return out
}

func (f *fakeRemote) List(ctx context.Context, collection, orderKey string) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return encodeAll(f.data[collection]), nil
}

func (f *fakeRemote) Filter(ctx context.Context, collection string, where map[string]any) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.filterCalls++
	f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []map[string]any
	for _, r := range f.data[collection] {
		ok := true
		for k, want := range where {
			if fmt.Sprint(r[k]) != fmt.Sprint(want) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return encodeAll(matched), nil
}

func (f *fakeRemote) Create(ctx context.Context, collection string, record any) (json.RawMessage, error) {
	if err := f.gate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, _ := m["id"].(string); s == "" {
		f.seq++
		m["id"] = fmt.Sprintf("r-%d", f.seq)
	}
	if s, _ := m["created_at"].(string); s == "" {
		m["created_at"] = "2026-01-01T00:00:00Z"
	}
	f.data[collection] = append([]map[string]any{m}, f.data[collection]...)
	out, _ := json.Marshal(m)
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, collection, id string, patch map[string]any) (json.RawMessage, error) {
	if err := f.gate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.data[collection] {
		if fmt.Sprint(r["id"]) != id {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		f.data[collection][i] = r
		out, _ := json.Marshal(r)
		return out, nil
	}
	return nil, &remote.APIError{StatusCode: 404, Body: "record not found"}
}

func (f *fakeRemote) Delete(ctx context.Context, collection, id string) error {
	if err := f.gate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.data[collection]
	for i, r := range records {
		if fmt.Sprint(r["id"]) == id {
			f.data[collection] = append(records[:i], records[i+1:]...)
			return nil
		}
	}
	return &remote.APIError{StatusCode: 404, Body: "record not found"}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func newPilotStore(t *testing.T, r remote.Adapter) *store.Store[*domain.Pilot] {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New[*domain.Pilot](domain.CollectionPilots, r, mirror.New(conn))
	s.Timeout = 2 * time.Second
	return s
}

func TestCreateOnlineRemoteIsAuthoritative(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt == "" {
		t.Fatalf("remote should assign identity, got %+v", created)
	}

	// Write-through: the record must be readable from the mirror alone.
	fake.setDown(true)
	s.Timeout = 100 * time.Millisecond
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get from mirror: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("mirror record mismatch: %+v", got)
	}
}

func TestOfflineCreateMintsIdentityAndJournals(t *testing.T) {
	fake := newFakeRemote()
	fake.setDown(true)
	s := newPilotStore(t, fake)
	s.Timeout = 100 * time.Millisecond
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Grace"})
	if err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("offline create must mint a local id")
	}
	pending, err := s.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Op != "create" || pending[0].RecordID != created.ID {
		t.Fatalf("expected one journaled create for %s, got %+v", created.ID, pending)
	}
}

func TestListDegradesToMirror(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	if _, err := s.Create(ctx, &domain.Pilot{Name: "Ada"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.List(ctx, ""); err != nil {
		t.Fatalf("warm mirror: %v", err)
	}

	fake.setDown(true)
	s.Timeout = 100 * time.Millisecond
	pilots, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("degraded list: %v", err)
	}
	if len(pilots) != 1 || pilots[0].Name != "Ada" {
		t.Fatalf("expected mirrored record, got %+v", pilots)
	}
}

func TestTimeoutDegradesAndLateSuccessLandsInMirror(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	if _, err := s.Create(ctx, &domain.Pilot{ID: "p-1", Name: "Ada"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.List(ctx, ""); err != nil {
		t.Fatalf("warm mirror: %v", err)
	}

	fake.mu.Lock()
	fake.data[domain.CollectionPilots][0]["name"] = "Ada Lovelace"
	fake.delay = 300 * time.Millisecond
	fake.mu.Unlock()

	s.Timeout = 50 * time.Millisecond
	pilots, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("timed-out list should degrade: %v", err)
	}
	if pilots[0].Name != "Ada" {
		t.Fatalf("degraded read must serve the stale mirror, got %q", pilots[0].Name)
	}

	// The in-flight call is not cancelled; once it lands the mirror is fresher.
	time.Sleep(500 * time.Millisecond)
	fake.mu.Lock()
	fake.delay = 0
	fake.down = true
	fake.mu.Unlock()
	pilots, err = s.List(ctx, "")
	if err != nil {
		t.Fatalf("mirror list: %v", err)
	}
	if pilots[0].Name != "Ada Lovelace" {
		t.Fatalf("late success should have written through, got %q", pilots[0].Name)
	}
}

func TestFilterOfflineEvaluatesLocally(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	for _, name := range []string{"Ada", "Grace"} {
		if _, err := s.Create(ctx, &domain.Pilot{Name: name}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	if _, err := s.List(ctx, ""); err != nil {
		t.Fatalf("warm mirror: %v", err)
	}

	fake.setDown(true)
	s.Timeout = 100 * time.Millisecond
	got, err := s.Filter(ctx, store.Where{"name": "Grace"})
	if err != nil {
		t.Fatalf("degraded filter: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Grace" {
		t.Fatalf("local filter mismatch: %+v", got)
	}
}

func TestFilterFuncNeverReachesRemoteFilter(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	if _, err := s.Create(ctx, &domain.Pilot{Name: "Ada"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := s.FilterFunc(ctx, func(p *domain.Pilot) bool { return p.Name == "Ada" })
	if err != nil {
		t.Fatalf("filter func: %v", err)
	}
	if fake.filterCalls != 0 {
		t.Fatalf("function predicates must not be pushed to the remote, saw %d filter calls", fake.filterCalls)
	}
	if fake.listCalls == 0 {
		t.Fatal("expected the predicate to run over a fetched list")
	}
}

func TestUpdateOfflineMergesAndJournals(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Ada", License: "A-1"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake.setDown(true)
	s.Timeout = 100 * time.Millisecond
	updated, err := s.Update(ctx, created.ID, domain.PilotPatch{Phone: domain.StringPtr("555-0100")})
	if err != nil {
		t.Fatalf("offline update: %v", err)
	}
	if updated.Phone != "555-0100" || updated.License != "A-1" {
		t.Fatalf("shallow merge must keep untouched fields: %+v", updated)
	}
	pending, err := s.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Op != "update" {
		t.Fatalf("expected one journaled update, got %+v", pending)
	}
}

func TestUpdateOfflineUnknownIdIsNotFound(t *testing.T) {
	fake := newFakeRemote()
	fake.setDown(true)
	s := newPilotStore(t, fake)
	s.Timeout = 100 * time.Millisecond

	_, err := s.Update(context.Background(), "ghost", domain.PilotPatch{Name: domain.StringPtr("x")})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOfflineRemovesAndJournals(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Ada"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake.setDown(true)
	s.Timeout = 100 * time.Millisecond
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("offline delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted record still visible: %v", err)
	}
	pending, err := s.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Op != "delete" {
		t.Fatalf("expected one journaled delete, got %+v", pending)
	}
}

func TestPermissionDeniedNeverDegrades(t *testing.T) {
	fake := newFakeRemote()
	s := newPilotStore(t, fake)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Ada"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake.mu.Lock()
	fake.failStatus = 403
	fake.mu.Unlock()
	_, err = s.Update(ctx, created.ID, domain.PilotPatch{Name: domain.StringPtr("Eve")})
	if !errors.Is(err, store.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	pending, err := s.Mirror.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("denied writes must not be journaled: %+v", pending)
	}
}

func TestNilRemoteRunsMirrorOnly(t *testing.T) {
	s := newPilotStore(t, nil)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Pilot{Name: "Ada"})
	if err != nil {
		t.Fatalf("mirror-only create: %v", err)
	}
	got, err := s.Get(ctx, created.ID)
	if err != nil || got.Name != "Ada" {
		t.Fatalf("mirror-only get: %v %+v", err, got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{&remote.APIError{StatusCode: 401, Body: "x"}, store.ErrPermissionDenied},
		{&remote.APIError{StatusCode: 403, Body: "x"}, store.ErrPermissionDenied},
		{&remote.APIError{StatusCode: 404, Body: "x"}, store.ErrNotFound},
		{&remote.APIError{StatusCode: 503, Body: "x"}, store.ErrUnreachable},
		{errors.New("dial tcp: connection refused"), store.ErrUnreachable},
	}
	for _, c := range cases {
		if got := store.Classify(c.in); !errors.Is(got, c.want) {
			t.Errorf("Classify(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	if store.Classify(nil) != nil {
		t.Error("Classify(nil) must be nil")
	}
}
