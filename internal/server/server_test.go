package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flightdeck/internal/db"
	"flightdeck/internal/migrate"
	"flightdeck/internal/remote"
	"flightdeck/internal/server"
	"flightdeck/internal/store"
)

func newBackend(t *testing.T, auth server.AuthConfig) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{DB: conn, Auth: auth})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestCollectionRoundtrip(t *testing.T) {
	ts := newBackend(t, server.AuthConfig{AllowAnonymous: true})
	client := remote.New(ts.URL)
	ctx := context.Background()

	created, err := client.Create(ctx, "missions", map[string]any{"name": "ridge patrol", "status": "active"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var rec map[string]any
	if err := decode(created, &rec); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	id, _ := rec["id"].(string)
	if id == "" {
		t.Fatalf("backend must assign an id: %v", rec)
	}
	if rec["created_at"] == "" {
		t.Fatalf("backend must assign created_at: %v", rec)
	}

	items, err := client.List(ctx, "missions", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one record, got %d", len(items))
	}

	matched, err := client.Filter(ctx, "missions", map[string]any{"status": "active"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("equality filter missed the record: %d", len(matched))
	}
	matched, err = client.Filter(ctx, "missions", map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("filter matched a record it should not: %d", len(matched))
	}

	updated, err := client.Update(ctx, "missions", id, map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := decode(updated, &rec); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if rec["status"] != "completed" || rec["name"] != "ridge patrol" {
		t.Fatalf("patch must shallow-merge: %v", rec)
	}

	if err := client.Delete(ctx, "missions", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, err = client.List(ctx, "missions", "")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("record should be gone, got %d", len(items))
	}
}

func TestUnknownRecordIs404(t *testing.T) {
	ts := newBackend(t, server.AuthConfig{AllowAnonymous: true})
	client := remote.New(ts.URL)
	ctx := context.Background()

	_, err := client.Update(ctx, "missions", "ghost", map[string]any{"status": "x"})
	if !errors.Is(store.Classify(err), store.ErrNotFound) {
		t.Fatalf("expected 404 to classify as not found, got %v", err)
	}
	if err := client.Delete(ctx, "missions", "ghost"); !errors.Is(store.Classify(err), store.ErrNotFound) {
		t.Fatalf("expected 404 on delete, got %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newBackend(t, server.AuthConfig{APIKey: "k-123"})
	ctx := context.Background()

	// No credentials: rejected.
	anon := remote.New(ts.URL)
	_, err := anon.List(ctx, "missions", "")
	if !errors.Is(store.Classify(err), store.ErrPermissionDenied) {
		t.Fatalf("expected permission denial, got %v", err)
	}

	// Wrong key: rejected.
	wrong := remote.New(ts.URL)
	wrong.APIKey = "nope"
	if _, err := wrong.List(ctx, "missions", ""); !errors.Is(store.Classify(err), store.ErrPermissionDenied) {
		t.Fatalf("expected permission denial, got %v", err)
	}

	// Right key: accepted.
	ok := remote.New(ts.URL)
	ok.APIKey = "k-123"
	if _, err := ok.List(ctx, "missions", ""); err != nil {
		t.Fatalf("api key auth: %v", err)
	}
}

func signToken(t *testing.T, secret, subject string, roles []string) string {
	t.Helper()
	claims := struct {
		jwt.RegisteredClaims
		Roles []string `json:"roles,omitempty"`
	}{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	ts := newBackend(t, server.AuthConfig{JWTSecret: secret})
	ctx := context.Background()

	client := remote.New(ts.URL)
	client.BearerToken = signToken(t, secret, "op-1", nil)
	if _, err := client.Create(ctx, "missions", map[string]any{"name": "x"}); err != nil {
		t.Fatalf("bearer create: %v", err)
	}

	bad := remote.New(ts.URL)
	bad.BearerToken = signToken(t, "other-secret", "op-1", nil)
	if _, err := bad.List(ctx, "missions", ""); !errors.Is(store.Classify(err), store.ErrPermissionDenied) {
		t.Fatalf("expected rejection of a badly signed token, got %v", err)
	}
}

func TestReadOnlyRoleCannotMutate(t *testing.T) {
	const secret = "test-secret"
	ts := newBackend(t, server.AuthConfig{JWTSecret: secret})
	ctx := context.Background()

	client := remote.New(ts.URL)
	client.BearerToken = signToken(t, secret, "viewer-1", []string{"readonly"})

	if _, err := client.List(ctx, "missions", ""); err != nil {
		t.Fatalf("readonly list: %v", err)
	}
	_, err := client.Create(ctx, "missions", map[string]any{"name": "x"})
	if !errors.Is(store.Classify(err), store.ErrPermissionDenied) {
		t.Fatalf("readonly create must be denied, got %v", err)
	}
}

func TestInvalidCollectionName(t *testing.T) {
	ts := newBackend(t, server.AuthConfig{AllowAnonymous: true})
	client := remote.New(ts.URL)

	_, err := client.List(context.Background(), "Bad-Name", "")
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("expected 400 for an invalid collection name, got %v", err)
	}
}

func decode(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
