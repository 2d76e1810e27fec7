package registry

import (
	"context"
	"database/sql"
	"testing"

	"raggate/internal/config"
	"raggate/internal/models"
	"raggate/internal/service/history"
	"raggate/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *history.Store, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRegistry(db), history.NewStore(db), db
}

func TestResolveOrAssignPassesRequestedIDThrough(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	sessionID, created, err := reg.ResolveOrAssign(context.Background(), "u1", "explicit-session")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sessionID != "explicit-session" {
		t.Fatalf("expected requested id back, got %q", sessionID)
	}
	if created {
		t.Fatalf("pass-through must not report created")
	}
}

func TestResolveOrAssignAssignsFreshIDForNewUser(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	first, created, err := reg.ResolveOrAssign(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first == "" || !created {
		t.Fatalf("expected fresh created id, got %q created=%v", first, created)
	}

	// Nothing was written, so a second resolution mints another fresh id.
	second, created, err := reg.ResolveOrAssign(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created || second == first {
		t.Fatalf("expected a distinct fresh id, got %q vs %q", second, first)
	}
}

func TestResolveOrAssignPicksMostRecentSession(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "older", "u1", models.RoleUser, "first thread"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, "newer", "u1", models.RoleUser, "second thread"); err != nil {
		t.Fatalf("append: %v", err)
	}

	sessionID, created, err := reg.ResolveOrAssign(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created {
		t.Fatalf("continuation must not report created")
	}
	if sessionID != "newer" {
		t.Fatalf("expected most recent session, got %q", sessionID)
	}

	// Writing to the older session makes it the most recent again.
	if _, err := store.Append(ctx, "older", "u1", models.RoleUser, "back here"); err != nil {
		t.Fatalf("append: %v", err)
	}
	sessionID, _, err = reg.ResolveOrAssign(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sessionID != "older" {
		t.Fatalf("expected session with latest write, got %q", sessionID)
	}
}

func TestListSessions(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	sessions, err := reg.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions for unknown user, got %v", sessions)
	}

	for _, write := range []struct{ session, content string }{
		{"s1", "one"},
		{"s2", "two"},
		{"s1", "three"},
	} {
		if _, err := store.Append(ctx, write.session, "u1", models.RoleUser, write.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sessions, err = reg.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 distinct sessions, got %v", sessions)
	}
	if sessions[0] != "s1" || sessions[1] != "s2" {
		t.Fatalf("expected most recently active first, got %v", sessions)
	}

	// Stable across repeated calls absent new writes.
	again, err := reg.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	for i := range sessions {
		if sessions[i] != again[i] {
			t.Fatalf("session order not stable: %v vs %v", sessions, again)
		}
	}
}

func TestNewSessionIDsAreUnique(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := reg.NewSessionID()
		if id == "" {
			t.Fatalf("empty session id")
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}
