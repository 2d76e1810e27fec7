package history

import (
	"context"
	"database/sql"
	"testing"

	"raggate/internal/config"
	"raggate/internal/models"
	"raggate/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
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
	return NewStore(db), db
}

func TestAppendAndHistoryOrdering(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	inputs := []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, "Hello"},
		{models.RoleAssistant, "Hi, how can I help?"},
		{models.RoleUser, "What is in the knowledge base?"},
		{models.RoleAssistant, "A few documents."},
	}
	for _, in := range inputs {
		if _, err := store.Append(ctx, "s1", "u1", in.role, in.content); err != nil {
			t.Fatalf("append %q: %v", in.content, err)
		}
	}

	messages, err := store.History(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(messages) != len(inputs) {
		t.Fatalf("expected %d messages, got %d", len(inputs), len(messages))
	}
	for i, msg := range messages {
		if msg.Role != inputs[i].role || msg.Content != inputs[i].content {
			t.Fatalf("message %d mismatch: got (%s, %q)", i, msg.Role, msg.Content)
		}
		if i > 0 {
			prev := messages[i-1]
			if msg.CreatedAt.Before(prev.CreatedAt) {
				t.Fatalf("message %d timestamp precedes message %d", i, i-1)
			}
			if msg.ID <= prev.ID {
				t.Fatalf("message %d id not increasing", i)
			}
		}
	}
}

func TestHistoryEmptyPairIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	messages, err := store.History(context.Background(), "unknown-session", "u1")
	if err != nil {
		t.Fatalf("expected no error for empty pair, got %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Fatalf("expected empty slice, got %#v", messages)
	}
}

func TestHistoryIsScopedToSessionAndUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "s1", "u1", models.RoleUser, "mine"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, "s1", "u2", models.RoleUser, "other user"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, "s2", "u1", models.RoleUser, "other session"); err != nil {
		t.Fatalf("append: %v", err)
	}

	messages, err := store.History(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "mine" {
		t.Fatalf("expected only the (s1, u1) message, got %#v", messages)
	}
}

func TestHistoryRepeatedReadsMatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if _, err := store.Append(ctx, "s1", "u1", models.RoleUser, content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, err := store.History(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := store.History(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("read lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Fatalf("reads diverge at %d", i)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		sessionID string
		userID    string
		role      models.Role
		content   string
	}{
		{"empty session", "", "u1", models.RoleUser, "hi"},
		{"empty user", "s1", "", models.RoleUser, "hi"},
		{"empty content", "s1", "u1", models.RoleUser, "   "},
		{"bad role", "s1", "u1", models.Role("system"), "hi"},
	}
	for _, tc := range cases {
		if _, err := store.Append(ctx, tc.sessionID, tc.userID, tc.role, tc.content); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
