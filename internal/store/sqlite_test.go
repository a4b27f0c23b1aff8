package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/anti-todo/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo.(*SQLiteStore)
}

func TestLoadBoardMissingKey(t *testing.T) {
	s := newTestStore(t)

	board, err := s.LoadBoard(context.Background(), domain.BoardKey("nobody"))
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if board != nil {
		t.Fatalf("expected nil board for missing key, got %+v", board)
	}
}

func TestBoardRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.BoardKey("anon_1")

	want := &domain.Board{Todos: []domain.Todo{
		{
			ID:        "a",
			Task:      "Nap competitively",
			Steps:     []domain.Step{},
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			ID:   "b",
			Task: "Count ceiling tiles",
			Steps: []domain.Step{
				{Text: "Lie down", Completed: true},
				{Text: "Look up", Completed: true},
				{Text: "Lose count", Completed: true},
			},
			HasSteps:        true,
			CompletionStory: "You counted them all.",
			Epoch:           2,
			CreatedAt:       time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
		},
	}}

	if err := s.SaveBoard(ctx, key, want); err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}
	got, err := s.LoadBoard(ctx, key)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("board mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveBoardOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.BoardKey("anon_1")

	first := &domain.Board{Todos: []domain.Todo{{ID: "a", Task: "one", Steps: []domain.Step{}}}}
	if err := s.SaveBoard(ctx, key, first); err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}
	empty := &domain.Board{Todos: []domain.Todo{}}
	if err := s.SaveBoard(ctx, key, empty); err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}

	got, err := s.LoadBoard(ctx, key)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if len(got.Todos) != 0 {
		t.Fatalf("expected empty board after overwrite, got %d todos", len(got.Todos))
	}
}

func TestLoadBoardMalformedBlob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.BoardKey("anon_1")

	if _, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)`, key, "{not json", 0); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := s.LoadBoard(ctx, key); err == nil {
		t.Fatal("expected decode error for malformed blob")
	}
}

func TestDeleteBoard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.BoardKey("anon_1")

	if err := s.SaveBoard(ctx, key, &domain.Board{Todos: []domain.Todo{}}); err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}
	if err := s.DeleteBoard(ctx, key); err != nil {
		t.Fatalf("DeleteBoard failed: %v", err)
	}
	got, err := s.LoadBoard(ctx, key)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected board to be gone")
	}
}

func TestUsersAndStaleLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	fresh := &domain.User{UserID: "fresh", Username: "anon-fresh", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
	old := now.Add(-48 * time.Hour)
	stale := &domain.User{UserID: "stale", Username: "anon-stale", LastSeenAt: old, CreatedAt: old, UpdatedAt: old}

	for _, u := range []*domain.User{fresh, stale} {
		if err := s.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	got, err := s.GetUser(ctx, "fresh")
	if err != nil || got == nil {
		t.Fatalf("GetUser failed: %v %v", got, err)
	}
	if got.Username != "anon-fresh" {
		t.Errorf("unexpected username %q", got.Username)
	}

	users, err := s.GetStaleUsers(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("GetStaleUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].UserID != "stale" {
		t.Fatalf("expected only stale user, got %+v", users)
	}

	if err := s.UpdateLastSeen(ctx, "stale", now); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	users, err = s.GetStaleUsers(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("GetStaleUsers failed: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no stale users after refresh, got %d", len(users))
	}

	if err := s.DeleteUser(ctx, "fresh"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if got, _ := s.GetUser(ctx, "fresh"); got != nil {
		t.Fatal("expected user to be deleted")
	}
}
