package sweeper

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/anti-todo/internal/domain"
	"github.com/ashureev/anti-todo/internal/store"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo store.Repository, userID string, lastSeen time.Time) {
	t.Helper()
	ctx := t.Context()
	if err := repo.UpsertUser(ctx, &domain.User{
		UserID: userID, Username: userID, LastSeenAt: lastSeen, CreatedAt: lastSeen, UpdatedAt: lastSeen,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	board := &domain.Board{Todos: []domain.Todo{{ID: "t1", Task: "nap", Steps: []domain.Step{}}}}
	if err := repo.SaveBoard(ctx, domain.BoardKey(userID), board); err != nil {
		t.Fatalf("save board: %v", err)
	}
}

func TestSweepRemovesOnlyStaleDevices(t *testing.T) {
	repo := newStore(t)
	seed(t, repo, "stale", time.Now().Add(-48*time.Hour))
	seed(t, repo, "fresh", time.Now())

	var forgotten []string
	s := New(repo, time.Hour, 24*time.Hour, func(userID string) { forgotten = append(forgotten, userID) })

	if removed := s.Sweep(t.Context()); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if len(forgotten) != 1 || forgotten[0] != "stale" {
		t.Fatalf("unexpected cleanup callbacks %v", forgotten)
	}

	if b, err := repo.LoadBoard(t.Context(), domain.BoardKey("stale")); err != nil || b != nil {
		t.Fatalf("expected stale board gone, got %+v err=%v", b, err)
	}
	if u, err := repo.GetUser(t.Context(), "stale"); err != nil || u != nil {
		t.Fatalf("expected stale user gone, got %+v err=%v", u, err)
	}
	if b, err := repo.LoadBoard(t.Context(), domain.BoardKey("fresh")); err != nil || b == nil {
		t.Fatalf("expected fresh board kept, err=%v", err)
	}
}

func TestSweepWithNothingStale(t *testing.T) {
	repo := newStore(t)
	seed(t, repo, "fresh", time.Now())

	if removed := New(repo, time.Hour, time.Hour, nil).Sweep(t.Context()); removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
}

// frozenStale reports a stale list captured earlier, as if the query raced
// with the device coming back.
type frozenStale struct {
	store.Repository
	stale []*domain.User
}

func (f frozenStale) GetStaleUsers(context.Context, time.Duration) ([]*domain.User, error) {
	return f.stale, nil
}

func TestSweepSkipsDeviceSeenAfterQuery(t *testing.T) {
	repo := newStore(t)
	seed(t, repo, "returning", time.Now().Add(-48*time.Hour))

	stale, err := repo.GetStaleUsers(t.Context(), 24*time.Hour)
	if err != nil || len(stale) != 1 {
		t.Fatalf("expected one stale device, got %d err=%v", len(stale), err)
	}
	if err := repo.UpdateLastSeen(t.Context(), "returning", time.Now()); err != nil {
		t.Fatalf("update last seen: %v", err)
	}

	var forgotten []string
	s := New(frozenStale{Repository: repo, stale: stale}, time.Hour, 24*time.Hour, func(userID string) {
		forgotten = append(forgotten, userID)
	})
	if removed := s.Sweep(t.Context()); removed != 0 {
		t.Fatalf("expected returning device kept, removed %d", removed)
	}
	if len(forgotten) != 0 {
		t.Fatalf("unexpected cleanup callbacks %v", forgotten)
	}
	if b, err := repo.LoadBoard(t.Context(), domain.BoardKey("returning")); err != nil || b == nil {
		t.Fatalf("expected board kept, got %+v err=%v", b, err)
	}
}

type countingStore struct {
	mu    sync.Mutex
	calls int
}

func (c *countingStore) GetStaleUsers(context.Context, time.Duration) ([]*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *countingStore) GetUser(context.Context, string) (*domain.User, error) { return nil, nil }

func (c *countingStore) DeleteBoard(context.Context, string) error { return nil }
func (c *countingStore) DeleteUser(context.Context, string) error  { return nil }

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	repo := &countingStore{}
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- New(repo, 5*time.Millisecond, time.Hour, nil).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if repo.count() < 2 {
		t.Fatalf("expected at least two sweeps, got %d", repo.count())
	}
}
