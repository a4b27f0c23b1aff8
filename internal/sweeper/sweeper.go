// Package sweeper removes boards of devices that have not been seen for a long time.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/anti-todo/internal/domain"
)

// Store is the part of the repository the sweeper needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetStaleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)
	DeleteBoard(ctx context.Context, key string) error
	DeleteUser(ctx context.Context, userID string) error
}

// CleanupCallback is called after a device's data has been removed.
type CleanupCallback func(userID string)

// Sweeper periodically deletes stale devices.
type Sweeper struct {
	repo      Store
	interval  time.Duration
	ttl       time.Duration
	onCleanup CleanupCallback
}

// New creates a Sweeper.
func New(repo Store, interval, ttl time.Duration, onCleanup CleanupCallback) *Sweeper {
	return &Sweeper{repo: repo, interval: interval, ttl: ttl, onCleanup: onCleanup}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.Info("Sweeper started", "interval", s.interval, "ttl", s.ttl)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			slog.Info("Sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep removes every stale device once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	stale, err := s.repo.GetStaleUsers(ctx, s.ttl)
	if err != nil {
		slog.Error("Sweeper failed to get stale devices", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	slog.Info("Sweeper found stale devices", "count", len(stale))

	removed := 0
	for _, user := range stale {
		if ctx.Err() != nil {
			break
		}
		// The device may have come back since the stale query ran.
		current, err := s.repo.GetUser(ctx, user.UserID)
		if err != nil {
			slog.Error("Sweeper failed to re-read device", "error", err, "user_id", user.UserID)
			continue
		}
		if current == nil || !current.IsStale(s.ttl, time.Now()) {
			slog.Info("Sweeper skipping device", "user_id", user.UserID, "present", current != nil)
			continue
		}
		if err := s.repo.DeleteBoard(ctx, user.BoardKey()); err != nil {
			slog.Error("Sweeper failed to delete board", "error", err, "user_id", user.UserID)
			continue
		}
		if err := s.repo.DeleteUser(ctx, user.UserID); err != nil {
			slog.Warn("Sweeper failed to delete device", "error", err, "user_id", user.UserID)
			continue
		}
		if s.onCleanup != nil {
			s.onCleanup(user.UserID)
		}
		removed++
	}

	slog.Info("Sweeper cleanup completed", "removed", removed, "stale", len(stale))
	return removed
}
