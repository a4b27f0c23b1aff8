// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/anti-todo/internal/domain"
)

// Repository defines the interface for persisting devices and their boards.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetStaleUsers retrieves users not seen within ttl.
	GetStaleUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)

	// DeleteUser removes a user record.
	DeleteUser(ctx context.Context, userID string) error

	// LoadBoard reads the board stored under key. Returns nil, nil if the key is absent.
	LoadBoard(ctx context.Context, key string) (*domain.Board, error)

	// SaveBoard serializes the complete board and overwrites key.
	SaveBoard(ctx context.Context, key string, board *domain.Board) error

	// DeleteBoard removes key.
	DeleteBoard(ctx context.Context, key string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
