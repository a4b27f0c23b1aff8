// Package domain contains core domain types for the Anti-Todo application.
package domain

import (
	"time"
)

// User represents an anonymous device that owns one board.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BoardKey returns the storage key holding this user's board.
func (u *User) BoardKey() string {
	return BoardKey(u.UserID)
}

// IsStale reports whether the user has not been seen within ttl.
func (u *User) IsStale(ttl time.Duration, now time.Time) bool {
	return u.LastSeenAt.Add(ttl).Before(now)
}

// BoardKey returns the storage key for a user's board.
func BoardKey(userID string) string {
	return "todos:" + userID
}
