package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")
)

// Turn is one conversation turn. Turns are immutable once appended.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds one conversation's history. History is append-only and kept
// in chronological order.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
	History   []Turn    `json:"history"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RecentHistory returns the most recent turns from history.
func (s *Session) RecentHistory(count int) []Turn {
	if len(s.History) <= count {
		return s.History
	}
	return s.History[len(s.History)-count:]
}

// LastUserTurn returns the most recent user turn, or nil.
func (s *Session) LastUserTurn() *Turn {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == "user" {
			return &s.History[i]
		}
	}
	return nil
}
