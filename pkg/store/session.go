package store

import (
	"context"
	"time"
)

// Turn is one message in a conversation. Immutable once created.
type Turn struct {
	Role      string    `json:"role"` // "system" | "user" | "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the ordered turn history for one conversation id. Owned by a
// SessionStore; mutated only by appending at the end.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can never mutate stored turns.
func (s *Session) Clone() *Session {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return &Session{
		ID:        s.ID,
		Turns:     turns,
		CreatedAt: s.CreatedAt,
	}
}

// SessionStore is the session memory contract.
//
// Get creates an empty session (seeded with the system turn) when none
// exists; creation is idempotent and never an error. Append serializes
// writers per session id while different ids proceed in parallel. Reset
// clears turns back to just the system turn.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Append(ctx context.Context, sessionID string, turn Turn) error
	Reset(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}
