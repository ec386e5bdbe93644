package session

import (
	"context"
	"errors"

	"studyguider/internal/models"
)

var (
	ErrInvalidLength = errors.New("invalid history length")
	// ErrSessionNotFound is returned when a session was evicted or expired
	// between being read and being written.
	ErrSessionNotFound = errors.New("session not found")
)

// Store keeps the conversation history of every session. Implementations are
// safe for concurrent use; callers serialize turns of one session with a Locker.
type Store interface {
	// History returns a copy of the session's messages, creating an empty
	// session on first reference.
	History(ctx context.Context, id string) ([]models.Message, error)
	// Append adds msgs to a session created by History. The memory store
	// returns ErrSessionNotFound if the session is gone by then.
	Append(ctx context.Context, id string, msgs ...models.Message) error
	// Truncate drops every message after the first n.
	Truncate(ctx context.Context, id string, n int) error
	Delete(ctx context.Context, id string) error
}
