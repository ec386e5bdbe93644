package session

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"studyguider/internal/models"
)

const (
	DefaultMaxSessions = 10000
	DefaultTTL         = 24 * time.Hour
)

type memoryEntry struct {
	id       string
	messages []models.Message
	lastUsed time.Time
	elem     *list.Element
}

// MemoryStore is a process-local Store bounded by a maximum session count
// (least recently used sessions are evicted first) and an idle time to live.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	lru         *list.List // front is most recently used
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
}

func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		lru:         list.New(),
		maxSessions: maxSessions,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *MemoryStore) History(_ context.Context, id string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneMessages(s.touchLocked(id).messages), nil
}

// Append never recreates a session: a turn whose session was evicted while
// it ran must not leave a history that starts with the assistant reply.
func (s *MemoryStore) Append(_ context.Context, id string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	e.messages = append(e.messages, msgs...)
	return nil
}

func (s *MemoryStore) Truncate(_ context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if n < 0 || n > len(e.messages) {
		return fmt.Errorf("%w: truncate to %d of %d", ErrInvalidLength, n, len(e.messages))
	}
	e.messages = e.messages[:n:n]
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		s.removeLocked(e)
	}
	return nil
}

// Count returns the number of live sessions.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PurgeExpired drops sessions idle for longer than the TTL and reports how many.
func (s *MemoryStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	purged := 0
	// the back of the list holds the least recently used sessions
	for elem := s.lru.Back(); elem != nil; {
		e := elem.Value.(*memoryEntry)
		if e.lastUsed.After(cutoff) {
			break
		}
		prev := elem.Prev()
		s.removeLocked(e)
		purged++
		elem = prev
	}
	return purged
}

// StartJanitor purges expired sessions every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration, onPurge func(int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.PurgeExpired(); n > 0 && onPurge != nil {
					onPurge(n)
				}
			}
		}
	}()
}

// liveLocked returns the entry for id and marks it used. Expired entries are
// dropped and reported as missing.
func (s *MemoryStore) liveLocked(id string) (*memoryEntry, bool) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(e.lastUsed) >= s.ttl {
		s.removeLocked(e)
		return nil, false
	}
	e.lastUsed = now
	s.lru.MoveToFront(e.elem)
	return e, true
}

// touchLocked returns the live entry for id, creating it (and evicting the
// least recently used sessions over capacity) when needed.
func (s *MemoryStore) touchLocked(id string) *memoryEntry {
	if e, ok := s.liveLocked(id); ok {
		return e
	}
	now := s.now()
	e := &memoryEntry{id: id, messages: []models.Message{}, lastUsed: now}
	e.elem = s.lru.PushFront(e)
	s.sessions[id] = e
	for len(s.sessions) > s.maxSessions {
		oldest := s.lru.Back().Value.(*memoryEntry)
		s.removeLocked(oldest)
	}
	return e
}

func (s *MemoryStore) removeLocked(e *memoryEntry) {
	s.lru.Remove(e.elem)
	delete(s.sessions, e.id)
}
