package memory

import (
	"context"
	"sync"
	"time"

	"personal-knowledge-be/pkg/llm"
	"personal-knowledge-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository is the process-scoped session memory backend. Appends to
// the same session id serialize on a per-session lock; distinct ids never
// block each other.
type SessionRepository struct {
	cache        *cache.Cache
	systemPrompt string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionRepository(systemPrompt string) *SessionRepository {
	// Sessions idle for an hour are purged; memory is process lifetime only.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &SessionRepository{
		cache:        c,
		systemPrompt: systemPrompt,
		locks:        make(map[string]*sync.Mutex),
	}
}

var _ store.SessionStore = &SessionRepository{}

// sessionLock returns the lock for one session id, creating it on first use.
func (r *SessionRepository) sessionLock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	return l
}

// getOrCreate must be called with the session lock held.
func (r *SessionRepository) getOrCreate(sessionID string) *store.Session {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session)
	}
	now := time.Now()
	session := &store.Session{
		ID:        sessionID,
		CreatedAt: now,
		Turns: []store.Turn{
			{Role: llm.RoleSystem, Content: r.systemPrompt, CreatedAt: now},
		},
	}
	r.cache.Set(sessionID, session, cache.DefaultExpiration)
	return session
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()
	return r.getOrCreate(sessionID).Clone(), nil
}

func (r *SessionRepository) Append(ctx context.Context, sessionID string, turn store.Turn) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	session := r.getOrCreate(sessionID)
	session.Turns = append(session.Turns, turn)
	// Refresh the idle TTL on every write.
	r.cache.Set(sessionID, session, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) Reset(ctx context.Context, sessionID string) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	session := r.getOrCreate(sessionID)
	session.Turns = session.Turns[:1]
	r.cache.Set(sessionID, session, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	r.cache.Delete(sessionID)

	r.mu.Lock()
	delete(r.locks, sessionID)
	r.mu.Unlock()
	return nil
}
