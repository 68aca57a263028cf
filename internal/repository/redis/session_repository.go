package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"personal-knowledge-be/pkg/llm"
	"personal-knowledge-be/pkg/store"

	goredis "github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

// SessionRepository keeps session turns in a Redis list so memory survives
// process restarts. Appends still serialize on a per-session local lock; a
// single writer instance is assumed.
type SessionRepository struct {
	rdb          *goredis.Client
	systemPrompt string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionRepository(rdb *goredis.Client, systemPrompt string) *SessionRepository {
	return &SessionRepository{
		rdb:          rdb,
		systemPrompt: systemPrompt,
		locks:        make(map[string]*sync.Mutex),
	}
}

var _ store.SessionStore = &SessionRepository{}

func turnsKey(sessionID string) string {
	return "chat:session:" + sessionID + ":turns"
}

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

// seedIfEmpty must be called with the session lock held.
func (r *SessionRepository) seedIfEmpty(ctx context.Context, sessionID string) error {
	n, err := r.rdb.LLen(ctx, turnsKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return r.push(ctx, sessionID, store.Turn{
		Role:      llm.RoleSystem,
		Content:   r.systemPrompt,
		CreatedAt: time.Now(),
	})
}

func (r *SessionRepository) push(ctx context.Context, sessionID string, turn store.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := turnsKey(sessionID)
	if err := r.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	return r.rdb.Expire(ctx, key, sessionTTL).Err()
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := r.seedIfEmpty(ctx, sessionID); err != nil {
		return nil, err
	}

	raw, err := r.rdb.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	session := &store.Session{
		ID:    sessionID,
		Turns: make([]store.Turn, 0, len(raw)),
	}
	for _, item := range raw {
		var turn store.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("corrupt turn in session %s: %w", sessionID, err)
		}
		session.Turns = append(session.Turns, turn)
	}
	if len(session.Turns) > 0 {
		session.CreatedAt = session.Turns[0].CreatedAt
	}
	return session, nil
}

func (r *SessionRepository) Append(ctx context.Context, sessionID string, turn store.Turn) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := r.seedIfEmpty(ctx, sessionID); err != nil {
		return err
	}
	return r.push(ctx, sessionID, turn)
}

func (r *SessionRepository) Reset(ctx context.Context, sessionID string) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := r.rdb.Del(ctx, turnsKey(sessionID)).Err(); err != nil {
		return err
	}
	return r.push(ctx, sessionID, store.Turn{
		Role:      llm.RoleSystem,
		Content:   r.systemPrompt,
		CreatedAt: time.Now(),
	})
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	l := r.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := r.rdb.Del(ctx, turnsKey(sessionID)).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.locks, sessionID)
	r.mu.Unlock()
	return nil
}
