package qbconnection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"roof-crm/internal/config"
	"roof-crm/internal/database"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const StateTTL = 10 * time.Minute

var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore holds the anti-forgery state between the connect redirect and
// the callback. Consume is one-shot.
type StateStore interface {
	Issue(ctx context.Context, tenantID string) (string, error)
	Consume(ctx context.Context, state string) (tenantID string, err error)
}

func NewStateStore(cfg *config.Config, rdb *database.RedisDB) StateStore {
	if rdb != nil && rdb.Client != nil {
		return &RedisStateStore{Client: rdb.Client, Prefix: cfg.RedisPrefix, TTL: StateTTL}
	}
	return NewMemoryStateStore(StateTTL)
}

type RedisStateStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s *RedisStateStore) key(state string) string {
	return fmt.Sprintf("%s:qb_oauth_state:%s", s.Prefix, state)
}

func (s *RedisStateStore) Issue(ctx context.Context, tenantID string) (string, error) {
	state := uuid.NewString()
	if err := s.Client.Set(ctx, s.key(state), tenantID, s.TTL).Err(); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}
	return state, nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	var get *redis.StringCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, s.key(state))
		pipe.Del(ctx, s.key(state))
		return nil
	})
	if err == redis.Nil || (get != nil && get.Err() == redis.Nil) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}
	return get.Val(), nil
}

type MemoryStateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[string]memoryState
}

type memoryState struct {
	tenantID  string
	expiresAt time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[string]memoryState),
	}
}

func (s *MemoryStateStore) Issue(_ context.Context, tenantID string) (string, error) {
	state := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.states {
		if !v.expiresAt.After(now) {
			delete(s.states, k)
		}
	}
	s.states[state] = memoryState{tenantID: tenantID, expiresAt: now.Add(s.ttl)}
	return state, nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	delete(s.states, state)
	if !ok || !entry.expiresAt.After(s.now()) {
		return "", ErrInvalidState
	}
	return entry.tenantID, nil
}
