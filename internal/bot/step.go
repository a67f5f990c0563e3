package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Step is where a user is in the chat flow.
type Step string

const (
	StepMenu      Step = "menu"
	StepAwaitCode Step = "await_code"
	StepInGame    Step = "in_game"
)

func (s Step) valid() bool {
	return s == StepMenu || s == StepAwaitCode || s == StepInGame
}

// StepStore keeps each user's step. Unknown users are at StepMenu.
type StepStore interface {
	Get(ctx context.Context, userID string) (Step, error)
	Set(ctx context.Context, userID string, step Step) error
}

type RedisStepStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStepStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStepStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStepStore{rdb: rdb, ttl: ttl}
}

func keyStep(userID string) string { return "ttt:step:" + strings.TrimSpace(userID) }

func (s *RedisStepStore) Get(ctx context.Context, userID string) (Step, error) {
	v, err := s.rdb.Get(ctx, keyStep(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return StepMenu, nil
	}
	if err != nil {
		return StepMenu, err
	}
	if st := Step(v); st.valid() {
		return st, nil
	}
	return StepMenu, nil
}

func (s *RedisStepStore) Set(ctx context.Context, userID string, step Step) error {
	if step == StepMenu {
		return s.rdb.Del(ctx, keyStep(userID)).Err()
	}
	return s.rdb.Set(ctx, keyStep(userID), string(step), s.ttl).Err()
}

type MemoryStepStore struct {
	mu    sync.RWMutex
	steps map[string]Step
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string]Step)}
}

func (m *MemoryStepStore) Get(ctx context.Context, userID string) (Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.steps[strings.TrimSpace(userID)]; ok {
		return st, nil
	}
	return StepMenu, nil
}

func (m *MemoryStepStore) Set(ctx context.Context, userID string, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step == StepMenu {
		delete(m.steps, strings.TrimSpace(userID))
		return nil
	}
	m.steps[strings.TrimSpace(userID)] = step
	return nil
}
