package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process Store used when no Redis is configured and in tests.
// Records are copied through JSON so callers never share memory with the store.
type MemoryStore struct {
	seq atomic.Int64

	mu      sync.RWMutex
	records map[int64][]byte
	tokens  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64][]byte),
		tokens:  make(map[string]int64),
	}
}

func (m *MemoryStore) AllocateID(ctx context.Context) (int64, error) {
	return m.seq.Add(1), nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	raw, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MemoryStore) Put(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[rec.ID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpdateMessageIDs(ctx context.Context, id int64, updates []MessageIDUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.records[id]
	if !ok {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	if !applyMessageIDs(&rec, updates) {
		return nil
	}
	out, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	m.records[id] = out
	return nil
}

func (m *MemoryStore) ReserveToken(ctx context.Context, token string, id int64) (bool, error) {
	token = strings.TrimSpace(token)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[token]; exists {
		return false, nil
	}
	m.tokens[token] = id
	return true, nil
}

func (m *MemoryStore) ResolveToken(ctx context.Context, token string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[strings.TrimSpace(token)]
	return id, ok, nil
}

// MemoryUserIndex is the in-process UserIndex.
type MemoryUserIndex struct {
	mu   sync.RWMutex
	byID map[string]int64
}

func NewMemoryUserIndex() *MemoryUserIndex {
	return &MemoryUserIndex{byID: make(map[string]int64)}
}

func (x *MemoryUserIndex) Current(ctx context.Context, userID string) (int64, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byID[strings.TrimSpace(userID)]
	return id, ok, nil
}

func (x *MemoryUserIndex) Bind(ctx context.Context, userID string, id int64) error {
	x.mu.Lock()
	x.byID[strings.TrimSpace(userID)] = id
	x.mu.Unlock()
	return nil
}

func (x *MemoryUserIndex) Unbind(ctx context.Context, userID string) error {
	x.mu.Lock()
	delete(x.byID, strings.TrimSpace(userID))
	x.mu.Unlock()
	return nil
}
