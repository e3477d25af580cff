package valkey

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in process. It is used when no Valkey address is
// configured and honors the same TTL semantics.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]memoryToken
}

type memoryToken struct {
	value   string
	expires time.Time
}

func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, tokens: make(map[string]memoryToken)}
}

func (m *MemoryStore) Token(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[sessionID]
	if !ok {
		return "", nil
	}
	if m.ttl > 0 && m.now().After(t.expires) {
		delete(m.tokens, sessionID)
		return "", nil
	}
	return t.value, nil
}

func (m *MemoryStore) SetToken(_ context.Context, sessionID, token string) error {
	m.mu.Lock()
	m.tokens[sessionID] = memoryToken{value: token, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.tokens, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
