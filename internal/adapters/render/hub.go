package render

import (
	"sync"

	"github.com/samirrijal/poimap/internal/core/domain"
)

// Hub fans render commands out to in-process subscribers. It implements
// ports.RenderSink and ports.RenderFeed when NATS is not configured.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(domain.RenderCommand)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]func(domain.RenderCommand))}
}

// Emit delivers cmd synchronously to every subscriber of its session.
// Subscribers must not block.
func (h *Hub) Emit(cmd domain.RenderCommand) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.subs[cmd.Session] {
		fn(cmd)
	}
}

func (h *Hub) Subscribe(sessionID string, fn func(domain.RenderCommand)) (func(), error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[uint64]func(domain.RenderCommand))
	}
	h.subs[sessionID][id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[sessionID], id)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
	}, nil
}

// Subscribers returns the number of subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
