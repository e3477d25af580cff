package natsadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/poimap/internal/core/domain"
)

// Subscriber implements ports.RenderFeed over core NATS subscriptions.
type Subscriber struct {
	conn *nats.Conn
	log  *slog.Logger

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{conn: conn, log: logger.With("component", "nats"), subs: make(map[*nats.Subscription]struct{})}, nil
}

// Subscribe delivers sessionID's render commands to fn until cancel is called.
func (s *Subscriber) Subscribe(sessionID string, fn func(domain.RenderCommand)) (func(), error) {
	sub, err := s.conn.Subscribe(RenderSubject(sessionID), func(msg *nats.Msg) {
		var cmd domain.RenderCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			s.log.Warn("decode render command", "subject", msg.Subject, "error", err)
			return
		}
		fn(cmd)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}, nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = map[*nats.Subscription]struct{}{}
	s.mu.Unlock()
	_ = s.conn.Drain()
}
