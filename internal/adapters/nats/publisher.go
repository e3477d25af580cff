package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/poimap/internal/core/domain"
)

const (
	renderSubjectPrefix  = "poimap.render."
	sessionSubjectPrefix = "poimap.session."
	sessionStream        = "POIMAP_SESSIONS"
)

// RenderSubject is the core NATS subject carrying a session's render commands.
func RenderSubject(sessionID string) string {
	return renderSubjectPrefix + sessionID
}

// SessionSubject is the JetStream subject of one session lifecycle event.
func SessionSubject(sessionID string, kind domain.SessionEventKind) string {
	return sessionSubjectPrefix + sessionID + "." + string(kind)
}

// Publisher implements ports.RenderSink over core NATS and
// ports.EventPublisher over JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      sessionStream,
		Subjects:  []string{sessionSubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, js: js, log: logger.With("component", "nats")}, nil
}

// Emit publishes a render command. Render commands are fire-and-forget; a
// failed publish is logged and dropped.
func (p *Publisher) Emit(cmd domain.RenderCommand) {
	data, err := json.Marshal(cmd)
	if err != nil {
		p.log.Error("marshal render command", "op", cmd.Op, "error", err)
		return
	}
	if err := p.conn.Publish(RenderSubject(cmd.Session), data); err != nil {
		p.log.Warn("publish render command", "session", cmd.Session, "op", cmd.Op, "error", err)
	}
}

func (p *Publisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SessionSubject(event.SessionID, event.Kind), data, nats.Context(ctx))
	return err
}

// Ping reports whether the connection is usable.
func (p *Publisher) Ping(context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("poimap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
