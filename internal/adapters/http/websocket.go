package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

const wsQueueSize = 256

// wsMessage is an action sent by the map client.
type wsMessage struct {
	Action   string             `json:"action"` // camera | click | more | close_popup | geolocation
	Lat      float64            `json:"lat"`
	Lng      float64            `json:"lng"`
	Marker   string             `json:"marker"`
	Variant  string             `json:"variant"`
	Position *domain.Coordinate `json:"position"`
	Error    string             `json:"error"`
}

// wsEvent wraps render commands and action replies sent to the client.
type wsEvent struct {
	Type     string                `json:"type"` // render | reply | error
	Render   *domain.RenderCommand `json:"render,omitempty"`
	Action   string                `json:"action,omitempty"`
	Decision domain.CameraDecision `json:"decision,omitempty"`
	Path     string                `json:"path,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// WebSocketHandler returns a handler that relays a session's render commands
// to the client and applies the actions it sends back.
// Clients send JSON such as {"action":"camera","lat":37.5,"lng":127.0}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Params("id")
		log := slog.Default().With("session", id, "remote", c.RemoteAddr().String())

		s, err := deps.Maps.Get(id)
		if err != nil {
			_ = c.WriteJSON(wsEvent{Type: "error", Error: err.Error()})
			return
		}
		if deps.Feed == nil {
			_ = c.WriteJSON(wsEvent{Type: "error", Error: "render feed not configured"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// The feed must not block the emitting surface, so commands are queued
		// and written by a separate goroutine. A full queue drops the command
		// and the client is expected to resync from GET /v1/sessions/:id.
		queue := make(chan domain.RenderCommand, wsQueueSize)
		cancelFeed, err := deps.Feed.Subscribe(id, func(cmd domain.RenderCommand) {
			select {
			case queue <- cmd:
			default:
				log.Warn("ws queue full, dropping render command", "seq", cmd.Seq, "op", cmd.Op)
			}
		})
		if err != nil {
			_ = writeJSON(wsEvent{Type: "error", Error: "subscribe failed: " + err.Error()})
			return
		}
		defer cancelFeed()

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case cmd := <-queue:
					if err := writeJSON(wsEvent{Type: "render", Render: &cmd}); err != nil {
						return
					}
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(wsEvent{Type: "error", Error: "invalid JSON"})
				continue
			}

			reply := wsEvent{Type: "reply", Action: m.Action}
			ctx, cancel := context.WithTimeout(context.Background(), sessionCallTimeout)
			switch m.Action {
			case "camera":
				center := domain.Coordinate{Lat: m.Lat, Lng: m.Lng}
				if !center.Valid() {
					err = errors.New("coordinate out of range")
					break
				}
				reply.Decision, err = s.CameraChanged(ctx, center)
			case "click":
				err = s.ClickMarker(domain.MarkerHandle(m.Marker))
			case "more":
				var v domain.Variant
				if v, err = domain.ParseVariant(m.Variant); err == nil {
					reply.Path, err = s.MoreInfo(ctx, v)
				}
			case "close_popup":
				var v domain.Variant
				if v, err = domain.ParseVariant(m.Variant); err == nil {
					err = s.ClosePopup(ctx, v)
				}
			case "geolocation":
				var lerr error
				if m.Position == nil {
					errMsg := m.Error
					if errMsg == "" {
						errMsg = "position unavailable"
					}
					lerr = errors.New(errMsg)
				} else if !m.Position.Valid() {
					err = errors.New("position out of range")
					break
				}
				if !s.ReportLocation(m.Position, lerr) {
					err = errors.New("session does not accept client geolocation")
				}
			default:
				err = errors.New("unknown action: " + m.Action)
			}
			cancel()

			if err != nil {
				reply.Type = "error"
				reply.Error = err.Error()
			}
			_ = writeJSON(reply)
			if errors.Is(err, domain.ErrSessionClosed) {
				break
			}
		}

		close(done)
		log.Info("ws client disconnected")
	}
}
