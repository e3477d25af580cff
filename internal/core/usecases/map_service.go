package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

// View is the per-session rendering side: the map surface and the router
// the "more info" action navigates with.
type View struct {
	Surface ports.MapSurface
	Router  ports.Router
}

// MapServiceDeps are the collaborators shared by every session.
type MapServiceDeps struct {
	Fetcher  ports.POIFetcher
	Chargers ports.ChargerStatusFetcher
	Tokens   ports.TokenStore
	Events   ports.EventPublisher
	// NewView builds the rendering side of a new session.
	NewView func(sessionID string) View
	// NewLocator builds the geolocator of a new session.
	NewLocator func() ports.Geolocator
}

// MountRequest describes a new map instance.
type MountRequest struct {
	Token            string
	Position         *domain.Coordinate
	GeolocationError string
}

// MapService mounts, looks up and unmounts map sessions.
type MapService struct {
	cfg  SessionConfig
	deps MapServiceDeps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMapService creates a new MapService.
func NewMapService(cfg SessionConfig, deps MapServiceDeps) *MapService {
	return &MapService{cfg: cfg, deps: deps, sessions: make(map[string]*Session)}
}

// Mount creates and starts a session. A position or geolocation error in req
// is handed to client-fed geolocators before the bootstrap runs.
func (m *MapService) Mount(ctx context.Context, req MountRequest) (*Session, error) {
	id := uuid.NewString()

	if req.Token != "" && m.deps.Tokens != nil {
		if err := m.deps.Tokens.SetToken(ctx, id, req.Token); err != nil {
			return nil, err
		}
	}

	view := m.deps.NewView(id)
	var locator ports.Geolocator
	if m.deps.NewLocator != nil {
		locator = m.deps.NewLocator()
	}

	s := NewSession(id, m.cfg, SessionDeps{
		Fetcher:  m.deps.Fetcher,
		Locator:  locator,
		Chargers: m.deps.Chargers,
		Surface:  view.Surface,
		Router:   view.Router,
		Tokens:   m.deps.Tokens,
		Events:   m.deps.Events,
	})
	switch {
	case req.Position != nil:
		s.ReportLocation(req.Position, nil)
	case req.GeolocationError != "":
		s.ReportLocation(nil, errors.New(req.GeolocationError))
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.Start()
	s.publish(domain.SessionEvent{SessionID: id, Kind: domain.EventMounted, At: time.Now()})
	slog.Info("session mounted", "session", id)
	return s, nil
}

// Get returns a mounted session.
func (m *MapService) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// IDs returns the ids of every mounted session.
func (m *MapService) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ReportGeolocation forwards a client fix or error to a session.
func (m *MapService) ReportGeolocation(id string, pos *domain.Coordinate, errMsg string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	var lerr error
	if pos == nil {
		if errMsg == "" {
			errMsg = "position unavailable"
		}
		lerr = errors.New(errMsg)
	}
	return s.ReportLocation(pos, lerr), nil
}

// Unmount closes a session and forgets it.
func (m *MapService) Unmount(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	metrics.SessionsActive.Dec()

	if m.deps.Tokens != nil {
		if err := m.deps.Tokens.DeleteToken(ctx, id); err != nil {
			slog.Warn("delete session token", "session", id, "error", err)
		}
	}
	return s.Close(ctx)
}

// Shutdown unmounts every session.
func (m *MapService) Shutdown(ctx context.Context) {
	for _, id := range m.IDs() {
		if err := m.Unmount(ctx, id); err != nil {
			slog.Warn("unmount on shutdown", "session", id, "error", err)
		}
	}
}
