package usecases

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
)

// SessionConfig holds the engine policy shared by all sessions.
type SessionConfig struct {
	ThresholdKm        float64
	AdvanceOnFailure   bool
	RetryAtDefault     bool
	GeolocationTimeout time.Duration
	DefaultCenter      domain.Coordinate
}

// DefaultSessionConfig returns the stock engine policy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ThresholdKm:        30,
		AdvanceOnFailure:   true,
		GeolocationTimeout: 5 * time.Second,
		DefaultCenter:      domain.DefaultCenter,
	}
}

// SessionDeps are the external collaborators of one map session.
type SessionDeps struct {
	Fetcher  ports.POIFetcher
	Locator  ports.Geolocator
	Chargers ports.ChargerStatusFetcher
	Surface  ports.MapSurface
	Router   ports.Router
	Tokens   ports.TokenStore
	Events   ports.EventPublisher
	Logger   *slog.Logger
}

// SessionSnapshot is a point-in-time view of a session.
type SessionSnapshot struct {
	ID         string                 `json:"id"`
	Viewport   domain.ViewportState   `json:"viewport"`
	Status     domain.Status          `json:"status"`
	Generation uint64                 `json:"generation"`
	Counts     map[domain.Variant]int `json:"counts"`
	StaleDrops int                    `json:"stale_drops"`
	CreatedAt  time.Time              `json:"created_at"`
}

const inboxSize = 64

// Session is one mounted map instance. All engine state is owned by a single
// goroutine; public methods hand work to it through a mailbox.
type Session struct {
	id   string
	cfg  SessionConfig
	deps SessionDeps
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inbox     chan func()
	done      chan struct{}
	stopped   chan struct{}
	pending   atomic.Int64
	startOnce sync.Once
	closeOnce sync.Once
	createdAt time.Time

	// owned by the run goroutine
	viewport     domain.ViewportState
	status       domain.Status
	generation   uint64
	cycle        *fetchCycle
	bootstrapped bool
	settledOnce  bool
	staleDrops   int
	places       *Reconciler[domain.GeneralPlace]
	stations     *Reconciler[domain.ChargingStation]
	windows      map[domain.Variant]*InfoWindowController
}

// NewSession creates a session. Call Start to bootstrap it.
func NewSession(id string, cfg SessionConfig, deps SessionDeps) *Session {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		log:       log.With("session", id),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		createdAt: time.Now(),
		windows:   make(map[domain.Variant]*InfoWindowController),
	}
	s.viewport.Center = cfg.DefaultCenter
	s.places = NewReconciler[domain.GeneralPlace](domain.VariantGeneral, deps.Surface,
		deps.Surface.ClusterOverlay(domain.VariantGeneral), s.clickHandler(domain.VariantGeneral), s.log)
	s.stations = NewReconciler[domain.ChargingStation](domain.VariantCharging, deps.Surface,
		deps.Surface.ClusterOverlay(domain.VariantCharging), s.clickHandler(domain.VariantCharging), s.log)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Surface returns the map surface the session renders to.
func (s *Session) Surface() ports.MapSurface { return s.deps.Surface }

// Start launches the owning goroutine and the one-time bootstrap.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
		s.post(s.bootstrap)
	})
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.inbox:
			fn()
			s.pending.Add(-1)
		case <-s.done:
			return
		}
	}
}

// post enqueues fn for the owning goroutine. It reports false once the
// session is closed.
func (s *Session) post(fn func()) bool {
	s.pending.Add(1)
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		s.pending.Add(-1)
		return false
	}
}

// call runs fn on the owning goroutine and waits for it to finish.
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() { fn(); close(finished) }) {
		return domain.ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs work on its own goroutine and posts the returned function back
// to the owning goroutine.
func (s *Session) spawn(work func() func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Add(-1)
		if apply := work(); apply != nil {
			s.post(apply)
		}
	}()
}

// Settle blocks until no queued message or in-flight async operation remains.
func (s *Session) Settle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-s.done:
			return domain.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CameraChanged feeds a camera-changed event and returns the decision taken.
func (s *Session) CameraChanged(ctx context.Context, center domain.Coordinate) (domain.CameraDecision, error) {
	var d domain.CameraDecision
	err := s.call(ctx, func() { d = s.onCameraChanged(center) })
	return d, err
}

// ClickMarker delivers a click on a mounted marker through the surface.
func (s *Session) ClickMarker(h domain.MarkerHandle) error {
	return s.deps.Surface.Click(h)
}

// ReportLocation hands a client-reported fix (or error) to the geolocator.
// It returns false when the geolocator does not accept client reports.
func (s *Session) ReportLocation(pos *domain.Coordinate, err error) bool {
	recv, ok := s.deps.Locator.(ports.LocationReceiver)
	if !ok {
		return false
	}
	if pos != nil {
		recv.Resolve(*pos)
	} else {
		recv.Reject(err)
	}
	return true
}

// Snapshot returns the current viewport, status and registry sizes.
func (s *Session) Snapshot(ctx context.Context) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.call(ctx, func() {
		vp := s.viewport
		if vp.LastFetchedCenter != nil {
			c := *vp.LastFetchedCenter
			vp.LastFetchedCenter = &c
		}
		snap = SessionSnapshot{
			ID:         s.id,
			Viewport:   vp,
			Status:     s.status,
			Generation: s.generation,
			Counts: map[domain.Variant]int{
				domain.VariantGeneral:  s.places.Len(),
				domain.VariantCharging: s.stations.Len(),
			},
			StaleDrops: s.staleDrops,
			CreatedAt:  s.createdAt,
		}
	})
	return snap, err
}

// POIs returns the registered POIs of a variant in fetch order.
func (s *Session) POIs(ctx context.Context, variant domain.Variant) ([]domain.POI, error) {
	var out []domain.POI
	err := s.call(ctx, func() {
		switch variant {
		case domain.VariantGeneral:
			for _, p := range s.places.Items() {
				out = append(out, p)
			}
		case domain.VariantCharging:
			for _, p := range s.stations.Items() {
				out = append(out, p)
			}
		}
	})
	return out, err
}

// MarkerHandles returns the registry's marker handles for a variant.
func (s *Session) MarkerHandles(ctx context.Context, variant domain.Variant) ([]domain.MarkerHandle, error) {
	var out []domain.MarkerHandle
	err := s.call(ctx, func() {
		switch variant {
		case domain.VariantGeneral:
			out = s.places.Handles()
		case domain.VariantCharging:
			out = s.stations.Handles()
		}
	})
	return out, err
}

// Popups returns the open popups, at most one per variant.
func (s *Session) Popups(ctx context.Context) ([]domain.OpenPopup, error) {
	var out []domain.OpenPopup
	err := s.call(ctx, func() {
		for _, v := range domain.Variants {
			if w, ok := s.windows[v]; ok {
				if p, open := w.Active(); open {
					out = append(out, p)
				}
			}
		}
	})
	return out, err
}

// MoreInfo triggers the "more info" action of a variant's open popup and
// returns the path navigated to.
func (s *Session) MoreInfo(ctx context.Context, variant domain.Variant) (string, error) {
	var (
		path string
		ierr error
	)
	err := s.call(ctx, func() {
		w, ok := s.windows[variant]
		if !ok {
			ierr = domain.ErrNoActivePopup
			return
		}
		path, ierr = w.MoreInfo()
	})
	if err != nil {
		return "", err
	}
	return path, ierr
}

// ClosePopup closes a variant's open popup.
func (s *Session) ClosePopup(ctx context.Context, variant domain.Variant) error {
	var ierr error
	err := s.call(ctx, func() {
		w, ok := s.windows[variant]
		if !ok {
			ierr = domain.ErrNoActivePopup
			return
		}
		if _, open := w.Active(); !open {
			ierr = domain.ErrNoActivePopup
			return
		}
		w.Close()
	})
	if err != nil {
		return err
	}
	return ierr
}

// Close unmounts the map: popups are closed, every marker is destroyed and
// in-flight work is cancelled. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.startOnce.Do(func() { go s.run() })
		err = s.call(ctx, s.unmount)
		s.cancel()
		close(s.done)
		<-s.stopped
		if s.deps.Locator != nil {
			if recv, ok := s.deps.Locator.(ports.LocationReceiver); ok {
				recv.Reject(domain.ErrSessionClosed)
			}
		}
		s.publish(domain.SessionEvent{SessionID: s.id, Kind: domain.EventUnmounted, At: time.Now()})
	})
	return err
}

func (s *Session) unmount() {
	for _, w := range s.windows {
		w.Close()
	}
	places := s.places.Clear()
	stations := s.stations.Clear()
	s.generation++ // outstanding responses become stale
	if s.cycle != nil {
		s.cycle.span.End()
		s.cycle = nil
	}
	s.log.Info("session unmounted", "markers_removed", places.Removed+stations.Removed)
}

// clickHandler returns the marker callback for a variant. It runs on the
// surface's goroutine and forwards into the mailbox.
func (s *Session) clickHandler(variant domain.Variant) func(key string) {
	return func(key string) {
		s.post(func() { s.onMarkerClick(variant, key) })
	}
}

func (s *Session) onMarkerClick(variant domain.Variant, key string) {
	var (
		poi domain.POI
		ok  bool
	)
	switch variant {
	case domain.VariantGeneral:
		poi, ok = s.places.Lookup(key)
	case domain.VariantCharging:
		poi, ok = s.stations.Lookup(key)
	}
	if !ok {
		s.log.Debug("click on removed marker", "variant", variant, "key", key)
		return
	}
	s.window(variant).ShowFor(poi)
}

// window lazily creates the variant's InfoWindowController.
func (s *Session) window(variant domain.Variant) *InfoWindowController {
	w, ok := s.windows[variant]
	if !ok {
		w = NewInfoWindowController(s.ctx, variant, s.deps.Surface, s.deps.Router, s.deps.Chargers, s.spawn, s.log)
		s.windows[variant] = w
	}
	return w
}

func (s *Session) setStatus(code domain.StatusCode, msg string) {
	s.status = domain.Status{Code: code, Message: msg, UpdatedAt: time.Now()}
	s.deps.Surface.ShowStatus(s.status)
}

func (s *Session) showViewport() {
	s.deps.Surface.ShowViewport(s.viewport)
}

// publish sends ev without blocking the owning goroutine.
func (s *Session) publish(ev domain.SessionEvent) {
	if s.deps.Events == nil {
		return
	}
	s.spawn(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.deps.Events.PublishSessionEvent(ctx, ev); err != nil {
			s.log.Warn("publish session event", "kind", ev.Kind, "error", err)
		}
		return nil
	})
}
