package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/core/usecases"
	"github.com/samirrijal/poimap/internal/pkg/geospatial"
)

// --- Mock MapSurface ---

type mockMarker struct {
	variant domain.Variant
	key     string
	at      domain.Coordinate
	onClick func()
}

type mockCluster struct {
	mu      sync.Mutex
	handles map[domain.MarkerHandle]bool
	clears  int
}

func (c *mockCluster) ClearMarkers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[domain.MarkerHandle]bool)
	c.clears++
}

func (c *mockCluster) AddMarkers(handles []domain.MarkerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handles == nil {
		c.handles = make(map[domain.MarkerHandle]bool)
	}
	for _, h := range handles {
		c.handles[h] = true
	}
}

func (c *mockCluster) set() []domain.MarkerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.MarkerHandle, 0, len(c.handles))
	for h := range c.handles {
		out = append(out, h)
	}
	sortHandles(out)
	return out
}

type mockSurface struct {
	mu        sync.Mutex
	next      int
	markers   map[domain.MarkerHandle]mockMarker
	mounts    int
	unmounts  int
	clusters  map[domain.Variant]*mockCluster
	popups    map[domain.PopupHandle]domain.OpenPopup
	opens     int
	updates   int
	statuses  []domain.Status
	viewports []domain.ViewportState
}

func newMockSurface() *mockSurface {
	return &mockSurface{
		markers: make(map[domain.MarkerHandle]mockMarker),
		clusters: map[domain.Variant]*mockCluster{
			domain.VariantGeneral:  {},
			domain.VariantCharging: {},
		},
		popups: make(map[domain.PopupHandle]domain.OpenPopup),
	}
}

func (m *mockSurface) MountMarker(variant domain.Variant, key string, at domain.Coordinate, onClick func()) domain.MarkerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	h := domain.MarkerHandle(fmt.Sprintf("m%d", m.next))
	m.markers[h] = mockMarker{variant: variant, key: key, at: at, onClick: onClick}
	m.mounts++
	return h
}

func (m *mockSurface) UnmountMarker(h domain.MarkerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, h)
	m.unmounts++
}

func (m *mockSurface) ClusterOverlay(v domain.Variant) ports.ClusterOverlay {
	return m.clusters[v]
}

func (m *mockSurface) OpenPopup(content domain.PopupContent, at domain.Coordinate) domain.PopupHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	h := domain.PopupHandle(fmt.Sprintf("p%d", m.next))
	m.popups[h] = domain.OpenPopup{Handle: h, Position: at, Content: content}
	m.opens++
	return h
}

func (m *mockSurface) UpdatePopup(h domain.PopupHandle, content domain.PopupContent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.popups[h]; ok {
		p.Content = content
		m.popups[h] = p
		m.updates++
	}
}

func (m *mockSurface) ClosePopup(h domain.PopupHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.popups, h)
}

func (m *mockSurface) ShowStatus(s domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, s)
}

func (m *mockSurface) ShowViewport(vp domain.ViewportState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewports = append(m.viewports, vp)
}

func (m *mockSurface) Click(h domain.MarkerHandle) error {
	m.mu.Lock()
	mk, ok := m.markers[h]
	m.mu.Unlock()
	if !ok {
		return domain.ErrUnknownMarker
	}
	if mk.onClick != nil {
		mk.onClick()
	}
	return nil
}

func (m *mockSurface) markerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers)
}

func (m *mockSurface) openPopups() []domain.OpenPopup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OpenPopup, 0, len(m.popups))
	for _, p := range m.popups {
		out = append(out, p)
	}
	return out
}

func (m *mockSurface) handleFor(key string) (domain.MarkerHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, mk := range m.markers {
		if mk.key == key {
			return h, true
		}
	}
	return "", false
}

// --- Mock POIFetcher ---

type mockFetcher struct {
	placesFn   func(ctx context.Context, center domain.Coordinate, token string) ([]domain.GeneralPlace, error)
	stationsFn func(ctx context.Context, center domain.Coordinate, token string) ([]domain.ChargingStation, error)

	mu           sync.Mutex
	placeCalls   []domain.Coordinate
	stationCalls []domain.Coordinate
	tokens       []string
}

func (m *mockFetcher) FetchPlaces(ctx context.Context, center domain.Coordinate, token string) ([]domain.GeneralPlace, error) {
	m.mu.Lock()
	m.placeCalls = append(m.placeCalls, center)
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	if m.placesFn != nil {
		return m.placesFn(ctx, center, token)
	}
	return nil, nil
}

func (m *mockFetcher) FetchStations(ctx context.Context, center domain.Coordinate, token string) ([]domain.ChargingStation, error) {
	m.mu.Lock()
	m.stationCalls = append(m.stationCalls, center)
	m.mu.Unlock()
	if m.stationsFn != nil {
		return m.stationsFn(ctx, center, token)
	}
	return nil, nil
}

func (m *mockFetcher) calls() (places, stations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.placeCalls), len(m.stationCalls)
}

// --- Mock Geolocator ---

type mockLocator struct {
	locateFn func(ctx context.Context) (domain.Coordinate, error)
}

func (m *mockLocator) Locate(ctx context.Context) (domain.Coordinate, error) {
	if m.locateFn != nil {
		return m.locateFn(ctx)
	}
	return domain.Coordinate{}, errors.New("not configured")
}

func locatedAt(c domain.Coordinate) *mockLocator {
	return &mockLocator{locateFn: func(ctx context.Context) (domain.Coordinate, error) { return c, nil }}
}

func deniedLocator() *mockLocator {
	return &mockLocator{locateFn: func(ctx context.Context) (domain.Coordinate, error) {
		return domain.Coordinate{}, errors.New("permission denied")
	}}
}

// --- Mock ChargerStatusFetcher ---

type mockChargers struct {
	fetchFn func(ctx context.Context, stationID string) ([]domain.ChargerStatusItem, error)
}

func (m *mockChargers) FetchChargerStatus(ctx context.Context, stationID string) ([]domain.ChargerStatusItem, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, stationID)
	}
	return nil, nil
}

// --- Mock Router ---

type mockRouter struct {
	mu    sync.Mutex
	paths []string
}

func (m *mockRouter) Navigate(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
}

// --- Mock TokenStore ---

type mockTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *mockTokens) Token(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return "", errors.New("no token")
	}
	return t, nil
}

func (m *mockTokens) SetToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[id] = token
	return nil
}

func (m *mockTokens) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

// --- Helpers ---

func places(center domain.Coordinate, ids ...int64) []domain.GeneralPlace {
	out := make([]domain.GeneralPlace, len(ids))
	for i, id := range ids {
		out[i] = domain.GeneralPlace{
			PlaceID:  id,
			Title:    fmt.Sprintf("place %d", id),
			Location: domain.Coordinate{Lat: center.Lat + float64(i)*0.001, Lng: center.Lng},
		}
	}
	return out
}

func stations(center domain.Coordinate, ids ...string) []domain.ChargingStation {
	out := make([]domain.ChargingStation, len(ids))
	for i, id := range ids {
		out[i] = domain.ChargingStation{
			StationID:    id,
			Name:         "station " + id,
			OperatorName: "operator",
			Location:     domain.Coordinate{Lat: center.Lat, Lng: center.Lng + float64(i)*0.001},
		}
	}
	return out
}

// moved returns the point km kilometers east of c.
func moved(c domain.Coordinate, km float64) domain.Coordinate {
	lat, lng := geospatial.Offset(c.Lat, c.Lng, km, 90)
	return domain.Coordinate{Lat: lat, Lng: lng}
}

func testConfig() usecases.SessionConfig {
	cfg := usecases.DefaultSessionConfig()
	cfg.GeolocationTimeout = time.Second
	return cfg
}

func startSession(t *testing.T, cfg usecases.SessionConfig, deps usecases.SessionDeps) *usecases.Session {
	t.Helper()
	s := usecases.NewSession("test-session", cfg, deps)
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func settle(t *testing.T, s *usecases.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func snapshot(t *testing.T, s *usecases.Session) usecases.SessionSnapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func sortHandles(hs []domain.MarkerHandle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
}

func sameHandles(a, b []domain.MarkerHandle) bool {
	a = append([]domain.MarkerHandle(nil), a...)
	b = append([]domain.MarkerHandle(nil), b...)
	sortHandles(a)
	sortHandles(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ptr(c domain.Coordinate) *domain.Coordinate { return &c }

func sameCenter(got, want *domain.Coordinate) bool {
	if got == nil || want == nil {
		return got == want
	}
	return *got == *want
}
