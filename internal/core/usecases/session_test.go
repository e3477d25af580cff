package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/usecases"
)

func TestBootstrap_LocatedFetchesBothVariants(t *testing.T) {
	fix := domain.Coordinate{Lat: 37.5, Lng: 127.0}
	surface := newMockSurface()
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return places(c, 1, 2, 3), nil
		},
	}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(fix), Surface: surface})
	settle(t, s)

	snap := snapshot(t, s)
	if snap.Counts[domain.VariantGeneral] != 3 {
		t.Errorf("expected 3 general entries, got %d", snap.Counts[domain.VariantGeneral])
	}
	if snap.Counts[domain.VariantCharging] != 0 {
		t.Errorf("expected 0 charging entries, got %d", snap.Counts[domain.VariantCharging])
	}
	if snap.Viewport.LastFetchedCenter == nil || *snap.Viewport.LastFetchedCenter != fix {
		t.Errorf("expected lastFetchedCenter %v, got %v", fix, snap.Viewport.LastFetchedCenter)
	}
	if snap.Viewport.UserLocation == nil || *snap.Viewport.UserLocation != fix {
		t.Errorf("expected user location %v, got %v", fix, snap.Viewport.UserLocation)
	}
	if snap.Status.Code != domain.StatusReady {
		t.Errorf("expected ready, got %s", snap.Status.Code)
	}
	if p, st := fetcher.calls(); p != 1 || st != 1 {
		t.Errorf("expected one fetch per variant, got %d/%d", p, st)
	}
	if got := len(surface.clusters[domain.VariantGeneral].set()); got != 3 {
		t.Errorf("expected 3 clustered markers, got %d", got)
	}
}

func TestBootstrap_DeniedFallsBackToDefault(t *testing.T) {
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return nil, errors.New("503 service unavailable")
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			return nil, errors.New("503 service unavailable")
		},
	}
	surface := newMockSurface()
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: deniedLocator(), Surface: surface})
	settle(t, s)

	fetcher.mu.Lock()
	placeCenter := fetcher.placeCalls[0]
	stationCenter := fetcher.stationCalls[0]
	fetcher.mu.Unlock()
	if placeCenter != domain.DefaultCenter || stationCenter != domain.DefaultCenter {
		t.Errorf("expected fetches at %v, got %v and %v", domain.DefaultCenter, placeCenter, stationCenter)
	}

	snap := snapshot(t, s)
	if snap.Status.Code != domain.StatusFetchFailure {
		t.Errorf("expected fetch_failure, got %s", snap.Status.Code)
	}
	if snap.Counts[domain.VariantGeneral] != 0 || snap.Counts[domain.VariantCharging] != 0 {
		t.Errorf("expected empty registries, got %v", snap.Counts)
	}
	if !snap.Viewport.UsingDefault || snap.Viewport.Center != domain.DefaultCenter {
		t.Errorf("expected default viewport, got %+v", snap.Viewport)
	}

	sawUnavailable := false
	for _, st := range surface.statuses {
		if st.Code == domain.StatusLocationUnavailable {
			sawUnavailable = true
		}
	}
	if !sawUnavailable {
		t.Error("expected a location_unavailable status before the fetch")
	}
	if p, st := fetcher.calls(); p != 1 || st != 1 {
		t.Errorf("expected no retry, got %d/%d fetches", p, st)
	}
}

func TestBootstrap_GeolocationTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.GeolocationTimeout = 20 * time.Millisecond
	locator := &mockLocator{locateFn: func(ctx context.Context) (domain.Coordinate, error) {
		<-ctx.Done()
		return domain.Coordinate{}, ctx.Err()
	}}
	fetcher := &mockFetcher{}
	s := startSession(t, cfg, usecases.SessionDeps{Fetcher: fetcher, Locator: locator, Surface: newMockSurface()})
	settle(t, s)

	snap := snapshot(t, s)
	if snap.Viewport.LastFetchedCenter == nil || *snap.Viewport.LastFetchedCenter != domain.DefaultCenter {
		t.Errorf("expected fetch at default center, got %v", snap.Viewport.LastFetchedCenter)
	}
}

func TestBootstrap_RetryAtDefault(t *testing.T) {
	fix := domain.Coordinate{Lat: 35.1796, Lng: 129.0756}
	cfg := testConfig()
	cfg.RetryAtDefault = true
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			if c == fix {
				return nil, errors.New("timeout")
			}
			return places(c, 1), nil
		},
	}
	s := startSession(t, cfg, usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(fix), Surface: newMockSurface()})
	settle(t, s)

	if p, _ := fetcher.calls(); p != 2 {
		t.Fatalf("expected a retry at the default center, got %d place fetches", p)
	}
	snap := snapshot(t, s)
	if *snap.Viewport.LastFetchedCenter != domain.DefaultCenter {
		t.Errorf("expected lastFetchedCenter %v, got %v", domain.DefaultCenter, *snap.Viewport.LastFetchedCenter)
	}
	if snap.Counts[domain.VariantGeneral] != 1 || snap.Status.Code != domain.StatusReady {
		t.Errorf("expected ready with 1 place, got %v %s", snap.Counts, snap.Status.Code)
	}
}

func TestCamera_IgnoredBeforeBootstrap(t *testing.T) {
	release := make(chan struct{})
	locator := &mockLocator{locateFn: func(ctx context.Context) (domain.Coordinate, error) {
		<-release
		return seoul, nil
	}}
	fetcher := &mockFetcher{}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locator, Surface: newMockSurface()})

	d, err := s.CameraChanged(context.Background(), moved(seoul, 100))
	if err != nil {
		t.Fatal(err)
	}
	if d != domain.CameraIgnored {
		t.Errorf("expected ignored, got %s", d)
	}
	if p, st := fetcher.calls(); p != 0 || st != 0 {
		t.Errorf("expected no fetch, got %d/%d", p, st)
	}
	close(release)
	settle(t, s)
	if p, st := fetcher.calls(); p != 1 || st != 1 {
		t.Errorf("expected only the bootstrap fetch, got %d/%d", p, st)
	}
}

func TestCamera_WithinThresholdNoFetch(t *testing.T) {
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return places(c, 1, 2), nil
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			return stations(c, "A"), nil
		},
	}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: newMockSurface()})
	settle(t, s)

	before, _ := s.MarkerHandles(context.Background(), domain.VariantGeneral)
	for _, km := range []float64{5, 29.9} {
		d, err := s.CameraChanged(context.Background(), moved(seoul, km))
		if err != nil {
			t.Fatal(err)
		}
		if d != domain.CameraWithinThreshold {
			t.Errorf("%.1f km: expected within_threshold, got %s", km, d)
		}
	}
	settle(t, s)

	if p, st := fetcher.calls(); p != 1 || st != 1 {
		t.Errorf("expected no additional fetch, got %d/%d", p, st)
	}
	after, _ := s.MarkerHandles(context.Background(), domain.VariantGeneral)
	if !sameHandles(before, after) {
		t.Error("expected registry unchanged")
	}
	if snap := snapshot(t, s); snap.Counts[domain.VariantCharging] != 1 {
		t.Errorf("expected charging registry unchanged, got %d", snap.Counts[domain.VariantCharging])
	}
}

func TestCamera_BeyondThresholdRefetches(t *testing.T) {
	far := moved(seoul, 40)
	gate := make(chan struct{})
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			if c == far {
				<-gate
				return places(c, 7, 8), nil
			}
			return places(c, 1, 2, 3), nil
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			if c == far {
				<-gate
				return stations(c, "Z"), nil
			}
			return stations(c, "A", "B"), nil
		},
	}
	surface := newMockSurface()
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: surface})
	settle(t, s)

	d, err := s.CameraChanged(context.Background(), far)
	if err != nil {
		t.Fatal(err)
	}
	if d != domain.CameraRefetch {
		t.Fatalf("expected refetch, got %s", d)
	}

	// Lists are cleared before the responses arrive.
	snap := snapshot(t, s)
	if snap.Counts[domain.VariantGeneral] != 0 || snap.Counts[domain.VariantCharging] != 0 {
		t.Errorf("expected cleared registries while loading, got %v", snap.Counts)
	}
	if surface.markerCount() != 0 {
		t.Errorf("expected no mounted markers while loading, got %d", surface.markerCount())
	}
	if snap.Status.Code != domain.StatusLoading {
		t.Errorf("expected loading status, got %s", snap.Status.Code)
	}
	if *snap.Viewport.LastFetchedCenter != seoul {
		t.Errorf("lastFetchedCenter must not move before the cycle settles")
	}

	close(gate)
	settle(t, s)

	if p, st := fetcher.calls(); p != 2 || st != 2 {
		t.Errorf("expected exactly one more fetch per variant, got %d/%d", p, st)
	}
	snap = snapshot(t, s)
	if snap.Counts[domain.VariantGeneral] != 2 || snap.Counts[domain.VariantCharging] != 1 {
		t.Errorf("expected rebuilt registries 2/1, got %v", snap.Counts)
	}
	if *snap.Viewport.LastFetchedCenter != far {
		t.Errorf("expected lastFetchedCenter %v, got %v", far, *snap.Viewport.LastFetchedCenter)
	}
	for _, v := range domain.Variants {
		hs, _ := s.MarkerHandles(context.Background(), v)
		if !sameHandles(hs, surface.clusters[v].set()) {
			t.Errorf("%s: cluster index differs from registry", v)
		}
	}
}

func TestCamera_PartialFailure(t *testing.T) {
	far := moved(seoul, 50)
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return places(c, 1, 2), nil
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			if c == far {
				return nil, errors.New("connection reset")
			}
			return stations(c, "A"), nil
		},
	}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: newMockSurface()})
	settle(t, s)

	if _, err := s.CameraChanged(context.Background(), far); err != nil {
		t.Fatal(err)
	}
	settle(t, s)

	snap := snapshot(t, s)
	if snap.Status.Code != domain.StatusPartialFailure {
		t.Errorf("expected partial_failure, got %s", snap.Status.Code)
	}
	if snap.Counts[domain.VariantGeneral] != 2 {
		t.Errorf("expected places to update despite station failure, got %d", snap.Counts[domain.VariantGeneral])
	}
	if snap.Counts[domain.VariantCharging] != 0 {
		t.Errorf("expected empty station list, got %d", snap.Counts[domain.VariantCharging])
	}
}

func TestCamera_AdvanceOnFailure(t *testing.T) {
	far := moved(seoul, 60)
	tests := []struct {
		name string
		// failAt is the center whose place fetch fails.
		failAt        domain.Coordinate
		advance       bool
		first         domain.Coordinate // camera move after bootstrap
		wantLast      *domain.Coordinate
		next          domain.Coordinate // follow-up small move
		want          domain.CameraDecision
		wantLastAfter *domain.Coordinate
		wantPlaces    int
	}{
		{"advance suppresses refetch", far, true, far, &far, moved(far, 1), domain.CameraWithinThreshold, &far, 2},
		{"hold allows retry", far, false, far, &seoul, moved(far, 1), domain.CameraRefetch, ptr(moved(far, 1)), 3},
		{"hold retries after failed bootstrap", seoul, false, moved(seoul, 5), ptr(moved(seoul, 5)), moved(seoul, 6), domain.CameraWithinThreshold, ptr(moved(seoul, 5)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failAt := tt.failAt
			fetcher := &mockFetcher{
				placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
					if c == failAt {
						return nil, errors.New("boom")
					}
					return places(c, 1), nil
				},
			}
			cfg := testConfig()
			cfg.AdvanceOnFailure = tt.advance
			s := startSession(t, cfg, usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: newMockSurface()})
			settle(t, s)

			if tt.failAt == seoul {
				snap := snapshot(t, s)
				if snap.Status.Code != domain.StatusPartialFailure || snap.Viewport.LastFetchedCenter != nil {
					t.Fatalf("expected failed bootstrap without a fetched center, got %s %v", snap.Status.Code, snap.Viewport.LastFetchedCenter)
				}
			}

			d, err := s.CameraChanged(context.Background(), tt.first)
			if err != nil {
				t.Fatal(err)
			}
			if d != domain.CameraRefetch {
				t.Fatalf("expected refetch on first move, got %s", d)
			}
			settle(t, s)

			snap := snapshot(t, s)
			if !sameCenter(snap.Viewport.LastFetchedCenter, tt.wantLast) {
				t.Errorf("expected lastFetchedCenter %v, got %v", tt.wantLast, snap.Viewport.LastFetchedCenter)
			}

			d, _ = s.CameraChanged(context.Background(), tt.next)
			if d != tt.want {
				t.Errorf("expected %s after small move, got %s", tt.want, d)
			}
			settle(t, s)

			snap = snapshot(t, s)
			if !sameCenter(snap.Viewport.LastFetchedCenter, tt.wantLastAfter) {
				t.Errorf("expected lastFetchedCenter %v, got %v", tt.wantLastAfter, snap.Viewport.LastFetchedCenter)
			}
			if p, _ := fetcher.calls(); p != tt.wantPlaces {
				t.Errorf("expected %d place fetches, got %d", tt.wantPlaces, p)
			}
		})
	}
}

func TestCamera_StaleResponseDropped(t *testing.T) {
	first := moved(seoul, 40)
	second := moved(seoul, 100)
	slow := make(chan struct{})
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			switch c {
			case first:
				<-slow
				return places(c, 100, 101, 102), nil
			case second:
				return places(c, 200), nil
			}
			return places(c, 1), nil
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			if c == first {
				<-slow
				return stations(c, "OLD"), nil
			}
			return nil, nil
		},
	}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: newMockSurface()})
	settle(t, s)

	// lastFetchedCenter is still seoul, so both moves start a cycle
	if d, _ := s.CameraChanged(context.Background(), first); d != domain.CameraRefetch {
		t.Fatalf("expected refetch, got %s", d)
	}
	if d, _ := s.CameraChanged(context.Background(), second); d != domain.CameraRefetch {
		t.Fatalf("expected refetch, got %s", d)
	}

	// wait until the second cycle has settled, then let the first one finish
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := snapshot(t, s)
		if snap.Viewport.LastFetchedCenter != nil && *snap.Viewport.LastFetchedCenter == second {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second cycle never settled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(slow)
	settle(t, s)

	snap := snapshot(t, s)
	if snap.StaleDrops != 2 {
		t.Errorf("expected 2 stale responses dropped, got %d", snap.StaleDrops)
	}
	pois, _ := s.POIs(context.Background(), domain.VariantGeneral)
	if len(pois) != 1 || pois[0].Key() != "general:200" {
		t.Errorf("expected only the newest data, got %v", pois)
	}
	if *snap.Viewport.LastFetchedCenter != second {
		t.Errorf("stale cycle moved lastFetchedCenter to %v", *snap.Viewport.LastFetchedCenter)
	}
}

func TestSession_BearerToken(t *testing.T) {
	tokens := &mockTokens{}
	_ = tokens.SetToken(context.Background(), "test-session", "jwt-123")
	fetcher := &mockFetcher{}
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: newMockSurface(), Tokens: tokens})
	settle(t, s)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if len(fetcher.tokens) != 1 || fetcher.tokens[0] != "jwt-123" {
		t.Errorf("expected bearer token jwt-123, got %v", fetcher.tokens)
	}
}

func TestSession_ClickOpensPopup(t *testing.T) {
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return places(c, 5), nil
		},
	}
	surface := newMockSurface()
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: surface})
	settle(t, s)

	h, ok := surface.handleFor("general:5")
	if !ok {
		t.Fatal("expected a marker for general:5")
	}
	if err := s.ClickMarker(h); err != nil {
		t.Fatal(err)
	}
	settle(t, s)

	popups, err := s.Popups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(popups) != 1 || popups[0].Content.Key != "general:5" {
		t.Fatalf("expected popup for general:5, got %+v", popups)
	}

	if err := s.ClickMarker("missing"); !errors.Is(err, domain.ErrUnknownMarker) {
		t.Errorf("expected ErrUnknownMarker, got %v", err)
	}
}

func TestSession_CloseUnmountsEverything(t *testing.T) {
	fetcher := &mockFetcher{
		placesFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.GeneralPlace, error) {
			return places(c, 1, 2), nil
		},
		stationsFn: func(ctx context.Context, c domain.Coordinate, tok string) ([]domain.ChargingStation, error) {
			return stations(c, "A"), nil
		},
	}
	surface := newMockSurface()
	s := startSession(t, testConfig(), usecases.SessionDeps{Fetcher: fetcher, Locator: locatedAt(seoul), Surface: surface})
	settle(t, s)

	h, _ := surface.handleFor("charging:A")
	_ = s.ClickMarker(h)
	settle(t, s)

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if surface.markerCount() != 0 {
		t.Errorf("expected all markers destroyed, got %d", surface.markerCount())
	}
	if n := len(surface.openPopups()); n != 0 {
		t.Errorf("expected popups closed, got %d", n)
	}
	if _, err := s.Snapshot(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}
