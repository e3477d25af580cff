// Command replay drives a headless map session along a recorded camera track
// and logs every reconciliation the engine performs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/poimap/internal/adapters/api"
	"github.com/samirrijal/poimap/internal/adapters/charger"
	"github.com/samirrijal/poimap/internal/adapters/geo"
	"github.com/samirrijal/poimap/internal/adapters/render"
	"github.com/samirrijal/poimap/internal/adapters/valkey"
	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/core/usecases"
	"github.com/samirrijal/poimap/internal/pkg/config"
	"github.com/samirrijal/poimap/internal/pkg/logging"
)

// Track is a recorded camera path.
type Track struct {
	Token string     `json:"token,omitempty"`
	Start *Waypoint  `json:"start,omitempty"`
	Steps []Waypoint `json:"steps"`
}

// Waypoint is one camera position; PauseMS is waited after moving there.
type Waypoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	PauseMS int     `json:"pause_ms,omitempty"`
}

func (w Waypoint) coordinate() domain.Coordinate {
	return domain.Coordinate{Lat: w.Lat, Lng: w.Lng}
}

func loadTrack(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse track: %w", err)
	}
	if len(t.Steps) == 0 {
		return nil, errors.New("track has no steps")
	}
	if t.Start != nil {
		if !t.Start.coordinate().Valid() {
			return nil, fmt.Errorf("start %s out of range", t.Start.coordinate())
		}
	}
	for i, s := range t.Steps {
		if !s.coordinate().Valid() {
			return nil, fmt.Errorf("step %d: %s out of range", i, s.coordinate())
		}
	}
	return &t, nil
}

func main() {
	cfg, err := config.Load("poimap-replay")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	trackPath := "track.json"
	if len(os.Args) > 1 {
		trackPath = os.Args[1]
	}
	track, err := loadTrack(trackPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := render.NewHub()
	var canvas *render.Canvas

	start := track.Steps[0]
	if track.Start != nil {
		start = *track.Start
	}

	maps := usecases.NewMapService(usecases.SessionConfig{
		ThresholdKm:        cfg.Viewport.ThresholdKm,
		AdvanceOnFailure:   cfg.Viewport.AdvanceOnFailure,
		RetryAtDefault:     cfg.Bootstrap.RetryAtDefault,
		GeolocationTimeout: cfg.Geolocation.Timeout(),
		DefaultCenter:      domain.Coordinate{Lat: cfg.Geolocation.DefaultLat, Lng: cfg.Geolocation.DefaultLng},
	}, usecases.MapServiceDeps{
		Fetcher: api.New(api.Config{
			BaseURL:      cfg.Backend.BaseURL,
			PlacesPath:   cfg.Backend.PlacesPath,
			StationsPath: cfg.Backend.StationsPath,
			Timeout:      cfg.Backend.Timeout(),
		}),
		Chargers: charger.New(charger.Config{
			StatusURL:  cfg.Charger.StatusURL,
			ServiceKey: cfg.Charger.ServiceKey,
			Period:     cfg.Charger.Period,
			Timeout:    cfg.Charger.Timeout(),
		}),
		Tokens: valkey.NewMemory(0),
		NewView: func(id string) usecases.View {
			canvas = render.NewCanvas(id, hub)
			return usecases.View{Surface: canvas, Router: canvas}
		},
		NewLocator: func() ports.Geolocator { return geo.Static{At: start.coordinate()} },
	})
	defer maps.Shutdown(context.Background())

	sess, err := maps.Mount(ctx, usecases.MountRequest{Token: track.Token})
	if err != nil {
		log.Fatalf("mount: %v", err)
	}

	cancelFeed, _ := hub.Subscribe(sess.ID(), func(cmd domain.RenderCommand) {
		if cmd.Op == domain.OpStatus && cmd.Status != nil {
			slog.Info("status", "code", cmd.Status.Code, "message", cmd.Status.Message)
		}
	})
	defer cancelFeed()

	slog.Info("replay starting", "session", sess.ID(), "steps", len(track.Steps), "start", start.coordinate())

	if err := settle(ctx, sess); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	report(ctx, sess, canvas, "bootstrap", domain.CameraRefetch)

	for i, step := range track.Steps {
		decision, err := sess.CameraChanged(ctx, step.coordinate())
		if err != nil {
			slog.Error("camera changed", "step", i, "error", err)
			return
		}
		if decision == domain.CameraRefetch {
			if err := settle(ctx, sess); err != nil {
				slog.Error("settle", "step", i, "error", err)
				return
			}
		}
		report(ctx, sess, canvas, fmt.Sprintf("step %d", i), decision)

		if step.PauseMS > 0 {
			select {
			case <-time.After(time.Duration(step.PauseMS) * time.Millisecond):
			case <-ctx.Done():
				slog.Info("replay interrupted", "step", i)
				return
			}
		}
	}

	slog.Info("replay finished", "session", sess.ID(), "render_commands", canvas.Seq())
}

func settle(ctx context.Context, sess *usecases.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return sess.Settle(ctx)
}

func report(ctx context.Context, sess *usecases.Session, canvas *render.Canvas, label string, decision domain.CameraDecision) {
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		slog.Warn("snapshot", "error", err)
		return
	}
	slog.Info(label,
		"decision", decision,
		"center", snap.Viewport.Center,
		"last_fetched", snap.Viewport.LastFetchedCenter,
		"generation", snap.Generation,
		"places", snap.Counts[domain.VariantGeneral],
		"stations", snap.Counts[domain.VariantCharging],
		"markers", len(canvas.Markers()),
		"stale_drops", snap.StaleDrops,
	)
}
