package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/poimap/internal/adapters/api"
	"github.com/samirrijal/poimap/internal/adapters/charger"
	"github.com/samirrijal/poimap/internal/adapters/geo"
	"github.com/samirrijal/poimap/internal/adapters/geoclue"
	"github.com/samirrijal/poimap/internal/adapters/http"
	natsadapter "github.com/samirrijal/poimap/internal/adapters/nats"
	"github.com/samirrijal/poimap/internal/adapters/render"
	"github.com/samirrijal/poimap/internal/adapters/valkey"
	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/core/usecases"
	"github.com/samirrijal/poimap/internal/pkg/config"
	"github.com/samirrijal/poimap/internal/pkg/logging"
	"github.com/samirrijal/poimap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("poimap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{}

	// Token store: Valkey when configured, otherwise in process
	var tokens ports.TokenStore
	ttl := time.Duration(cfg.Valkey.TokenTTL) * time.Second
	if cfg.Valkey.Addr != "" {
		store, err := valkey.New(cfg.Valkey.Addr, ttl)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer store.Close()
		tokens = store
		deps.Tokens = store
	} else {
		tokens = valkey.NewMemory(ttl)
	}

	// Render fan-out and session events: NATS when configured, otherwise in process
	var (
		sink   ports.RenderSink
		events ports.EventPublisher
	)
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL, slog.Default())
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer pub.Close()

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, slog.Default())
		if err != nil {
			log.Fatalf("nats subscriber: %v", err)
		}
		defer sub.Close()

		sink, events = pub, pub
		deps.Feed = sub
		deps.NATS = pub
	} else {
		hub := render.NewHub()
		sink = hub
		deps.Feed = hub
	}

	newLocator, err := locatorFactory(cfg.Geolocation)
	if err != nil {
		log.Fatalf("geolocation: %v", err)
	}

	maps := usecases.NewMapService(sessionConfig(cfg), usecases.MapServiceDeps{
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
		Tokens: tokens,
		Events: events,
		NewView: func(id string) usecases.View {
			c := render.NewCanvas(id, sink)
			return usecases.View{Surface: c, Router: c}
		},
		NewLocator: newLocator,
	})
	deps.Maps = maps

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "POIMap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "geolocation", cfg.Geolocation.Provider)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	maps.Shutdown(shutdownCtx)

	slog.Info("server stopped")
}

func sessionConfig(cfg *config.Config) usecases.SessionConfig {
	return usecases.SessionConfig{
		ThresholdKm:        cfg.Viewport.ThresholdKm,
		AdvanceOnFailure:   cfg.Viewport.AdvanceOnFailure,
		RetryAtDefault:     cfg.Bootstrap.RetryAtDefault,
		GeolocationTimeout: cfg.Geolocation.Timeout(),
		DefaultCenter:      domain.Coordinate{Lat: cfg.Geolocation.DefaultLat, Lng: cfg.Geolocation.DefaultLng},
	}
}

func locatorFactory(g config.GeolocationConfig) (func() ports.Geolocator, error) {
	switch g.Provider {
	case "client":
		return func() ports.Geolocator { return geo.NewDeferred() }, nil
	case "geoclue":
		l := geoclue.New(g.DesktopID, slog.Default())
		return func() ports.Geolocator { return l }, nil
	case "static":
		s := geo.Static{At: domain.Coordinate{Lat: g.StaticLat, Lng: g.StaticLng}}
		return func() ports.Geolocator { return s }, nil
	case "none":
		return func() ports.Geolocator { return geo.Unavailable{} }, nil
	}
	return nil, fmt.Errorf("unknown provider %q", g.Provider)
}
