package usecases

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/pkg/geospatial"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/poimap/internal/core/usecases")

type cycleOrigin string

const (
	originBootstrap    cycleOrigin = "bootstrap"
	originDefaultRetry cycleOrigin = "default_retry"
	originCamera       cycleOrigin = "camera"
)

// fetchCycle is one concurrent fetch of both variants around a center.
type fetchCycle struct {
	gen     uint64
	center  domain.Coordinate
	origin  cycleOrigin
	results map[domain.Variant]error
	ctx     context.Context
	span    trace.Span
}

// onCameraChanged applies the distance threshold policy to a new center.
func (s *Session) onCameraChanged(center domain.Coordinate) domain.CameraDecision {
	s.viewport.Center = center

	last := s.viewport.LastFetchedCenter
	if last == nil {
		if !s.settledOnce {
			metrics.CameraEvents.WithLabelValues(string(domain.CameraIgnored)).Inc()
			s.log.Debug("camera change ignored before first load", "center", center.String())
			return domain.CameraIgnored
		}
		// No cycle has succeeded yet, so any movement retries.
		metrics.CameraEvents.WithLabelValues(string(domain.CameraRefetch)).Inc()
		s.log.Info("camera moved after failed first load", "center", center.String())
		s.startCycle(center, originCamera)
		return domain.CameraRefetch
	}

	d := geospatial.DistanceKm(last.Lat, last.Lng, center.Lat, center.Lng)
	if d <= s.cfg.ThresholdKm {
		metrics.CameraEvents.WithLabelValues(string(domain.CameraWithinThreshold)).Inc()
		return domain.CameraWithinThreshold
	}

	metrics.CameraEvents.WithLabelValues(string(domain.CameraRefetch)).Inc()
	s.log.Info("camera moved beyond threshold", "distance_km", fmt.Sprintf("%.2f", d), "center", center.String())
	s.startCycle(center, originCamera)
	return domain.CameraRefetch
}

// startCycle clears both POI lists and fetches both variants at center. Any
// response of an earlier cycle that arrives later is dropped.
func (s *Session) startCycle(center domain.Coordinate, origin cycleOrigin) {
	s.generation++
	if prev := s.cycle; prev != nil {
		prev.span.SetAttributes(attribute.Bool("superseded", true))
		prev.span.End()
	}

	ctx, span := tracer.Start(s.ctx, "fetch_cycle", trace.WithAttributes(
		attribute.Int64("generation", int64(s.generation)),
		attribute.String("origin", string(origin)),
		attribute.Float64("lat", center.Lat),
		attribute.Float64("lng", center.Lng),
	))
	c := &fetchCycle{
		gen:     s.generation,
		center:  center,
		origin:  origin,
		results: make(map[domain.Variant]error, len(domain.Variants)),
		ctx:     ctx,
		span:    span,
	}
	s.cycle = c

	s.places.Clear()
	s.stations.Clear()
	s.setStatus(domain.StatusLoading, "loading points of interest near "+center.String())
	s.log.Info("fetch cycle started", "generation", c.gen, "origin", origin, "center", center.String())

	fetchVariant(s, c, s.places, func(ctx context.Context, token string) ([]domain.GeneralPlace, error) {
		return s.deps.Fetcher.FetchPlaces(ctx, center, token)
	})
	fetchVariant(s, c, s.stations, func(ctx context.Context, token string) ([]domain.ChargingStation, error) {
		return s.deps.Fetcher.FetchStations(ctx, center, token)
	})
}

func fetchVariant[P domain.POI](s *Session, c *fetchCycle, reg *Reconciler[P], fetch func(ctx context.Context, token string) ([]P, error)) {
	variant := reg.variant
	s.spawn(func() func() {
		ctx, span := tracer.Start(c.ctx, "fetch_"+string(variant))
		defer span.End()

		start := time.Now()
		list, err := fetch(ctx, s.token(ctx))
		metrics.FetchDuration.WithLabelValues(string(variant)).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("count", len(list)))
		}

		return func() { applyFetch(s, c, reg, list, err) }
	})
}

// applyFetch runs on the owning goroutine when one variant's fetch returns.
func applyFetch[P domain.POI](s *Session, c *fetchCycle, reg *Reconciler[P], list []P, err error) {
	variant := reg.variant
	if c.gen != s.generation {
		s.staleDrops++
		metrics.StaleResponses.WithLabelValues(string(variant)).Inc()
		s.log.Info("stale response dropped", "variant", variant, "generation", c.gen, "latest", s.generation)
		return
	}

	if err != nil {
		metrics.FetchesTotal.WithLabelValues(string(variant), "failure").Inc()
		s.log.Warn("poi fetch failed", "variant", variant, "generation", c.gen, "error", err)
		c.results[variant] = err
	} else {
		res := reg.Reconcile(list)
		metrics.FetchesTotal.WithLabelValues(string(variant), "success").Inc()
		s.log.Info("poi list reconciled",
			"variant", variant,
			"generation", c.gen,
			"count", reg.Len(),
			"created", res.Created,
			"removed", res.Removed,
		)
		c.results[variant] = nil
	}

	if len(c.results) == len(domain.Variants) {
		s.settleCycle(c)
	}
}

// settleCycle runs once both variants of the latest cycle have completed.
func (s *Session) settleCycle(c *fetchCycle) {
	var failed []domain.Variant
	for _, v := range domain.Variants {
		if c.results[v] != nil {
			failed = append(failed, v)
		}
	}

	s.settledOnce = true
	if len(failed) == 0 || s.cfg.AdvanceOnFailure {
		center := c.center
		s.viewport.LastFetchedCenter = &center
	}

	code, msg := s.cycleStatus(c, failed)
	s.setStatus(code, msg)
	s.showViewport()

	c.span.SetAttributes(attribute.String("status", string(code)))
	if len(failed) > 0 {
		c.span.SetStatus(codes.Error, msg)
	}
	c.span.End()
	s.cycle = nil

	status := s.status
	center := c.center
	s.publish(domain.SessionEvent{
		SessionID:  s.id,
		Kind:       domain.EventCycleSettled,
		Generation: c.gen,
		Center:     &center,
		Status:     &status,
		Counts: map[domain.Variant]int{
			domain.VariantGeneral:  s.places.Len(),
			domain.VariantCharging: s.stations.Len(),
		},
		At: time.Now(),
	})

	if c.origin == originBootstrap && len(failed) > 0 && s.cfg.RetryAtDefault && !s.viewport.UsingDefault {
		s.log.Info("first load failed at device position, retrying at default center")
		s.viewport.Center = s.cfg.DefaultCenter
		s.viewport.UsingDefault = true
		s.showViewport()
		s.startCycle(s.cfg.DefaultCenter, originDefaultRetry)
	}
}

func (s *Session) cycleStatus(c *fetchCycle, failed []domain.Variant) (domain.StatusCode, string) {
	switch len(failed) {
	case 0:
		msg := fmt.Sprintf("loaded %d places and %d charging stations", s.places.Len(), s.stations.Len())
		if s.viewport.UsingDefault && c.origin != originCamera {
			msg += " around the default location"
		}
		return domain.StatusReady, msg
	case len(domain.Variants):
		return domain.StatusFetchFailure, "points of interest could not be loaded"
	}
	if failed[0] == domain.VariantGeneral {
		return domain.StatusPartialFailure, "places could not be loaded"
	}
	return domain.StatusPartialFailure, "charging stations could not be loaded"
}

// token returns the session's bearer token, or "" when there is none.
func (s *Session) token(ctx context.Context) string {
	if s.deps.Tokens == nil {
		return ""
	}
	tok, err := s.deps.Tokens.Token(ctx, s.id)
	if err != nil {
		s.log.Debug("no bearer token", "error", err)
		return ""
	}
	return tok
}
