package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

// bootstrap resolves the initial viewport center once per session and
// issues the first fetch cycle there.
func (s *Session) bootstrap() {
	if s.bootstrapped {
		return
	}
	s.bootstrapped = true
	s.setStatus(domain.StatusLocating, "locating current position")

	ctx, span := tracer.Start(s.ctx, "bootstrap")
	timeout := s.cfg.GeolocationTimeout
	s.spawn(func() func() {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		pos, err := s.locate(lctx)
		return func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
			s.onLocated(pos, err)
		}
	})
}

func (s *Session) locate(ctx context.Context) (domain.Coordinate, error) {
	if s.deps.Locator == nil {
		return domain.Coordinate{}, domain.ErrLocationUnavailable
	}
	pos, err := s.deps.Locator.Locate(ctx)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
	}
	if !pos.Valid() {
		return domain.Coordinate{}, fmt.Errorf("%w: invalid fix %s", domain.ErrLocationUnavailable, pos)
	}
	return pos, nil
}

func (s *Session) onLocated(pos domain.Coordinate, err error) {
	center := pos
	if err != nil {
		outcome := "failure"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.Geolocation.WithLabelValues(outcome).Inc()
		s.log.Warn("geolocation failed, using default center", "error", err, "default", s.cfg.DefaultCenter.String())

		center = s.cfg.DefaultCenter
		s.viewport.UsingDefault = true
		s.setStatus(domain.StatusLocationUnavailable, "current location unavailable ("+err.Error()+"), using default location")
	} else {
		metrics.Geolocation.WithLabelValues("success").Inc()
		s.log.Info("device located", "position", pos.String())

		fix := pos
		s.viewport.UserLocation = &fix
		s.setStatus(domain.StatusLocated, "location found")
	}

	s.viewport.Center = center
	s.showViewport()
	s.startCycle(center, originBootstrap)
}
