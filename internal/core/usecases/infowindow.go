package usecases

import (
	"context"
	"log/slog"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

// Spawner runs work off the owning goroutine and applies the returned
// function back on it. A nil result is not applied.
type Spawner func(work func() func())

type activePopup struct {
	seq     uint64
	poi     domain.POI
	handle  domain.PopupHandle
	content domain.PopupContent
	cancel  context.CancelFunc
}

// InfoWindowController keeps at most one popup open for its variant. Methods
// must be called from the session's owning goroutine.
type InfoWindowController struct {
	variant  domain.Variant
	popups   ports.PopupSurface
	router   ports.Router
	chargers ports.ChargerStatusFetcher
	spawn    Spawner
	baseCtx  context.Context
	log      *slog.Logger

	active *activePopup
	seq    uint64
}

// NewInfoWindowController creates a controller. chargers may be nil, in which
// case station popups report the charger status as unavailable.
func NewInfoWindowController(ctx context.Context, variant domain.Variant, popups ports.PopupSurface, router ports.Router, chargers ports.ChargerStatusFetcher, spawn Spawner, log *slog.Logger) *InfoWindowController {
	if log == nil {
		log = slog.Default()
	}
	return &InfoWindowController{
		variant:  variant,
		popups:   popups,
		router:   router,
		chargers: chargers,
		spawn:    spawn,
		baseCtx:  ctx,
		log:      log.With("popup", string(variant)),
	}
}

// ShowFor closes the open popup, if any, and opens one for poi.
func (w *InfoWindowController) ShowFor(poi domain.POI) domain.PopupHandle {
	w.Close()

	w.seq++
	content := PopupContentFor(poi)
	a := &activePopup{
		seq:     w.seq,
		poi:     poi,
		content: content,
	}
	a.handle = w.popups.OpenPopup(content, poi.Position())
	w.active = a

	if station, ok := poi.(domain.ChargingStation); ok {
		w.enrich(a, station)
	}
	return a.handle
}

// enrich fetches charger occupancy for the lifetime of popup a.
func (w *InfoWindowController) enrich(a *activePopup, station domain.ChargingStation) {
	if w.chargers == nil || w.spawn == nil {
		w.applyEnrichment(a.seq, nil, domain.ErrEnrichmentFailed)
		return
	}

	ctx, cancel := context.WithCancel(w.baseCtx)
	a.cancel = cancel
	seq := a.seq
	w.spawn(func() func() {
		items, err := w.chargers.FetchChargerStatus(ctx, station.StationID)
		return func() { w.applyEnrichment(seq, items, err) }
	})
}

func (w *InfoWindowController) applyEnrichment(seq uint64, items []domain.ChargerStatusItem, err error) {
	a := w.active
	if a == nil || a.seq != seq {
		// popup closed or replaced before the status arrived
		metrics.Enrichment.WithLabelValues("discarded").Inc()
		return
	}

	if err != nil {
		w.log.Warn("charger status unavailable", "key", a.poi.Key(), "error", err)
		metrics.Enrichment.WithLabelValues("failure").Inc()
		a.content.Charger = &domain.ChargerPanel{
			State:   domain.EnrichmentUnavailable,
			Message: "status unavailable",
		}
	} else {
		summary := domain.SummarizeChargers(items)
		metrics.Enrichment.WithLabelValues("success").Inc()
		a.content.Charger = &domain.ChargerPanel{
			State:   domain.EnrichmentReady,
			Summary: &summary,
		}
	}
	w.popups.UpdatePopup(a.handle, a.content)
}

// MoreInfo navigates to the detail page of the open popup's POI.
func (w *InfoWindowController) MoreInfo() (string, error) {
	if w.active == nil {
		return "", domain.ErrNoActivePopup
	}
	path := w.active.poi.DetailPath()
	if w.router != nil {
		w.router.Navigate(path)
	}
	return path, nil
}

// Close closes the open popup and cancels its enrichment. It is a no-op when
// nothing is open.
func (w *InfoWindowController) Close() {
	a := w.active
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	w.popups.ClosePopup(a.handle)
	w.active = nil
}

// Active returns the open popup.
func (w *InfoWindowController) Active() (domain.OpenPopup, bool) {
	if w.active == nil {
		return domain.OpenPopup{}, false
	}
	return domain.OpenPopup{
		Handle:   w.active.handle,
		Position: w.active.poi.Position(),
		Content:  w.active.content,
	}, true
}
