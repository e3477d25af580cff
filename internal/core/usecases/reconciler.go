package usecases

import (
	"log/slog"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/pkg/metrics"
)

type registryEntry[P domain.POI] struct {
	poi    P
	handle domain.MarkerHandle
}

// ReconcileResult reports the marker mutations of one Reconcile call.
type ReconcileResult struct {
	Created int
	Removed int
}

// Changed reports whether the registry was mutated.
func (r ReconcileResult) Changed() bool { return r.Created > 0 || r.Removed > 0 }

// Reconciler keeps a key->marker registry for one POI variant in step with
// the latest fetched list, and rebuilds the variant's cluster overlay from
// the registry after every mutation. It is not safe for concurrent use.
type Reconciler[P domain.POI] struct {
	variant domain.Variant
	markers ports.MarkerSurface
	cluster ports.ClusterOverlay
	onClick func(key string)
	log     *slog.Logger

	entries map[string]*registryEntry[P]
	order   []string
}

// NewReconciler creates an empty registry. onClick receives the POI key of a
// clicked marker and may be nil. A nil log falls back to slog.Default.
func NewReconciler[P domain.POI](variant domain.Variant, markers ports.MarkerSurface, cluster ports.ClusterOverlay, onClick func(key string), log *slog.Logger) *Reconciler[P] {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler[P]{
		variant: variant,
		markers: markers,
		cluster: cluster,
		onClick: onClick,
		log:     log,
		entries: make(map[string]*registryEntry[P]),
	}
}

// Reconcile diffs the registry against list. Keys missing from the registry
// get a new marker, keys missing from list lose theirs, and a key whose
// location moved is remounted. Within list the first occurrence of a key
// wins. Calling Reconcile again with the same list is a no-op.
func (r *Reconciler[P]) Reconcile(list []P) ReconcileResult {
	want := make(map[string]P, len(list))
	order := make([]string, 0, len(list))
	for _, p := range list {
		k := p.Key()
		if _, dup := want[k]; dup {
			r.log.Debug("duplicate poi key ignored", "variant", r.variant, "key", k)
			continue
		}
		want[k] = p
		order = append(order, k)
	}

	var res ReconcileResult
	for k, e := range r.entries {
		p, keep := want[k]
		if keep && p.Position() == e.poi.Position() {
			continue
		}
		r.markers.UnmountMarker(e.handle)
		delete(r.entries, k)
		res.Removed++
	}

	for _, k := range order {
		p := want[k]
		if e, ok := r.entries[k]; ok {
			e.poi = p
			continue
		}
		r.entries[k] = &registryEntry[P]{
			poi:    p,
			handle: r.markers.MountMarker(r.variant, k, p.Position(), r.clickFunc(k)),
		}
		res.Created++
	}
	r.order = order

	if res.Changed() {
		r.rebuildCluster()
		metrics.MarkersCreated.WithLabelValues(string(r.variant)).Add(float64(res.Created))
		metrics.MarkersRemoved.WithLabelValues(string(r.variant)).Add(float64(res.Removed))
	}
	return res
}

// Clear unmounts every marker.
func (r *Reconciler[P]) Clear() ReconcileResult {
	return r.Reconcile(nil)
}

func (r *Reconciler[P]) clickFunc(key string) func() {
	if r.onClick == nil {
		return nil
	}
	return func() { r.onClick(key) }
}

func (r *Reconciler[P]) rebuildCluster() {
	if r.cluster == nil {
		return
	}
	r.cluster.ClearMarkers()
	r.cluster.AddMarkers(r.Handles())
}

// Lookup returns the registered POI for key.
func (r *Reconciler[P]) Lookup(key string) (P, bool) {
	e, ok := r.entries[key]
	if !ok {
		var zero P
		return zero, false
	}
	return e.poi, true
}

// Handle returns the marker handle registered for key.
func (r *Reconciler[P]) Handle(key string) (domain.MarkerHandle, bool) {
	e, ok := r.entries[key]
	if !ok {
		return "", false
	}
	return e.handle, true
}

// Items returns the registered POIs in fetch order.
func (r *Reconciler[P]) Items() []P {
	out := make([]P, 0, len(r.order))
	for _, k := range r.order {
		if e, ok := r.entries[k]; ok {
			out = append(out, e.poi)
		}
	}
	return out
}

// Keys returns the registered keys in fetch order.
func (r *Reconciler[P]) Keys() []string {
	out := make([]string, 0, len(r.order))
	for _, k := range r.order {
		if _, ok := r.entries[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Handles returns every registered marker handle in fetch order.
func (r *Reconciler[P]) Handles() []domain.MarkerHandle {
	out := make([]domain.MarkerHandle, 0, len(r.entries))
	for _, k := range r.order {
		if e, ok := r.entries[k]; ok {
			out = append(out, e.handle)
		}
	}
	return out
}

// Len returns the registry size.
func (r *Reconciler[P]) Len() int { return len(r.entries) }
