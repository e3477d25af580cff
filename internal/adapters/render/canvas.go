// Package render is the in-process map surface. A Canvas keeps the rendered
// state of one session and emits every change as a RenderCommand, which the
// HTTP layer relays to the browser.
package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/ports"
)

// MarkerView is a mounted marker as seen by readers of the canvas.
type MarkerView struct {
	Handle   domain.MarkerHandle `json:"handle"`
	Variant  domain.Variant      `json:"variant"`
	Key      string              `json:"key"`
	Position domain.Coordinate   `json:"position"`
}

type marker struct {
	MarkerView
	onClick func()
}

type popup struct {
	content domain.PopupContent
	at      domain.Coordinate
}

// Canvas implements ports.MapSurface and ports.Router.
type Canvas struct {
	session string
	sink    ports.RenderSink

	mu       sync.Mutex
	seq      uint64
	markers  map[domain.MarkerHandle]*marker
	overlays map[domain.Variant]*Overlay
	popups   map[domain.PopupHandle]*popup
	status   domain.Status
	viewport domain.ViewportState
	lastPath string
}

// NewCanvas creates an empty canvas. sink may be nil.
func NewCanvas(sessionID string, sink ports.RenderSink) *Canvas {
	return &Canvas{
		session:  sessionID,
		sink:     sink,
		markers:  make(map[domain.MarkerHandle]*marker),
		overlays: make(map[domain.Variant]*Overlay),
		popups:   make(map[domain.PopupHandle]*popup),
	}
}

// emit must be called with c.mu held so sequence numbers follow mutation order.
func (c *Canvas) emit(cmd domain.RenderCommand) {
	c.seq++
	if c.sink == nil {
		return
	}
	cmd.Session = c.session
	cmd.Seq = c.seq
	c.sink.Emit(cmd)
}

func (c *Canvas) MountMarker(variant domain.Variant, key string, at domain.Coordinate, onClick func()) domain.MarkerHandle {
	h := domain.MarkerHandle(uuid.NewString())
	pos := at

	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[h] = &marker{
		MarkerView: MarkerView{Handle: h, Variant: variant, Key: key, Position: at},
		onClick:    onClick,
	}
	c.emit(domain.RenderCommand{Op: domain.OpMarkerMount, Variant: variant, Key: key, Marker: h, Position: &pos})
	return h
}

func (c *Canvas) UnmountMarker(h domain.MarkerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[h]
	if !ok {
		return
	}
	delete(c.markers, h)
	c.emit(domain.RenderCommand{Op: domain.OpMarkerUnmount, Variant: m.Variant, Key: m.Key, Marker: h})
}

// Click invokes the click handler of a mounted marker.
func (c *Canvas) Click(h domain.MarkerHandle) error {
	c.mu.Lock()
	m, ok := c.markers[h]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownMarker, h)
	}
	if m.onClick != nil {
		m.onClick()
	}
	return nil
}

func (c *Canvas) ClusterOverlay(variant domain.Variant) ports.ClusterOverlay {
	return c.overlay(variant)
}

func (c *Canvas) overlay(variant domain.Variant) *Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.overlays[variant]
	if !ok {
		o = &Overlay{canvas: c, variant: variant}
		c.overlays[variant] = o
	}
	return o
}

func (c *Canvas) OpenPopup(content domain.PopupContent, at domain.Coordinate) domain.PopupHandle {
	h := domain.PopupHandle(uuid.NewString())
	pos := at

	c.mu.Lock()
	defer c.mu.Unlock()
	c.popups[h] = &popup{content: content, at: at}
	c.emit(domain.RenderCommand{Op: domain.OpPopupOpen, Variant: content.Variant, Key: content.Key, Popup: h, Position: &pos, Content: &content})
	return h
}

func (c *Canvas) UpdatePopup(h domain.PopupHandle, content domain.PopupContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.popups[h]
	if !ok {
		return
	}
	p.content = content
	c.emit(domain.RenderCommand{Op: domain.OpPopupUpdate, Variant: content.Variant, Key: content.Key, Popup: h, Content: &content})
}

func (c *Canvas) ClosePopup(h domain.PopupHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.popups[h]
	if !ok {
		return
	}
	delete(c.popups, h)
	c.emit(domain.RenderCommand{Op: domain.OpPopupClose, Variant: p.content.Variant, Key: p.content.Key, Popup: h})
}

func (c *Canvas) ShowStatus(status domain.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.emit(domain.RenderCommand{Op: domain.OpStatus, Status: &status})
}

func (c *Canvas) ShowViewport(vp domain.ViewportState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = vp
	c.emit(domain.RenderCommand{Op: domain.OpViewport, Viewport: &vp})
}

// Navigate implements ports.Router by asking the client to change route.
func (c *Canvas) Navigate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPath = path
	c.emit(domain.RenderCommand{Op: domain.OpNavigate, Path: path})
}

// Markers lists mounted markers ordered by variant and key.
func (c *Canvas) Markers() []MarkerView {
	c.mu.Lock()
	out := make([]MarkerView, 0, len(c.markers))
	for _, m := range c.markers {
		out = append(out, m.MarkerView)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Variant != out[j].Variant {
			return out[i].Variant < out[j].Variant
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Popups lists open popups ordered by variant.
func (c *Canvas) Popups() []domain.OpenPopup {
	c.mu.Lock()
	out := make([]domain.OpenPopup, 0, len(c.popups))
	for h, p := range c.popups {
		out = append(out, domain.OpenPopup{Handle: h, Position: p.at, Content: p.content})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Content.Variant < out[j].Content.Variant })
	return out
}

func (c *Canvas) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Canvas) Viewport() domain.ViewportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// LastNavigation returns the most recent path passed to Navigate.
func (c *Canvas) LastNavigation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPath
}

// Seq is the sequence number of the most recent render command.
func (c *Canvas) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Overlay implements ports.ClusterOverlay for one variant of a canvas.
type Overlay struct {
	canvas  *Canvas
	variant domain.Variant
	handles []domain.MarkerHandle // guarded by canvas.mu
}

func (o *Overlay) ClearMarkers() {
	c := o.canvas
	c.mu.Lock()
	defer c.mu.Unlock()
	o.handles = nil
	c.emit(domain.RenderCommand{Op: domain.OpClusterReset, Variant: o.variant, Markers: []domain.MarkerHandle{}})
}

func (o *Overlay) AddMarkers(handles []domain.MarkerHandle) {
	c := o.canvas
	c.mu.Lock()
	defer c.mu.Unlock()
	o.handles = append(o.handles, handles...)
	all := make([]domain.MarkerHandle, len(o.handles))
	copy(all, o.handles)
	c.emit(domain.RenderCommand{Op: domain.OpClusterReset, Variant: o.variant, Markers: all})
}

// Handles returns the markers currently grouped by the overlay.
func (o *Overlay) Handles() []domain.MarkerHandle {
	o.canvas.mu.Lock()
	defer o.canvas.mu.Unlock()
	out := make([]domain.MarkerHandle, len(o.handles))
	copy(out, o.handles)
	return out
}
