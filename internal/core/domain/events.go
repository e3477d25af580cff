package domain

import "time"

// RenderOp names a render command sent to the map client.
type RenderOp string

const (
	OpMarkerMount   RenderOp = "marker.mount"
	OpMarkerUnmount RenderOp = "marker.unmount"
	OpClusterReset  RenderOp = "cluster.reset"
	OpPopupOpen     RenderOp = "popup.open"
	OpPopupUpdate   RenderOp = "popup.update"
	OpPopupClose    RenderOp = "popup.close"
	OpNavigate      RenderOp = "navigate"
	OpStatus        RenderOp = "status"
	OpViewport      RenderOp = "viewport"
)

// RenderCommand is one incremental change to a session's rendered map.
type RenderCommand struct {
	Session  string         `json:"session"`
	Seq      uint64         `json:"seq"`
	Op       RenderOp       `json:"op"`
	Variant  Variant        `json:"variant,omitempty"`
	Key      string         `json:"key,omitempty"`
	Marker   MarkerHandle   `json:"marker,omitempty"`
	Markers  []MarkerHandle `json:"markers,omitempty"`
	Popup    PopupHandle    `json:"popup,omitempty"`
	Position *Coordinate    `json:"position,omitempty"`
	Content  *PopupContent  `json:"content,omitempty"`
	Path     string         `json:"path,omitempty"`
	Status   *Status        `json:"status,omitempty"`
	Viewport *ViewportState `json:"viewport,omitempty"`
}

// SessionEventKind names a session lifecycle event.
type SessionEventKind string

const (
	EventMounted      SessionEventKind = "mounted"
	EventCycleSettled SessionEventKind = "cycle_settled"
	EventUnmounted    SessionEventKind = "unmounted"
)

// SessionEvent is published when a session is mounted, settles a fetch cycle
// or is unmounted.
type SessionEvent struct {
	SessionID  string           `json:"session_id"`
	Kind       SessionEventKind `json:"kind"`
	Generation uint64           `json:"generation,omitempty"`
	Center     *Coordinate      `json:"center,omitempty"`
	Status     *Status          `json:"status,omitempty"`
	Counts     map[Variant]int  `json:"counts,omitempty"`
	At         time.Time        `json:"at"`
}
