package ports

import "github.com/samirrijal/poimap/internal/core/domain"

// Router navigates the client to an application path.
type Router interface {
	Navigate(path string)
}

// MarkerSurface mounts and unmounts marker pins. onClick is invoked by the
// surface whenever the user clicks the marker.
type MarkerSurface interface {
	MountMarker(variant domain.Variant, key string, at domain.Coordinate, onClick func()) domain.MarkerHandle
	UnmountMarker(h domain.MarkerHandle)
}

// ClusterOverlay groups marker handles into clustered pins.
type ClusterOverlay interface {
	ClearMarkers()
	AddMarkers(handles []domain.MarkerHandle)
}

// PopupSurface opens transient detail popups.
type PopupSurface interface {
	OpenPopup(content domain.PopupContent, at domain.Coordinate) domain.PopupHandle
	UpdatePopup(h domain.PopupHandle, content domain.PopupContent)
	ClosePopup(h domain.PopupHandle)
}

// MapSurface is the rendering primitive of one map instance.
type MapSurface interface {
	MarkerSurface
	PopupSurface
	ClusterOverlay(variant domain.Variant) ClusterOverlay
	ShowStatus(status domain.Status)
	ShowViewport(vp domain.ViewportState)
	// Click delivers a user click on a mounted marker.
	Click(h domain.MarkerHandle) error
}

// RenderSink receives render commands produced by a surface.
type RenderSink interface {
	Emit(cmd domain.RenderCommand)
}

// RenderFeed delivers a session's render commands to subscribers.
type RenderFeed interface {
	Subscribe(sessionID string, fn func(domain.RenderCommand)) (cancel func(), err error)
}
