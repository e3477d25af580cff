package domain

import "errors"

var (
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrFetchFailed         = errors.New("poi fetch failed")
	ErrEnrichmentFailed    = errors.New("charger status unavailable")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New("session closed")
	ErrUnknownMarker       = errors.New("unknown marker")
	ErrUnknownVariant      = errors.New("unknown poi variant")
	ErrNoActivePopup       = errors.New("no active popup")
)
