package domain

import "time"

// ViewportState tracks the map center and the center of the last settled
// fetch cycle. LastFetchedCenter is nil until the first cycle settles.
type ViewportState struct {
	Center            Coordinate  `json:"center"`
	LastFetchedCenter *Coordinate `json:"last_fetched_center"`
	UserLocation      *Coordinate `json:"user_location,omitempty"`
	UsingDefault      bool        `json:"using_default"`
}

// StatusCode classifies the user-facing status line.
type StatusCode string

const (
	StatusLocating            StatusCode = "locating"
	StatusLocated             StatusCode = "located"
	StatusLocationUnavailable StatusCode = "location_unavailable"
	StatusLoading             StatusCode = "loading"
	StatusReady               StatusCode = "ready"
	StatusFetchFailure        StatusCode = "fetch_failure"
	StatusPartialFailure      StatusCode = "partial_failure"
)

// Status is the single human-readable status of a map session.
type Status struct {
	Code      StatusCode `json:"code"`
	Message   string     `json:"message"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CameraDecision is the outcome of a camera-changed event.
type CameraDecision string

const (
	CameraIgnored         CameraDecision = "ignored"
	CameraWithinThreshold CameraDecision = "within_threshold"
	CameraRefetch         CameraDecision = "refetch"
)

// MarkerHandle is an opaque reference to a mounted marker.
type MarkerHandle string

// PopupHandle is an opaque reference to an open popup.
type PopupHandle string
