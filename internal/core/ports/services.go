package ports

import (
	"context"

	"github.com/samirrijal/poimap/internal/core/domain"
)

// POIFetcher retrieves POI lists around a center. token may be empty, in
// which case the request is sent unauthenticated.
type POIFetcher interface {
	FetchPlaces(ctx context.Context, center domain.Coordinate, token string) ([]domain.GeneralPlace, error)
	FetchStations(ctx context.Context, center domain.Coordinate, token string) ([]domain.ChargingStation, error)
}

// Geolocator obtains the device's current position.
type Geolocator interface {
	Locate(ctx context.Context) (domain.Coordinate, error)
}

// LocationReceiver is a Geolocator fed by positions reported from the client.
type LocationReceiver interface {
	Geolocator
	Resolve(pos domain.Coordinate)
	Reject(err error)
}

// ChargerStatusFetcher returns per-connector status for a charging station.
type ChargerStatusFetcher interface {
	FetchChargerStatus(ctx context.Context, stationID string) ([]domain.ChargerStatusItem, error)
}

// TokenStore keeps the bearer token a session uses against the backend.
type TokenStore interface {
	Token(ctx context.Context, sessionID string) (string, error)
	SetToken(ctx context.Context, sessionID, token string) error
	DeleteToken(ctx context.Context, sessionID string) error
}

// EventPublisher publishes session lifecycle events to a message broker.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error
}
