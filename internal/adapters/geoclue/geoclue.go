// Package geoclue locates the host through the GeoClue2 service on the
// system D-Bus.
package geoclue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/samirrijal/poimap/internal/core/domain"
)

const (
	geoService    = "org.freedesktop.GeoClue2"
	managerPath   = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface  = "org.freedesktop.GeoClue2.Manager"
	clientIface   = "org.freedesktop.GeoClue2.Client"
	locationIface = "org.freedesktop.GeoClue2.Location"
	propsIface    = "org.freedesktop.DBus.Properties"

	accuracyExact = uint32(8)
)

var errInvalidFix = errors.New("geoclue reported an invalid fix")

// Locator implements ports.Geolocator. Each Locate creates a short-lived
// GeoClue client, waits for its first LocationUpdated signal and stops it.
type Locator struct {
	DesktopID string
	Accuracy  uint32
	Logger    *slog.Logger

	// connect opens the bus; overridden in tests.
	connect func() (*dbus.Conn, error)
}

func New(desktopID string, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		DesktopID: desktopID,
		Accuracy:  accuracyExact,
		Logger:    logger.With("component", "geoclue"),
		connect:   func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
	}
}

func (l *Locator) Locate(ctx context.Context) (domain.Coordinate, error) {
	conn, err := l.connect()
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: system bus: %w", domain.ErrLocationUnavailable, err)
	}
	defer conn.Close()

	var clientPath dbus.ObjectPath
	manager := conn.Object(geoService, managerPath)
	if err := manager.CallWithContext(ctx, managerIface+".CreateClient", 0).Store(&clientPath); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: create client: %w", domain.ErrLocationUnavailable, err)
	}
	client := conn.Object(geoService, clientPath)

	setProp := func(name string, val any) error {
		return client.CallWithContext(ctx, propsIface+".Set", 0, clientIface, name, dbus.MakeVariant(val)).Err
	}
	if err := setProp("DesktopId", l.DesktopID); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: set DesktopId: %w", domain.ErrLocationUnavailable, err)
	}
	if err := setProp("RequestedAccuracyLevel", l.Accuracy); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: set accuracy: %w", domain.ErrLocationUnavailable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface),
		dbus.WithMatchMember("LocationUpdated"),
	); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: subscribe: %w", domain.ErrLocationUnavailable, err)
	}
	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err := client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: start: %w", domain.ErrLocationUnavailable, err)
	}
	defer client.Call(clientIface+".Stop", 0)

	for {
		select {
		case <-ctx.Done():
			return domain.Coordinate{}, ctx.Err()
		case sig, ok := <-signals:
			if !ok || sig == nil {
				return domain.Coordinate{}, fmt.Errorf("%w: signal channel closed", domain.ErrLocationUnavailable)
			}
			locPath, ok := updatedLocation(sig, clientPath)
			if !ok {
				continue
			}
			var props map[string]dbus.Variant
			if err := conn.Object(geoService, locPath).CallWithContext(ctx, propsIface+".GetAll", 0, locationIface).Store(&props); err != nil {
				return domain.Coordinate{}, fmt.Errorf("%w: read location: %w", domain.ErrLocationUnavailable, err)
			}
			fix, err := fixFromProps(props)
			if err != nil {
				l.Logger.Warn("ignoring location update", "path", locPath, "error", err)
				continue
			}
			l.Logger.Debug("location fix", "at", fix.String())
			return fix, nil
		}
	}
}

// updatedLocation extracts the new Location object path from a
// LocationUpdated(old, new) signal emitted by the given client.
func updatedLocation(sig *dbus.Signal, client dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig.Path != client || sig.Name != clientIface+".LocationUpdated" || len(sig.Body) < 2 {
		return "", false
	}
	p, ok := sig.Body[1].(dbus.ObjectPath)
	return p, ok && p != "" && p != "/"
}

func fixFromProps(props map[string]dbus.Variant) (domain.Coordinate, error) {
	f64 := func(key string) (float64, bool) {
		v, ok := props[key]
		if !ok {
			return 0, false
		}
		f, ok := v.Value().(float64)
		return f, ok
	}
	lat, okLat := f64("Latitude")
	lng, okLng := f64("Longitude")
	c := domain.Coordinate{Lat: lat, Lng: lng}
	if !okLat || !okLng || (lat == 0 && lng == 0) || !c.Valid() {
		return domain.Coordinate{}, errInvalidFix
	}
	return c, nil
}
