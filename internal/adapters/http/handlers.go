package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/poimap/internal/adapters/render"
	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/usecases"
)

const sessionCallTimeout = 5 * time.Second

// geoSurface is implemented by surfaces that can export their markers.
type geoSurface interface {
	MarkersGeoJSON() *geojson.FeatureCollection
	ClustersGeoJSON(variant domain.Variant, zoom int) (*geojson.FeatureCollection, error)
}

var _ geoSurface = (*render.Canvas)(nil)

type mountBody struct {
	Position         *domain.Coordinate `json:"position"`
	GeolocationError string             `json:"geolocation_error"`
}

type geolocationBody struct {
	Position *domain.Coordinate `json:"position"`
	Error    string             `json:"error"`
}

// POIView is the API representation of a registered POI.
type POIView struct {
	Key        string            `json:"key"`
	Variant    domain.Variant    `json:"variant"`
	Label      string            `json:"label"`
	Position   domain.Coordinate `json:"position"`
	DetailPath string            `json:"detail_path"`
	Data       domain.POI        `json:"data"`
}

func poiView(p domain.POI) POIView {
	return POIView{
		Key:        p.Key(),
		Variant:    p.Variant(),
		Label:      p.Label(),
		Position:   p.Position(),
		DetailPath: p.DetailPath(),
		Data:       p,
	}
}

func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func callCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), sessionCallTimeout)
}

func lookupSession(c *fiber.Ctx, deps *Dependencies) (*usecases.Session, error) {
	return deps.Maps.Get(c.Params("id"))
}

var errVariantRequired = errors.New("variant is required")

func variantParam(raw string) (domain.Variant, error) {
	if raw == "" {
		return "", errVariantRequired
	}
	return domain.ParseVariant(raw)
}

// CreateSessionHandler mounts a new map session and starts its bootstrap.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body mountBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if body.Position != nil && !body.Position.Valid() {
			return errBadRequest(c, "position out of range")
		}

		s, err := deps.Maps.Mount(c.UserContext(), usecases.MountRequest{
			Token:            bearerToken(c),
			Position:         body.Position,
			GeolocationError: body.GeolocationError,
		})
		if err != nil {
			return errInternal(c, err.Error())
		}
		LoggerFromCtx(c.UserContext()).Info("session created", "session", s.ID())

		c.Location("/v1/sessions/" + s.ID())
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": s.ID()})
	}
}

// GetSessionHandler returns viewport, status and registry sizes.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// DeleteSessionHandler unmounts a session.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := callCtx(c)
		defer cancel()
		if err := deps.Maps.Unmount(ctx, c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GeolocationHandler delivers a late client position or error.
func GeolocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body geolocationBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.Position != nil && !body.Position.Valid() {
			return errBadRequest(c, "position out of range")
		}
		accepted, err := deps.Maps.ReportGeolocation(c.Params("id"), body.Position, body.Error)
		if err != nil {
			return errFromDomain(c, err)
		}
		if !accepted {
			return errConflict(c, "session does not accept client geolocation")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
	}
}

// CameraHandler reports a camera-changed event.
func CameraHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var center domain.Coordinate
		if err := c.BodyParser(&center); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !center.Valid() {
			return errBadRequest(c, "lat must be within [-90, 90] and lng within [-180, 180]")
		}
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		decision, err := s.CameraChanged(ctx, center)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"decision": decision})
	}
}

// ListPOIsHandler returns a variant's registry contents.
func ListPOIsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variant, err := variantParam(c.Query("variant"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		pois, err := s.POIs(ctx, variant)
		if err != nil {
			return errFromDomain(c, err)
		}

		offset, limit := pageParams(c, 100, 500)
		views := make([]POIView, 0, len(pois))
		for _, p := range page(pois, offset, limit) {
			views = append(views, poiView(p))
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: len(pois)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: views, Pagination: pg})
	}
}

// MarkersHandler returns mounted markers as a GeoJSON FeatureCollection.
func MarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		gs, ok := s.Surface().(geoSurface)
		if !ok {
			return errInternal(c, "surface cannot export markers")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.JSON(gs.MarkersGeoJSON())
	}
}

// ClustersHandler returns a variant's clusters at a zoom level.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variant, err := variantParam(c.Query("variant"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		zoom := c.QueryInt("zoom", 12)
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		gs, ok := s.Surface().(geoSurface)
		if !ok {
			return errInternal(c, "surface cannot export clusters")
		}
		fc, err := gs.ClustersGeoJSON(variant, zoom)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.JSON(fc)
	}
}

// ClickMarkerHandler delivers a marker click. The popup opens asynchronously.
func ClickMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := s.ClickMarker(domain.MarkerHandle(c.Params("handle"))); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}
}

// ListPopupsHandler returns the open popups.
func ListPopupsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		popups, err := s.Popups(ctx)
		if err != nil {
			return errFromDomain(c, err)
		}
		if popups == nil {
			popups = []domain.OpenPopup{}
		}
		return c.JSON(popups)
	}
}

// MoreInfoHandler triggers navigation to the open popup's detail page.
func MoreInfoHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variant, err := variantParam(c.Params("variant"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		path, err := s.MoreInfo(ctx, variant)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"path": path})
	}
}

// ClosePopupHandler closes a variant's open popup.
func ClosePopupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variant, err := variantParam(c.Params("variant"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		s, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ctx, cancel := callCtx(c)
		defer cancel()
		if err := s.ClosePopup(ctx, variant); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
