package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/pkg/httpclient"
)

// Config locates the backend POI endpoints.
type Config struct {
	BaseURL      string
	PlacesPath   string
	StationsPath string
	Timeout      time.Duration // 0 = no client timeout
}

// Client implements ports.POIFetcher against the backend REST API.
type Client struct {
	cfg  Config
	http *fasthttp.Client
}

// New creates a new backend client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpclient.New("poimap")}
}

type placeDTO struct {
	PlaceID          int64   `json:"placeId"`
	PlaceTitle       string  `json:"placeTitle"`
	PlaceDescription string  `json:"placeDescription"`
	PlaceImageURL    string  `json:"placeImageURL"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	PerPrice         float64 `json:"per_price"`
	CharType         string  `json:"char_type"`
	PlayTime         string  `json:"play_time"`
	MaxCar           string  `json:"max_car"`
	UserID           int64   `json:"userid"`
}

type stationDTO struct {
	StatID   string  `json:"statId"`
	StatNm   string  `json:"statNm"`
	Address  string  `json:"address"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	BusiNm   string  `json:"busiNm"`
	BusiCall string  `json:"busiCall"`
}

type poiResponse[T any] struct {
	POI []T `json:"poi"`
}

// FetchPlaces loads general places around center.
func (c *Client) FetchPlaces(ctx context.Context, center domain.Coordinate, token string) ([]domain.GeneralPlace, error) {
	var body poiResponse[placeDTO]
	if err := c.get(ctx, c.cfg.PlacesPath, center, token, &body); err != nil {
		return nil, fmt.Errorf("load places: %w", err)
	}

	out := make([]domain.GeneralPlace, 0, len(body.POI))
	for _, p := range body.POI {
		out = append(out, domain.GeneralPlace{
			PlaceID:      p.PlaceID,
			Title:        p.PlaceTitle,
			Description:  p.PlaceDescription,
			ImageURL:     p.PlaceImageURL,
			Location:     domain.Coordinate{Lat: p.Latitude, Lng: p.Longitude},
			PricePerUnit: int(p.PerPrice),
			ChargerType:  p.CharType,
			PlayTime:     p.PlayTime,
			MaxCars:      parseCount(p.MaxCar),
			UserID:       p.UserID,
		})
	}
	return out, nil
}

// FetchStations loads charging stations around center.
func (c *Client) FetchStations(ctx context.Context, center domain.Coordinate, token string) ([]domain.ChargingStation, error) {
	var body poiResponse[stationDTO]
	if err := c.get(ctx, c.cfg.StationsPath, center, token, &body); err != nil {
		return nil, fmt.Errorf("load charging stations: %w", err)
	}

	out := make([]domain.ChargingStation, 0, len(body.POI))
	for _, s := range body.POI {
		out = append(out, domain.ChargingStation{
			StationID:     s.StatID,
			Name:          s.StatNm,
			Address:       s.Address,
			Location:      domain.Coordinate{Lat: s.Lat, Lng: s.Lng},
			OperatorName:  s.BusiNm,
			OperatorPhone: s.BusiCall,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, center domain.Coordinate, token string, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + path)
	args := req.URI().QueryArgs()
	args.Set("lat", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	args.Set("lng", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := httpclient.Do(ctx, c.http, c.cfg.Timeout, req, resp); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrFetchFailed, code, truncate(resp.Body(), 200))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode: %w", domain.ErrFetchFailed, err)
	}
	return nil
}

// parseCount reads the leading integer of s; anything unparseable is 0.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
