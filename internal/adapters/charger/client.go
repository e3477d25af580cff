// Package charger queries the public EV charger status API for per-connector
// occupancy of a single station.
package charger

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/pkg/httpclient"
)

const successCode = "00"

type Config struct {
	StatusURL  string
	ServiceKey string
	Period     int // minutes of status history the API should consider
	Timeout    time.Duration
}

// Client implements ports.ChargerStatusFetcher.
type Client struct {
	cfg  Config
	http *fasthttp.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: httpclient.New("poimap-charger")}
}

type statusResponse struct {
	XMLName xml.Name `xml:"response"`
	Header  struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	Body struct {
		Items []statusItem `xml:"items>item"`
	} `xml:"body"`
}

type statusItem struct {
	BusiID    string `xml:"busiId"`
	StatID    string `xml:"statId"`
	ChgerID   string `xml:"chgerId"`
	Stat      string `xml:"stat"`
	StatUpdDt string `xml:"statUpdDt"`
}

// FetchChargerStatus returns the connectors of stationID with their status codes.
func (c *Client) FetchChargerStatus(ctx context.Context, stationID string) ([]domain.ChargerStatusItem, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.StatusURL)
	args := req.URI().QueryArgs()
	args.Set("serviceKey", c.cfg.ServiceKey)
	args.Set("pageNo", "1")
	args.Set("numOfRows", "9999")
	args.Set("statId", stationID)
	if c.cfg.Period > 0 {
		args.Set("period", strconv.Itoa(c.cfg.Period))
	}
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/xml")

	if err := httpclient.Do(ctx, c.http, c.cfg.Timeout, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEnrichmentFailed, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrEnrichmentFailed, code)
	}
	return parseStatus(resp.Body())
}

func parseStatus(body []byte) ([]domain.ChargerStatusItem, error) {
	var doc statusResponse
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", domain.ErrEnrichmentFailed, err)
	}
	if code := strings.TrimSpace(doc.Header.ResultCode); code != successCode {
		return nil, fmt.Errorf("%w: result %s: %s", domain.ErrEnrichmentFailed, code, strings.TrimSpace(doc.Header.ResultMsg))
	}

	items := make([]domain.ChargerStatusItem, 0, len(doc.Body.Items))
	for _, it := range doc.Body.Items {
		items = append(items, domain.ChargerStatusItem{
			OperatorID: strings.TrimSpace(it.BusiID),
			StationID:  strings.TrimSpace(it.StatID),
			ChargerID:  strings.TrimSpace(it.ChgerID),
			Stat:       strings.TrimSpace(it.Stat),
			UpdatedAt:  strings.TrimSpace(it.StatUpdDt),
		})
	}
	return items, nil
}
