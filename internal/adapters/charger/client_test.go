package charger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samirrijal/poimap/internal/core/domain"
)

const okBody = `<?xml version="1.0" encoding="UTF-8"?>
<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body>
    <items>
      <item><busiId>ME</busiId><statId>ME174011</statId><chgerId>01</chgerId><stat>2</stat><statUpdDt>20240101120000</statUpdDt></item>
      <item><busiId>ME</busiId><statId>ME174011</statId><chgerId>02</chgerId><stat>3</stat><statUpdDt>20240101120500</statUpdDt></item>
      <item><busiId>ME</busiId><statId>ME174011</statId><chgerId>03</chgerId><stat>5</stat></item>
    </items>
  </body>
</response>`

func TestFetchChargerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("statId") != "ME174011" || q.Get("serviceKey") != "k+ey==" || q.Get("numOfRows") != "9999" || q.Get("period") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := New(Config{StatusURL: srv.URL, ServiceKey: "k+ey==", Period: 5})
	items, err := c.FetchChargerStatus(context.Background(), "ME174011")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ChargerID != "01" || items[0].Stat != domain.ChargerStatAvailable || items[0].UpdatedAt != "20240101120000" {
		t.Errorf("unexpected first item %+v", items[0])
	}

	sum := domain.SummarizeChargers(items)
	if sum.Available != 1 || sum.Charging != 1 || sum.Unavailable != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"ok", okBody, 3, false},
		{"no items", `<response><header><resultCode>00</resultCode></header><body><items/></body></response>`, 0, false},
		{"api error", `<response><header><resultCode>30</resultCode><resultMsg>SERVICE KEY IS NOT REGISTERED ERROR.</resultMsg></header></response>`, 0, true},
		{"malformed", `<response><header>`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseStatus([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrEnrichmentFailed) {
					t.Fatalf("expected ErrEnrichmentFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("expected %d items, got %d", tt.want, len(items))
			}
		})
	}
}

func TestFetchChargerStatus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{StatusURL: srv.URL}).FetchChargerStatus(context.Background(), "X")
	if !errors.Is(err, domain.ErrEnrichmentFailed) {
		t.Fatalf("expected ErrEnrichmentFailed, got %v", err)
	}
}
