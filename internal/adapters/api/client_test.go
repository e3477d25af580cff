package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/poimap/internal/core/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:      srv.URL + "/",
		PlacesPath:   "/api/load_location",
		StationsPath: "/api/load_char_location",
	})
}

func TestFetchPlaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/load_location" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("lat") != "37.5" || r.URL.Query().Get("lng") != "127" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-1" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"poi":[
			{"placeId":1,"placeTitle":"Riverside","placeDescription":"quiet","placeImageURL":"/img/1.png",
			 "latitude":37.51,"longitude":127.01,"per_price":5000,"char_type":"DC combo","play_time":"24h","max_car":"6","userid":42},
			{"placeId":2,"placeTitle":"Hilltop","latitude":37.52,"longitude":127.02,"max_car":"many"}
		]}`))
	})

	got, err := c.FetchPlaces(context.Background(), domain.Coordinate{Lat: 37.5, Lng: 127}, "jwt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 places, got %d", len(got))
	}
	p := got[0]
	if p.Key() != "general:1" || p.Title != "Riverside" || p.PricePerUnit != 5000 || p.MaxCars != 6 || p.UserID != 42 {
		t.Errorf("unexpected place %+v", p)
	}
	if p.Location != (domain.Coordinate{Lat: 37.51, Lng: 127.01}) {
		t.Errorf("unexpected location %v", p.Location)
	}
	if got[1].MaxCars != 0 {
		t.Errorf("expected unparseable max_car to be 0, got %d", got[1].MaxCars)
	}
}

func TestFetchStations_NoToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no Authorization header without a token")
		}
		w.Write([]byte(`{"poi":[{"statId":"ME174011","statNm":"City Hall","address":"Seoul","lat":37.56,"lng":126.97,"busiNm":"KEPCO","busiCall":"1588-1111"}]}`))
	})

	got, err := c.FetchStations(context.Background(), domain.DefaultCenter, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "charging:ME174011" || got[0].Label() != "City Hall (KEPCO)" {
		t.Errorf("unexpected stations %+v", got)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.FetchPlaces(context.Background(), domain.DefaultCenter, "")
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetch_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"poi": [`))
	})
	if _, err := c.FetchStations(context.Background(), domain.DefaultCenter, ""); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetch_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"poi":[]}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.FetchPlaces(ctx, domain.DefaultCenter, ""); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestParseCount(t *testing.T) {
	tests := map[string]int{"4": 4, " 12 ": 12, "3대": 3, "": 0, "abc": 0, "-2": -2}
	for in, want := range tests {
		if got := parseCount(in); got != want {
			t.Errorf("parseCount(%q) = %d, want %d", in, got, want)
		}
	}
}
