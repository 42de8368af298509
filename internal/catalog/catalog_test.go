package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skywave/skywave/internal/catalog"
)

const liveJSON = `{
  "results": [
    {"channel_name": "1", "now": {"broadcast_title": "Morning Show", "embeds": {"details": {"description": "Wake up."}}}},
    {"channel_name": "2", "now": {"broadcast_title": "Late Night", "embeds": {"details": {"description": "Wind down."}}}}
  ]
}`

const mixtapesJSON = `{
  "results": [
    {"title": "Poolside", "subtitle": "Balearic grooves", "description": "Sun.", "audio_stream_endpoint": "https://stream.example/poolside"},
    {"title": "Slow Focus", "subtitle": "Ambient", "description": "Calm.", "audio_stream_endpoint": "https://stream.example/slowfocus"},
    {"title": "Broken", "subtitle": "No endpoint", "description": "", "audio_stream_endpoint": ""}
  ]
}`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/live", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(liveJSON))
	})
	mux.HandleFunc("/api/v2/mixtapes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mixtapesJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := testServer(t)
	c := catalog.New(catalog.Options{BaseURL: srv.URL})

	cat, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(cat.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cat.Channels))
	}
	if cat.Channels[0].Name != "NTS Live 1" || cat.Channels[0].Subtitle != "Morning Show" {
		t.Errorf("unexpected first channel: %+v", cat.Channels[0])
	}
	if cat.Channels[1].StreamURL == cat.Channels[0].StreamURL {
		t.Error("live channels must have distinct stream endpoints")
	}

	// The endpointless mixtape is dropped.
	if len(cat.Mixtapes) != 2 {
		t.Fatalf("expected 2 mixtapes, got %d", len(cat.Mixtapes))
	}
	if cat.Mixtapes[0].Name != "Poolside" || cat.Mixtapes[0].StreamURL != "https://stream.example/poolside" {
		t.Errorf("unexpected first mixtape: %+v", cat.Mixtapes[0])
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := catalog.New(catalog.Options{BaseURL: srv.URL})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error from failing API")
	}
}

func TestCatalogAt(t *testing.T) {
	cat := catalog.Catalog{
		Channels: []catalog.Stream{{Name: "c0"}, {Name: "c1"}},
		Mixtapes: []catalog.Stream{{Name: "m0"}},
	}
	if cat.Len() != 3 {
		t.Fatalf("expected len 3, got %d", cat.Len())
	}
	for i, want := range []string{"c0", "c1", "m0"} {
		s, ok := cat.At(i)
		if !ok || s.Name != want {
			t.Errorf("At(%d) = %+v ok=%v, want %s", i, s, ok, want)
		}
	}
	if _, ok := cat.At(3); ok {
		t.Error("expected At(3) out of range")
	}
	if _, ok := cat.At(-1); ok {
		t.Error("expected At(-1) out of range")
	}
}

func TestNextRefresh(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	d := catalog.NextRefresh(now)
	if d != 34*time.Minute {
		t.Errorf("expected 34m until refresh, got %v", d)
	}
}
