package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/cache"
	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/client"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/store"
)

// TestVoiceScenario drives the full read-and-play path the voice host
// exercises: search the catalog, start a playlist, and advance through it on
// lifecycle events, with a real catalog service and stores behind the
// machine.
func TestVoiceScenario(t *testing.T) {
	ctx := context.Background()

	playlist := []catalog.Track{
		{ID: "tr1", Title: "Despacito", Artist: "Luis Fonsi"},
		{ID: "tr2", Title: "Despacito (Remix)", Artist: "Luis Fonsi"},
		{ID: "tr3", Title: "Échame La Culpa", Artist: "Luis Fonsi"},
	}

	var searchCalls, streamCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/v1/search/track":
			searchCalls.Add(1)
			if q := r.URL.Query().Get("q"); q != "Despacito" {
				t.Errorf("unexpected query %q", q)
			}
			json.NewEncoder(w).Encode(catalog.SearchResult{Tracks: playlist[:1]})

		case r.URL.Path == "/v1/playlists/pl1/tracks":
			json.NewEncoder(w).Encode(map[string][]catalog.Track{"items": playlist})

		case strings.HasSuffix(r.URL.Path, "/stream"):
			streamCalls.Add(1)
			trackID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/tracks/"), "/stream")
			json.NewEncoder(w).Encode(catalog.StreamManifest{
				TrackID: trackID,
				URL:     fmt.Sprintf("https://cdn.example.com/%s.m3u8", trackID),
				Bitrate: 320,
			})

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	documents := store.NewSQLiteStore(db)
	tokens := auth.NewTokenStore(documents)
	memo := cache.New(64)
	logger := shared.NewLogger(io.Discard)

	apiClient := client.New(client.Opts{BaseURL: srv.URL + "/v1", ClientID: "encore-test", Seed: 1, Logger: logger})
	exchanger := auth.NewExchanger(apiClient, srv.URL+"/oauth/token", "client-id", "client-secret")
	coord := auth.NewCoordinator(tokens, exchanger, memo, logger)
	service := catalog.NewService(apiClient, coord, memo, catalog.DefaultTTLPolicy, logger)

	if err := tokens.Save(ctx, auth.TokenRecord{UserID: "u1", AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("failed to link account: %v", err)
	}

	sessions := NewSessionStore(documents, 0)
	machine := NewMachine(sessions, service, logger)

	// "Play Despacito": a repeated utterance hits the cache, not the API.
	for i := 0; i < 2; i++ {
		result, err := service.SearchByType(ctx, "u1", "at-1", catalog.KindTrack, "Despacito")
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(result.Tracks) != 1 || result.Tracks[0].Title != "Despacito" {
			t.Fatalf("unexpected search result: %+v", result)
		}
	}
	if searchCalls.Load() != 1 {
		t.Errorf("expected 1 upstream search, got %d", searchCalls.Load())
	}

	// "Play my playlist": the track listing forms the multi-track context.
	tracks, err := service.Tracks(ctx, "u1", "at-1", catalog.KindPlaylist, "pl1")
	if err != nil {
		t.Fatalf("track listing failed: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(tracks))
	}

	next, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks)
	if err != nil {
		t.Fatalf("failed to start playback: %v", err)
	}
	if next.StreamURL != "https://cdn.example.com/tr1.m3u8" {
		t.Errorf("unexpected stream URL %s", next.StreamURL)
	}

	// The host confirms start, then reports the track finished.
	if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventStarted, Token: "tr1"}); err != nil {
		t.Fatalf("failed to handle started: %v", err)
	}
	next, err = machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "tr1"})
	if err != nil {
		t.Fatalf("failed to advance: %v", err)
	}
	if next == nil || next.Track.ID != "tr2" || next.StreamURL != "https://cdn.example.com/tr2.m3u8" {
		t.Fatalf("unexpected next playback: %+v", next)
	}

	latest, err := sessions.Latest(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to read latest: %v", err)
	}
	if latest.CurrentIndex != 1 || latest.TrackID != "tr2" || latest.State != StatePlaying {
		t.Errorf("unexpected snapshot: %+v", latest)
	}

	// Stream manifests for tr1 and tr2 were each resolved exactly once.
	if streamCalls.Load() != 2 {
		t.Errorf("expected 2 stream resolutions, got %d", streamCalls.Load())
	}
}
