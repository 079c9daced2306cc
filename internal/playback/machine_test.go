package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/shared"
)

type stubResolver struct {
	calls []string
	err   error
}

func (r *stubResolver) StreamURL(ctx context.Context, userID, accessToken, trackID string) (*catalog.StreamManifest, error) {
	r.calls = append(r.calls, trackID)
	if r.err != nil {
		return nil, r.err
	}
	return &catalog.StreamManifest{TrackID: trackID, URL: "https://streams.example.com/" + trackID, Bitrate: 320}, nil
}

func newTestMachine(t *testing.T) (*Machine, *SessionStore, *stubResolver) {
	t.Helper()

	sessions := newTestSessionStore(t)
	resolver := &stubResolver{}
	machine := NewMachine(sessions, resolver, shared.NewLogger(io.Discard))
	machine.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return machine, sessions, resolver
}

func fourTracks() []catalog.Track {
	tracks := make([]catalog.Track, 4)
	for i := range tracks {
		tracks[i] = catalog.Track{ID: fmt.Sprintf("t%d", i+1), Title: fmt.Sprintf("Track %d", i+1), Artist: "Artist"}
	}
	return tracks
}

func TestMachineStart(t *testing.T) {
	ctx := context.Background()

	t.Run("Single Track", func(t *testing.T) {
		machine, sessions, resolver := newTestMachine(t)

		track := catalog.Track{ID: "t1", Title: "Despacito", Artist: "Luis Fonsi"}
		next, err := machine.Start(ctx, "u1", "at-1", track, nil)
		if err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if next.StreamURL != "https://streams.example.com/t1" {
			t.Errorf("unexpected stream URL %s", next.StreamURL)
		}
		if next.Token != "t1" || next.OffsetMS != 0 {
			t.Errorf("unexpected next playback: %+v", next)
		}

		latest, err := sessions.Latest(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to read latest: %v", err)
		}
		if latest.State != StatePlaying || latest.TrackID != "t1" || latest.Title != "Despacito" {
			t.Errorf("unexpected snapshot: %+v", latest)
		}
		if len(resolver.calls) != 1 {
			t.Errorf("expected 1 stream resolution, got %d", len(resolver.calls))
		}
	})

	t.Run("Multi Track Context Starts At Index Zero", func(t *testing.T) {
		machine, sessions, _ := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.CurrentIndex != 0 || len(latest.TrackList) != 4 {
			t.Errorf("unexpected snapshot: index=%d list=%d", latest.CurrentIndex, len(latest.TrackList))
		}
	})

	t.Run("Requires Track ID", func(t *testing.T) {
		machine, _, _ := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{}, nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})

	t.Run("Resolver Failure Writes Nothing", func(t *testing.T) {
		machine, sessions, resolver := newTestMachine(t)
		resolver.err = shared.ErrNotFound

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "missing"}, nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found error, got %v", err)
		}
		if latest, _ := sessions.Latest(ctx, "u1"); latest != nil {
			t.Errorf("expected no snapshot, got %+v", latest)
		}
	})
}

func TestMachineHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("No Active Session", func(t *testing.T) {
		machine, _, _ := newTestMachine(t)

		_, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventStarted, Token: "t1"})
		if !errors.Is(err, shared.ErrNoActiveSession) {
			t.Errorf("expected no active session error, got %v", err)
		}
	})

	t.Run("Stale Token Ignored", func(t *testing.T) {
		machine, sessions, _ := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "t1"}); err != nil {
			t.Fatalf("failed to handle finished: %v", err)
		}

		// Re-delivery for the previous track must not advance the index again.
		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "t1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next != nil {
			t.Errorf("expected stale event to be ignored, got %+v", next)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.CurrentIndex != 1 || latest.TrackID != "t2" {
			t.Errorf("stale event moved the session: %+v", latest)
		}
	})

	t.Run("Stopped Stores Offset", func(t *testing.T) {
		machine, sessions, _ := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "t1", Title: "Despacito"}, nil); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventStopped, Token: "t1", OffsetMS: 93000}); err != nil {
			t.Fatalf("failed to handle stopped: %v", err)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.State != StatePaused || latest.OffsetMS != 93000 {
			t.Errorf("unexpected snapshot: %+v", latest)
		}
	})

	t.Run("Finished Advances Mid List", func(t *testing.T) {
		machine, sessions, resolver := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "t1"}); err != nil {
			t.Fatalf("failed to advance: %v", err)
		}

		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "t2"})
		if err != nil {
			t.Fatalf("failed to advance: %v", err)
		}
		if next == nil || next.Track.ID != "t3" || next.StreamURL != "https://streams.example.com/t3" {
			t.Errorf("unexpected next playback: %+v", next)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.CurrentIndex != 2 || latest.TrackID != "t3" || latest.OffsetMS != 0 {
			t.Errorf("unexpected snapshot: %+v", latest)
		}
		if resolver.calls[len(resolver.calls)-1] != "t3" {
			t.Errorf("expected t3 resolution, got %v", resolver.calls)
		}
	})

	t.Run("Finished On Last Track Completes", func(t *testing.T) {
		machine, sessions, _ := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		for _, token := range []string{"t1", "t2", "t3"} {
			if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: token}); err != nil {
				t.Fatalf("failed to advance past %s: %v", token, err)
			}
		}

		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventFinished, Token: "t4"})
		if err != nil {
			t.Fatalf("failed to complete: %v", err)
		}
		if next != nil {
			t.Errorf("expected no next playback at end of list, got %+v", next)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.State != StateFinished || !latest.IsComplete {
			t.Errorf("unexpected snapshot: %+v", latest)
		}
	})

	t.Run("Nearly Finished Enqueues Without Appending", func(t *testing.T) {
		machine, sessions, _ := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}

		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventNearlyFinished, Token: "t1"})
		if err != nil {
			t.Fatalf("failed to handle nearly finished: %v", err)
		}
		if next == nil || next.Track.ID != "t2" {
			t.Errorf("unexpected next playback: %+v", next)
		}

		history, _ := sessions.History(ctx, "u1", 10)
		if len(history) != 1 {
			t.Errorf("expected enqueue hint to leave the log untouched, got %d snapshots", len(history))
		}
	})

	t.Run("Nearly Finished At End Of List", func(t *testing.T) {
		machine, _, resolver := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "t1"}, nil); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		resolver.calls = nil

		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventNearlyFinished, Token: "t1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next != nil {
			t.Errorf("expected nothing to enqueue, got %+v", next)
		}
		if len(resolver.calls) != 0 {
			t.Errorf("expected no stream resolution, got %v", resolver.calls)
		}
	})

	t.Run("Failed Records Error Without Retry", func(t *testing.T) {
		machine, sessions, resolver := newTestMachine(t)

		tracks := fourTracks()
		if _, err := machine.Start(ctx, "u1", "at-1", tracks[0], tracks); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		resolver.calls = nil

		next, err := machine.HandleEvent(ctx, "u1", "at-1", Event{
			Type:         EventFailed,
			Token:        "t1",
			ErrorType:    "MEDIA_ERROR_INVALID_REQUEST",
			ErrorMessage: "stream rejected",
		})
		if err != nil {
			t.Fatalf("failed to handle failure: %v", err)
		}
		if next != nil {
			t.Errorf("expected no automatic retry, got %+v", next)
		}
		if len(resolver.calls) != 0 {
			t.Errorf("expected no stream resolution, got %v", resolver.calls)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.State != StateFailed || latest.ErrorType != "MEDIA_ERROR_INVALID_REQUEST" || latest.Error != "stream rejected" {
			t.Errorf("unexpected snapshot: %+v", latest)
		}
	})

	t.Run("Unknown Event Type", func(t *testing.T) {
		machine, _, _ := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "t1"}, nil); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}

		_, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventType("rewound"), Token: "t1"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument error, got %v", err)
		}
	})
}

func TestMachineResume(t *testing.T) {
	ctx := context.Background()

	t.Run("Reuses Fresh Stream URL", func(t *testing.T) {
		machine, _, resolver := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "t1", Title: "Despacito"}, nil); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventStopped, Token: "t1", OffsetMS: 60000}); err != nil {
			t.Fatalf("failed to pause: %v", err)
		}
		resolver.calls = nil

		next, err := machine.Resume(ctx, "u1", "at-1")
		if err != nil {
			t.Fatalf("failed to resume: %v", err)
		}
		if next.StreamURL != "https://streams.example.com/t1" || next.OffsetMS != 60000 {
			t.Errorf("unexpected next playback: %+v", next)
		}
		if len(resolver.calls) != 0 {
			t.Errorf("expected stored stream URL to be reused, resolver saw %v", resolver.calls)
		}
	})

	t.Run("Re-resolves Expired Stream URL", func(t *testing.T) {
		machine, sessions, resolver := newTestMachine(t)

		if _, err := machine.Start(ctx, "u1", "at-1", catalog.Track{ID: "t1"}, nil); err != nil {
			t.Fatalf("failed to start playback: %v", err)
		}
		if _, err := machine.HandleEvent(ctx, "u1", "at-1", Event{Type: EventStopped, Token: "t1", OffsetMS: 60000}); err != nil {
			t.Fatalf("failed to pause: %v", err)
		}
		resolver.calls = nil

		machine.now = func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(StreamValidityWindow + time.Minute)
		}

		next, err := machine.Resume(ctx, "u1", "at-1")
		if err != nil {
			t.Fatalf("failed to resume: %v", err)
		}
		if len(resolver.calls) != 1 || resolver.calls[0] != "t1" {
			t.Errorf("expected one re-resolution for t1, got %v", resolver.calls)
		}
		if next.OffsetMS != 60000 {
			t.Errorf("expected stored offset, got %d", next.OffsetMS)
		}

		latest, _ := sessions.Latest(ctx, "u1")
		if latest.State != StatePlaying {
			t.Errorf("expected playing state, got %s", latest.State)
		}
	})

	t.Run("Nothing To Resume", func(t *testing.T) {
		machine, _, _ := newTestMachine(t)

		if _, err := machine.Resume(ctx, "u1", "at-1"); !errors.Is(err, shared.ErrNoActiveSession) {
			t.Errorf("expected no active session error, got %v", err)
		}
	})
}
