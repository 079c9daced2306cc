package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/shared"
)

// StreamValidityWindow bounds how long a stored stream URL may be reused on
// resume before it is re-resolved.
const StreamValidityWindow = 10 * time.Minute

// StreamResolver resolves a track's streaming manifest.
// *catalog.Service satisfies it.
type StreamResolver interface {
	StreamURL(ctx context.Context, userID, accessToken, trackID string) (*catalog.StreamManifest, error)
}

// NextPlayback tells the upstream handler what to play next.
type NextPlayback struct {
	StreamURL string
	Token     string
	OffsetMS  int64
	Track     catalog.Track
}

// Machine is the playback state machine. It is the sole writer of playback
// snapshots: it consumes a lifecycle event plus the latest snapshot and
// produces the next snapshot and next action.
//
// States per user session: Idle -> Playing -> {Paused, Finished, Failed},
// with Paused -> Playing on resume.
type Machine struct {
	sessions *SessionStore
	resolver StreamResolver
	logger   *log.Logger
	now      func() time.Time
}

// NewMachine creates a playback state machine.
func NewMachine(sessions *SessionStore, resolver StreamResolver, logger *log.Logger) *Machine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Machine{
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins playback of a track, optionally inside a multi-track context.
// A fresh snapshot is written with offset 0 and, for multi-track contexts,
// index 0.
func (m *Machine) Start(ctx context.Context, userID, accessToken string, track catalog.Track, trackList []catalog.Track) (*NextPlayback, error) {
	if track.ID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	manifest, err := m.resolver.StreamURL(ctx, userID, accessToken, track.ID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	snapshot := Snapshot{
		UserID:           userID,
		State:            StatePlaying,
		TrackID:          track.ID,
		Title:            track.Title,
		Artist:           track.Artist,
		AlbumName:        track.AlbumName,
		OffsetMS:         0,
		Token:            track.ID,
		CurrentIndex:     0,
		TrackList:        trackList,
		StreamURL:        manifest.URL,
		StreamResolvedAt: now,
	}

	if _, err := m.sessions.Append(ctx, snapshot); err != nil {
		return nil, err
	}

	m.logger.Info("playback started", "user_id", userID, "track_id", track.ID, "context_size", len(trackList))

	return &NextPlayback{StreamURL: manifest.URL, Token: track.ID, OffsetMS: 0, Track: track}, nil
}

// HandleEvent applies one lifecycle event to the user's session.
//
// Events whose token does not match the latest snapshot's current track are
// stale re-deliveries and are ignored, which keeps index progression intact
// when the host re-sends an event. The returned NextPlayback is non-nil only
// when the host should start another stream (track advance or enqueue hint).
func (m *Machine) HandleEvent(ctx context.Context, userID, accessToken string, event Event) (*NextPlayback, error) {
	latest, err := m.sessions.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNoActiveSession, userID)
	}

	if event.Token != "" && event.Token != latest.Token {
		m.logger.Debug("ignoring stale lifecycle event", "user_id", userID, "event", event.Type, "token", event.Token, "current", latest.Token)
		return nil, nil
	}

	switch event.Type {
	case EventStarted:
		_, err := m.append(ctx, *latest, Patch{State: ptr(StatePlaying)})
		return nil, err

	case EventStopped:
		_, err := m.append(ctx, *latest, Patch{State: ptr(StatePaused), OffsetMS: ptr(event.OffsetMS)})
		return nil, err

	case EventNearlyFinished:
		return m.enqueueNext(ctx, userID, accessToken, *latest)

	case EventFinished:
		return m.advance(ctx, userID, accessToken, *latest)

	case EventFailed:
		m.logger.Warn("playback failed", "user_id", userID, "error_type", event.ErrorType, "error", event.ErrorMessage)
		_, err := m.append(ctx, *latest, Patch{
			State:     ptr(StateFailed),
			Error:     ptr(event.ErrorMessage),
			ErrorType: ptr(event.ErrorType),
		})
		return nil, err

	default:
		return nil, fmt.Errorf("%w: unknown lifecycle event %q", shared.ErrInvalidArgument, event.Type)
	}
}

// Resume restarts playback from the latest snapshot's stored offset. The
// stored stream URL is reused when younger than [StreamValidityWindow],
// otherwise it is re-resolved through the catalog.
func (m *Machine) Resume(ctx context.Context, userID, accessToken string) (*NextPlayback, error) {
	latest, err := m.sessions.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.TrackID == "" {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNoActiveSession, userID)
	}

	streamURL := latest.StreamURL
	resolvedAt := latest.StreamResolvedAt

	if streamURL == "" || m.now().Sub(resolvedAt) > StreamValidityWindow {
		manifest, err := m.resolver.StreamURL(ctx, userID, accessToken, latest.TrackID)
		if err != nil {
			return nil, err
		}
		streamURL = manifest.URL
		resolvedAt = m.now().UTC()
	}

	snapshot, err := m.append(ctx, *latest, Patch{
		State:            ptr(StatePlaying),
		StreamURL:        ptr(streamURL),
		StreamResolvedAt: ptr(resolvedAt),
		IsComplete:       ptr(false),
	})
	if err != nil {
		return nil, err
	}

	return &NextPlayback{
		StreamURL: streamURL,
		Token:     snapshot.Token,
		OffsetMS:  snapshot.OffsetMS,
		Track:     catalog.Track{ID: snapshot.TrackID, Title: snapshot.Title, Artist: snapshot.Artist, AlbumName: snapshot.AlbumName},
	}, nil
}

// advance moves a multi-track context to its next track, or marks the
// session complete at the end of the list.
func (m *Machine) advance(ctx context.Context, userID, accessToken string, latest Snapshot) (*NextPlayback, error) {
	if !latest.HasNext() {
		_, err := m.append(ctx, latest, Patch{State: ptr(StateFinished), IsComplete: ptr(true)})
		if err != nil {
			return nil, err
		}

		m.logger.Info("playback complete", "user_id", userID, "track_id", latest.TrackID)
		return nil, nil
	}

	next := latest.NextTrack()
	manifest, err := m.resolver.StreamURL(ctx, userID, accessToken, next.ID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	snapshot, err := m.append(ctx, latest, Patch{
		State:            ptr(StatePlaying),
		Track:            &next,
		Token:            ptr(next.ID),
		CurrentIndex:     ptr(latest.CurrentIndex + 1),
		OffsetMS:         ptr(int64(0)),
		StreamURL:        ptr(manifest.URL),
		StreamResolvedAt: ptr(now),
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("advanced to next track", "user_id", userID, "track_id", next.ID, "index", snapshot.CurrentIndex)

	return &NextPlayback{StreamURL: manifest.URL, Token: next.ID, OffsetMS: 0, Track: next}, nil
}

// enqueueNext resolves the upcoming track for a NearlyFinished hint without
// touching the session log; the Finished event performs the actual advance.
func (m *Machine) enqueueNext(ctx context.Context, userID, accessToken string, latest Snapshot) (*NextPlayback, error) {
	if !latest.HasNext() {
		return nil, nil
	}

	next := latest.NextTrack()
	manifest, err := m.resolver.StreamURL(ctx, userID, accessToken, next.ID)
	if err != nil {
		return nil, err
	}

	return &NextPlayback{StreamURL: manifest.URL, Token: next.ID, OffsetMS: 0, Track: next}, nil
}

// append merges a patch onto the previous snapshot and writes the result.
func (m *Machine) append(ctx context.Context, prev Snapshot, patch Patch) (Snapshot, error) {
	return m.sessions.Append(ctx, prev.Merge(patch))
}
