// package playback implements the durable playback-session log and the
// state machine that reacts to voice-host lifecycle events.
//
// Sessions are append-only: an "update" is a new snapshot merging the
// previous latest snapshot's fields with the changed ones. The latest
// snapshot for a user is the one with the maximum timestamp.
package playback

import (
	"time"

	"github.com/desertthunder/encore/internal/catalog"
)

// State is the playback state recorded in a snapshot.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// EventType is a playback lifecycle event reported by the voice host.
type EventType string

const (
	EventStarted        EventType = "started"
	EventFinished       EventType = "finished"
	EventStopped        EventType = "stopped"
	EventFailed         EventType = "failed"
	EventNearlyFinished EventType = "nearly_finished"
)

// Event is one lifecycle notification from the voice host. Token carries the
// opaque identifier of the track the host believes is playing.
type Event struct {
	Type         EventType
	Token        string
	OffsetMS     int64  // Stopped only
	ErrorType    string // Failed only
	ErrorMessage string // Failed only
}

// Snapshot is one immutable, timestamped record of a user's playback state.
type Snapshot struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Timestamp        time.Time       `json:"timestamp"`
	State            State           `json:"state"`
	TrackID          string          `json:"track_id"`
	Title            string          `json:"title"`
	Artist           string          `json:"artist"`
	AlbumName        string          `json:"album_name"`
	OffsetMS         int64           `json:"offset_ms"`
	Token            string          `json:"token"`
	CurrentIndex     int             `json:"current_index"`
	TrackList        []catalog.Track `json:"track_list,omitempty"`
	StreamURL        string          `json:"stream_url,omitempty"`
	StreamResolvedAt time.Time       `json:"stream_resolved_at,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorType        string          `json:"error_type,omitempty"`
	IsComplete       bool            `json:"is_complete,omitempty"`
}

// Patch names the optional fields an update may change. Nil fields keep the
// previous snapshot's value.
type Patch struct {
	State            *State
	Track            *catalog.Track
	OffsetMS         *int64
	Token            *string
	CurrentIndex     *int
	TrackList        *[]catalog.Track
	StreamURL        *string
	StreamResolvedAt *time.Time
	Error            *string
	ErrorType        *string
	IsComplete       *bool
}

// Merge returns a copy of the snapshot with the patch's set fields applied.
// The caller assigns the new timestamp when appending.
func (s Snapshot) Merge(p Patch) Snapshot {
	next := s

	if p.State != nil {
		next.State = *p.State
	}
	if p.Track != nil {
		next.TrackID = p.Track.ID
		next.Title = p.Track.Title
		next.Artist = p.Track.Artist
		next.AlbumName = p.Track.AlbumName
	}
	if p.OffsetMS != nil {
		next.OffsetMS = *p.OffsetMS
	}
	if p.Token != nil {
		next.Token = *p.Token
	}
	if p.CurrentIndex != nil {
		next.CurrentIndex = *p.CurrentIndex
	}
	if p.TrackList != nil {
		next.TrackList = *p.TrackList
	}
	if p.StreamURL != nil {
		next.StreamURL = *p.StreamURL
	}
	if p.StreamResolvedAt != nil {
		next.StreamResolvedAt = *p.StreamResolvedAt
	}
	if p.Error != nil {
		next.Error = *p.Error
	}
	if p.ErrorType != nil {
		next.ErrorType = *p.ErrorType
	}
	if p.IsComplete != nil {
		next.IsComplete = *p.IsComplete
	}

	return next
}

// HasNext reports whether a multi-track context has tracks remaining after
// the current index.
func (s Snapshot) HasNext() bool {
	return len(s.TrackList) > 0 && s.CurrentIndex < len(s.TrackList)-1
}

// NextTrack returns the track after the current index. Callers must check
// HasNext first.
func (s Snapshot) NextTrack() catalog.Track {
	return s.TrackList[s.CurrentIndex+1]
}

func ptr[T any](v T) *T { return &v }
