// package catalog implements the read-side access layer for the music
// catalog/streaming service: search, track listings, stream-URL resolution,
// and favorites, with per-operation-kind cache TTLs and transparent token
// refresh.
//
// Catalog API response types follow the provider's HTTPS/JSON contract.
package catalog

import "time"

// Profile represents the authenticated catalog user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Product     string `json:"product"`
}

// Track represents a playable catalog track.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AlbumName  string `json:"album_name"`
	DurationMS int    `json:"duration_ms"`
}

// Album represents a catalog album.
type Album struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	TotalTracks int    `json:"total_tracks"`
}

// Playlist represents a catalog playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TotalTracks int    `json:"total_tracks"`
}

// Artist represents a catalog artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult aggregates multi-type search hits.
type SearchResult struct {
	Tracks    []Track    `json:"tracks"`
	Albums    []Album    `json:"albums"`
	Playlists []Playlist `json:"playlists"`
	Artists   []Artist   `json:"artists"`
}

// StreamManifest is the streaming manifest for one track.
type StreamManifest struct {
	TrackID   string    `json:"track_id"`
	URL       string    `json:"url"`
	Bitrate   int       `json:"bitrate"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ContextKind identifies a multi-track playback context source.
type ContextKind string

const (
	KindTrack    ContextKind = "track"
	KindAlbum    ContextKind = "album"
	KindPlaylist ContextKind = "playlist"
	KindArtist   ContextKind = "artist"
)

// Valid reports whether the kind names a known catalog entity.
func (k ContextKind) Valid() bool {
	switch k {
	case KindTrack, KindAlbum, KindPlaylist, KindArtist:
		return true
	}
	return false
}

// trackListResponse is the wire shape of album/playlist/artist track listings.
type trackListResponse struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}

// favoritesResponse is the wire shape of the user's saved tracks.
type favoritesResponse struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}
