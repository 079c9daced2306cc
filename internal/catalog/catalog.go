package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/cache"
	"github.com/desertthunder/encore/internal/client"
	"github.com/desertthunder/encore/internal/shared"
)

// Cache namespaces, one per operation kind.
const (
	nsCatalog   = "catalog"
	nsTracks    = "tracks"
	nsStream    = "stream"
	nsFavorites = "favorites"
	nsProfile   = "profile"
)

// TTLPolicy assigns a cache lifetime to each operation kind.
type TTLPolicy struct {
	Search    time.Duration
	Tracks    time.Duration
	Stream    time.Duration
	Favorites time.Duration
	Profile   time.Duration
}

// DefaultTTLPolicy balances freshness against catalog request volume.
// Stream manifests expire fastest since their URLs carry signed expiries.
var DefaultTTLPolicy = TTLPolicy{
	Search:    15 * time.Minute,
	Tracks:    30 * time.Minute,
	Stream:    10 * time.Minute,
	Favorites: 5 * time.Minute,
	Profile:   30 * time.Minute,
}

// Service is the catalog access layer. It owns no persistent state, only
// cache entries; every miss flows through the refresh coordinator to the
// resilient client.
type Service struct {
	client      *client.Client
	coordinator *auth.Coordinator
	cache       *cache.Cache
	ttl         TTLPolicy
	logger      *log.Logger
}

// NewService creates the catalog access layer.
func NewService(c *client.Client, coord *auth.Coordinator, memo *cache.Cache, ttl TTLPolicy, logger *log.Logger) *Service {
	if ttl == (TTLPolicy{}) {
		ttl = DefaultTTLPolicy
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Service{
		client:      c,
		coordinator: coord,
		cache:       memo,
		ttl:         ttl,
		logger:      logger,
	}
}

// Profile retrieves the authenticated user's catalog profile.
//
// Cached under the access token itself so rotation invalidates it.
func (s *Service) Profile(ctx context.Context, userID, accessToken string) (*Profile, error) {
	value, err := s.cache.GetOrSet(nsProfile, accessToken, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var profile Profile
			if err := s.get(ctx, token, "/me", nil, &profile); err != nil {
				return nil, err
			}
			return &profile, nil
		})
	}, s.ttl.Profile)
	if err != nil {
		return nil, err
	}

	return value.(*Profile), nil
}

// Search performs a multi-type search across tracks, albums, playlists, and
// artists.
func (s *Service) Search(ctx context.Context, userID, accessToken, query string) (*SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	key := "all:" + query
	value, err := s.cache.GetOrSet(nsCatalog, key, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var result SearchResult
			if err := s.get(ctx, token, "/search", url.Values{"q": {query}}, &result); err != nil {
				return nil, err
			}
			return &result, nil
		})
	}, s.ttl.Search)
	if err != nil {
		return nil, err
	}

	return value.(*SearchResult), nil
}

// SearchByType performs a single-type search, e.g. kind "track" with query
// "Despacito" caches under (catalog, "track:Despacito").
func (s *Service) SearchByType(ctx context.Context, userID, accessToken string, kind ContextKind, query string) (*SearchResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown search kind %q", shared.ErrInvalidArgument, kind)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	key := string(kind) + ":" + query
	value, err := s.cache.GetOrSet(nsCatalog, key, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var result SearchResult
			path := "/search/" + string(kind)
			if err := s.get(ctx, token, path, url.Values{"q": {query}}, &result); err != nil {
				return nil, err
			}
			return &result, nil
		})
	}, s.ttl.Search)
	if err != nil {
		return nil, err
	}

	return value.(*SearchResult), nil
}

// Tracks lists the tracks of an album, playlist, or artist, forming the
// multi-track context for playback.
func (s *Service) Tracks(ctx context.Context, userID, accessToken string, kind ContextKind, id string) ([]Track, error) {
	if kind != KindAlbum && kind != KindPlaylist && kind != KindArtist {
		return nil, fmt.Errorf("%w: no track listing for kind %q", shared.ErrInvalidArgument, kind)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty %s id", shared.ErrMissingArgument, kind)
	}

	key := string(kind) + ":" + id
	value, err := s.cache.GetOrSet(nsTracks, key, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var result trackListResponse
			path := fmt.Sprintf("/%ss/%s/tracks", kind, id)
			if err := s.get(ctx, token, path, nil, &result); err != nil {
				return nil, err
			}
			return result.Items, nil
		})
	}, s.ttl.Tracks)
	if err != nil {
		return nil, err
	}

	return value.([]Track), nil
}

// StreamURL resolves the streaming manifest for one track.
func (s *Service) StreamURL(ctx context.Context, userID, accessToken, trackID string) (*StreamManifest, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: empty track id", shared.ErrMissingArgument)
	}

	value, err := s.cache.GetOrSet(nsStream, trackID, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var manifest StreamManifest
			path := fmt.Sprintf("/tracks/%s/stream", trackID)
			if err := s.get(ctx, token, path, nil, &manifest); err != nil {
				return nil, err
			}
			if manifest.TrackID == "" {
				manifest.TrackID = trackID
			}
			return &manifest, nil
		})
	}, s.ttl.Stream)
	if err != nil {
		return nil, err
	}

	return value.(*StreamManifest), nil
}

// Favorites retrieves the user's saved tracks.
//
// Cached under the access token so rotation invalidates the entry.
func (s *Service) Favorites(ctx context.Context, userID, accessToken string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	key := fmt.Sprintf("%s:%d", accessToken, limit)
	value, err := s.cache.GetOrSet(nsFavorites, key, func() (any, error) {
		return s.coordinator.WithAutoRefresh(ctx, userID, accessToken, func(ctx context.Context, token string) (any, error) {
			var result favoritesResponse
			query := url.Values{"limit": {fmt.Sprintf("%d", limit)}}
			if err := s.get(ctx, token, "/me/favorites", query, &result); err != nil {
				return nil, err
			}
			return result.Items, nil
		})
	}, s.ttl.Favorites)
	if err != nil {
		return nil, err
	}

	return value.([]Track), nil
}

// CacheStats exposes cache counters for the maintenance surface.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// get performs an authenticated GET through the resilient client and decodes
// the JSON response into result.
func (s *Service) get(ctx context.Context, accessToken, path string, query url.Values, result any) error {
	resp, err := s.client.Execute(ctx, client.Request{
		Method:      http.MethodGet,
		Path:        path,
		Query:       query,
		AccessToken: accessToken,
	})
	if err != nil {
		return err
	}

	return resp.JSON(result)
}
