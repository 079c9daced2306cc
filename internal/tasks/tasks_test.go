package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/cache"
	"github.com/desertthunder/encore/internal/playback"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/store"
)

type engineFixture struct {
	engine    *Engine
	documents *store.SQLiteStore
	tokens    *auth.TokenStore
	sessions  *playback.SessionStore
	memo      *cache.Cache
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	documents := store.NewSQLiteStore(db)
	tokens := auth.NewTokenStore(documents)
	sessions := playback.NewSessionStore(documents, 0)
	memo := cache.New(32)

	return &engineFixture{
		engine:    NewEngine(documents, tokens, sessions, memo, shared.NewLogger(io.Discard)),
		documents: documents,
		tokens:    tokens,
		sessions:  sessions,
		memo:      memo,
	}
}

// drain collects any buffered progress updates for assertions.
func drain(progress chan ProgressUpdate) []ProgressUpdate {
	close(progress)
	var updates []ProgressUpdate
	for update := range progress {
		updates = append(updates, update)
	}
	return updates
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("Purges Expired Documents And Cache Entries", func(t *testing.T) {
		f := newEngineFixture(t)

		past := time.Now().Add(-time.Hour)
		future := time.Now().Add(time.Hour)
		items := []store.Item{
			{Key: store.Key{Partition: "session#u1", Sort: "a"}, Body: []byte(`{}`), ExpiresAt: &past},
			{Key: store.Key{Partition: "session#u1", Sort: "b"}, Body: []byte(`{}`), ExpiresAt: &past},
			{Key: store.Key{Partition: "session#u2", Sort: "a"}, Body: []byte(`{}`), ExpiresAt: &future},
		}
		for _, item := range items {
			if err := f.documents.PutItem(ctx, item); err != nil {
				t.Fatalf("failed to seed document: %v", err)
			}
		}

		f.memo.Set("catalog", "stale", "v", time.Nanosecond)
		f.memo.Set("catalog", "fresh", "v", time.Hour)
		time.Sleep(5 * time.Millisecond)

		progress := make(chan ProgressUpdate, 8)
		result, err := f.engine.Sweep(ctx, progress)
		if err != nil {
			t.Fatalf("failed to sweep: %v", err)
		}

		if result.RemovedDocuments != 2 {
			t.Errorf("expected 2 documents removed, got %d", result.RemovedDocuments)
		}
		if result.RemovedCacheEntries != 1 {
			t.Errorf("expected 1 cache entry removed, got %d", result.RemovedCacheEntries)
		}
		if !f.memo.Has("catalog", "fresh") {
			t.Error("expected fresh cache entry to survive")
		}

		updates := drain(progress)
		if len(updates) != 4 {
			t.Errorf("expected 4 progress updates, got %d", len(updates))
		}
	})

	t.Run("Nothing To Remove", func(t *testing.T) {
		f := newEngineFixture(t)

		result, err := f.engine.Sweep(ctx, nil)
		if err != nil {
			t.Fatalf("failed to sweep: %v", err)
		}
		if result.RemovedDocuments != 0 || result.RemovedCacheEntries != 0 {
			t.Errorf("expected empty sweep, got %+v", result)
		}
	})

	t.Run("Requires Document Store", func(t *testing.T) {
		engine := NewEngine(nil, nil, nil, nil, shared.NewLogger(io.Discard))

		if _, err := engine.Sweep(ctx, nil); !errors.Is(err, shared.ErrStorageUnavailable) {
			t.Errorf("expected storage error, got %v", err)
		}
	})
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()

	t.Run("Removes Tokens Sessions And Cached Reads", func(t *testing.T) {
		f := newEngineFixture(t)

		record := auth.TokenRecord{UserID: "u1", AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(time.Hour)}
		if err := f.tokens.Save(ctx, record); err != nil {
			t.Fatalf("failed to save tokens: %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := f.sessions.Append(ctx, playback.Snapshot{UserID: "u1", State: playback.StatePlaying, TrackID: "t1"}); err != nil {
				t.Fatalf("failed to append snapshot: %v", err)
			}
		}
		f.memo.Set("profile", "at-1", "v", time.Hour)
		f.memo.Set("favorites", "at-1:20", "v", time.Hour)
		f.memo.Set("catalog", "track:Despacito", "v", time.Hour)

		progress := make(chan ProgressUpdate, 8)
		result, err := f.engine.Unlink(ctx, progress, "u1")
		if err != nil {
			t.Fatalf("failed to unlink: %v", err)
		}

		if !result.TokensRevoked {
			t.Error("expected tokens revoked")
		}
		if result.RemovedSessions != 3 {
			t.Errorf("expected 3 sessions removed, got %d", result.RemovedSessions)
		}
		if result.RemovedCacheEntries != 2 {
			t.Errorf("expected 2 cache entries removed, got %d", result.RemovedCacheEntries)
		}

		if got, _ := f.tokens.GetByUser(ctx, "u1"); got != nil {
			t.Error("expected tokens gone")
		}
		if latest, _ := f.sessions.Latest(ctx, "u1"); latest != nil {
			t.Error("expected sessions gone")
		}
		if !f.memo.Has("catalog", "track:Despacito") {
			t.Error("expected shared catalog entry to survive")
		}

		if updates := drain(progress); len(updates) != 3 {
			t.Errorf("expected 3 progress updates, got %d", len(updates))
		}
	})

	t.Run("Unknown User Is Not An Error", func(t *testing.T) {
		f := newEngineFixture(t)

		result, err := f.engine.Unlink(ctx, nil, "ghost")
		if err != nil {
			t.Fatalf("failed to unlink: %v", err)
		}
		if result.TokensRevoked || result.RemovedSessions != 0 {
			t.Errorf("expected empty cleanup, got %+v", result)
		}
	})

	t.Run("Requires User ID", func(t *testing.T) {
		f := newEngineFixture(t)

		if _, err := f.engine.Unlink(ctx, nil, ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})
}
