package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/cache"
	"github.com/desertthunder/encore/internal/playback"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/store"
)

// SweepResult contains counts from one expired-data sweep.
type SweepResult struct {
	RemovedDocuments    int         // Expired rows purged from the durable store
	RemovedCacheEntries int         // Expired entries removed from the cache
	CacheStats          cache.Stats // Cache counters after the sweep
	Elapsed             time.Duration
}

// UnlinkResult contains counts from one account unlink cleanup.
type UnlinkResult struct {
	RemovedSessions     int // Session snapshots deleted
	RemovedCacheEntries int // Cache entries invalidated for the user's token
	TokensRevoked       bool
}

// MaintenanceEngine defines housekeeping operations over stored data.
type MaintenanceEngine interface {
	// Sweep purges expired documents from the durable store and expired entries from the cache.
	Sweep(ctx context.Context, progress chan<- ProgressUpdate) (*SweepResult, error)

	// Unlink removes everything held for a user: tokens, session snapshots, and cached reads.
	Unlink(ctx context.Context, progress chan<- ProgressUpdate, userID string) (*UnlinkResult, error)
}

// Engine implements MaintenanceEngine over the document store, the token
// store, the session log, and the cache.
type Engine struct {
	documents store.Purger
	tokens    *auth.TokenStore
	sessions  *playback.SessionStore
	memo      *cache.Cache
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine creates a maintenance engine with the provided stores.
func NewEngine(documents store.Purger, tokens *auth.TokenStore, sessions *playback.SessionStore, memo *cache.Cache, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Engine{
		documents: documents,
		tokens:    tokens,
		sessions:  sessions,
		memo:      memo,
		logger:    logger,
		now:       time.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Sweep purges passively expired documents and cache entries. Expiry
// filtering already hides them from reads; the sweep reclaims the space.
func (e *Engine) Sweep(ctx context.Context, progress chan<- ProgressUpdate) (*SweepResult, error) {
	if e.documents == nil {
		return nil, fmt.Errorf("%w: document store not initialized", shared.ErrStorageUnavailable)
	}

	started := e.now()
	result := &SweepResult{}

	e.sendProgress(progress, purgeDocumentsUpdate(1, 2))
	removed, err := e.documents.PurgeExpired(ctx)
	if err != nil {
		return nil, err
	}
	result.RemovedDocuments = removed
	e.sendProgress(progress, purgedDocumentsUpdate(1, 2, removed))

	if e.memo != nil {
		e.sendProgress(progress, sweepCacheUpdate(2, 2))
		result.RemovedCacheEntries = e.memo.Sweep()
		result.CacheStats = e.memo.Stats()
		e.sendProgress(progress, sweptCacheUpdate(2, 2, result.RemovedCacheEntries))
	}

	result.Elapsed = e.now().Sub(started)
	e.logger.Info("sweep complete",
		"documents_removed", result.RemovedDocuments,
		"cache_entries_removed", result.RemovedCacheEntries,
		"elapsed", result.Elapsed)

	return result, nil
}

// Unlink revokes the user's tokens, deletes their session snapshots, and
// invalidates cache entries keyed by their access token. Tokens go first so
// a request racing the cleanup cannot refresh its way back in.
func (e *Engine) Unlink(ctx context.Context, progress chan<- ProgressUpdate, userID string) (*UnlinkResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if e.tokens == nil || e.sessions == nil {
		return nil, fmt.Errorf("%w: stores not initialized", shared.ErrStorageUnavailable)
	}

	result := &UnlinkResult{}

	record, err := e.tokens.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, revokeTokensUpdate(1, 2, userID))
	if err := e.tokens.Revoke(ctx, userID); err != nil {
		return nil, err
	}
	result.TokensRevoked = record != nil

	if e.memo != nil && record != nil {
		result.RemovedCacheEntries = e.memo.InvalidatePrefix(record.AccessToken)
	}

	e.sendProgress(progress, deleteSessionsUpdate(2, 2, userID))
	removed, err := e.sessions.DeleteAll(ctx, userID)
	if err != nil {
		return result, err
	}
	result.RemovedSessions = removed
	e.sendProgress(progress, deletedSessionsUpdate(2, 2, removed))

	e.logger.Info("account unlinked",
		"user_id", userID,
		"sessions_removed", result.RemovedSessions,
		"cache_entries_removed", result.RemovedCacheEntries)

	return result, nil
}
