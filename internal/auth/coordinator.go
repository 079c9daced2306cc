package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/shared"
)

// Call is one catalog operation parameterized by the current access token.
//
// The coordinator re-invokes the call with a rotated token as a fresh,
// first-class argument; it never inspects or rewrites a failed call.
type Call func(ctx context.Context, accessToken string) (any, error)

// Refresher exchanges a refresh token for a new token pair.
// *Exchanger satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error)
}

// Invalidator drops cache entries keyed by a rotated access token.
// *cache.Cache satisfies it.
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

// Coordinator wraps catalog calls with transparent token refresh.
type Coordinator struct {
	tokens    *TokenStore
	refresher Refresher
	cache     Invalidator
	logger    *log.Logger
}

// NewCoordinator creates a Coordinator. The cache may be nil when no cache
// invalidation is wanted (tests, token-less tools).
func NewCoordinator(tokens *TokenStore, refresher Refresher, cache Invalidator, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Coordinator{
		tokens:    tokens,
		refresher: refresher,
		cache:     cache,
		logger:    logger,
	}
}

// WithAutoRefresh invokes call with accessToken; on an authorization
// failure it resolves the refresh token (by user ID first, then by the
// access-token index), exchanges it, persists the rotated pair, invalidates
// cache entries keyed by the old token, and re-invokes the call exactly once
// with the new token.
//
// When no refresh token is resolvable, or the exchange itself fails, the
// returned error is classified as [shared.ErrNoRefreshToken] or
// [shared.ErrRefreshFailed] with the original authorization error kept in
// the chain, so callers matching [shared.ErrAuthExpired] still receive a
// consistent re-authenticate signal.
func (c *Coordinator) WithAutoRefresh(ctx context.Context, userID, accessToken string, call Call) (any, error) {
	result, err := call(ctx, accessToken)
	if err == nil || !errors.Is(err, shared.ErrAuthExpired) {
		return result, err
	}

	authErr := err
	c.logger.Debug("access token rejected, attempting refresh", "user_id", userID)

	record, resolveErr := c.resolve(ctx, userID, accessToken)
	if resolveErr != nil {
		return nil, resolveErr
	}
	if record == nil || record.RefreshToken == "" {
		c.logger.Warn("no refresh token resolvable", "user_id", userID)
		return nil, fmt.Errorf("%w: %w", shared.ErrNoRefreshToken, authErr)
	}

	rotated, refreshErr := c.refresher.Refresh(ctx, record.RefreshToken)
	if refreshErr != nil {
		c.logger.Warn("token exchange failed", "user_id", record.UserID, "error", refreshErr)
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, authErr)
	}

	rotated.UserID = record.UserID
	if err := c.tokens.Rotate(ctx, *record, *rotated); err != nil {
		return nil, err
	}

	if c.cache != nil {
		removed := c.cache.InvalidatePrefix(record.AccessToken)
		c.logger.Debug("invalidated stale cache entries", "count", removed)
	}

	return call(ctx, rotated.AccessToken)
}

// resolve finds the current token record, preferring the user ID lookup and
// falling back to the access-token secondary index.
func (c *Coordinator) resolve(ctx context.Context, userID, accessToken string) (*TokenRecord, error) {
	if userID != "" {
		record, err := c.tokens.GetByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}

	return c.tokens.GetByAccessToken(ctx, accessToken)
}
