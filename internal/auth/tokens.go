// package auth implements the OAuth2 bearer-token lifecycle: the durable
// token store and the refresh coordinator that transparently rotates expired
// tokens and re-issues the original call exactly once.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/encore/internal/store"
)

// TokenRecord associates a user's current access token with its refresh
// token. Primary identity is (UserID, AccessToken); a secondary index
// resolves AccessToken alone for callers that only hold the bearer token.
type TokenRecord struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	tokenPartitionPrefix = "token#"
	indexPartitionPrefix = "access#"
	indexSortKey         = "index"
)

// TokenStore persists token records in the durable store.
//
// The store is the sole writer of TokenRecord documents. Rotation is atomic
// from the caller's perspective: the old pair is removed and the new pair
// inserted in one batch write, so a refresh token is never attached to more
// than one current access token.
type TokenStore struct {
	store store.Store
	now   func() time.Time
}

// NewTokenStore creates a TokenStore backed by the given durable store.
func NewTokenStore(s store.Store) *TokenStore {
	return &TokenStore{store: s, now: time.Now}
}

// Save inserts a token record and its access-token index entry as one batch.
func (ts *TokenStore) Save(ctx context.Context, record TokenRecord) error {
	if record.UserID == "" || record.AccessToken == "" {
		return fmt.Errorf("token record requires user ID and access token")
	}

	now := ts.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	puts, err := ts.recordItems(record)
	if err != nil {
		return err
	}

	return ts.store.BatchWrite(ctx, puts, nil)
}

// GetByUser retrieves the user's current token record, or nil if the user
// has no linked tokens.
func (ts *TokenStore) GetByUser(ctx context.Context, userID string) (*TokenRecord, error) {
	items, err := ts.store.Query(ctx, store.Query{Partition: tokenPartitionPrefix + userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	var record TokenRecord
	if err := store.UnmarshalBody(&items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}

	return &record, nil
}

// GetByAccessToken resolves a record through the secondary index when the
// caller does not know the user ID.
func (ts *TokenStore) GetByAccessToken(ctx context.Context, accessToken string) (*TokenRecord, error) {
	item, err := ts.store.GetItem(ctx, store.Key{Partition: indexPartitionPrefix + accessToken, Sort: indexSortKey})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	var record TokenRecord
	if err := store.UnmarshalBody(item, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token index record: %w", err)
	}

	return &record, nil
}

// Rotate replaces the old token pair with the new one as a single logical
// operation: both primary and index entries for the old pair are deleted and
// the new pair is written in the same batch.
func (ts *TokenStore) Rotate(ctx context.Context, old TokenRecord, updated TokenRecord) error {
	now := ts.now().UTC()
	updated.CreatedAt = now
	updated.UpdatedAt = now

	puts, err := ts.recordItems(updated)
	if err != nil {
		return err
	}

	deletes := []store.Key{
		{Partition: tokenPartitionPrefix + old.UserID, Sort: old.AccessToken},
		{Partition: indexPartitionPrefix + old.AccessToken, Sort: indexSortKey},
	}

	return ts.store.BatchWrite(ctx, puts, deletes)
}

// Revoke removes every token record for the user, including index entries.
func (ts *TokenStore) Revoke(ctx context.Context, userID string) error {
	items, err := ts.store.Query(ctx, store.Query{Partition: tokenPartitionPrefix + userID})
	if err != nil {
		return err
	}

	var deletes []store.Key
	for _, item := range items {
		var record TokenRecord
		if err := store.UnmarshalBody(&item, &record); err != nil {
			continue
		}

		deletes = append(deletes,
			store.Key{Partition: tokenPartitionPrefix + record.UserID, Sort: record.AccessToken},
			store.Key{Partition: indexPartitionPrefix + record.AccessToken, Sort: indexSortKey},
		)
	}

	if len(deletes) == 0 {
		return nil
	}

	return ts.store.BatchWrite(ctx, nil, deletes)
}

// recordItems builds the primary and index items for a record.
func (ts *TokenStore) recordItems(record TokenRecord) ([]store.Item, error) {
	body, err := store.MarshalBody(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token record: %w", err)
	}

	return []store.Item{
		{Key: store.Key{Partition: tokenPartitionPrefix + record.UserID, Sort: record.AccessToken}, Body: body},
		{Key: store.Key{Partition: indexPartitionPrefix + record.AccessToken, Sort: indexSortKey}, Body: body},
	}, nil
}
