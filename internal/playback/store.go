package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/store"
)

const sessionPartitionPrefix = "session#"

// DefaultSessionTTL bounds how long snapshots stay visible before passive
// expiry reclaims them.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore is the append-only, per-user, timestamp-ordered snapshot log.
//
// The state machine is its sole writer. Concurrent writers for the same user
// race with last-write-wins-by-timestamp semantics; a lost update is an
// accepted weakness.
type SessionStore struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore creates a SessionStore with the given snapshot TTL.
// A non-positive ttl falls back to [DefaultSessionTTL].
func NewSessionStore(s store.Store, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &SessionStore{store: s, ttl: ttl, now: time.Now}
}

// Append writes a new snapshot. The snapshot's ID and timestamp are
// assigned here; existing snapshots are never mutated.
func (ss *SessionStore) Append(ctx context.Context, snapshot Snapshot) (Snapshot, error) {
	if snapshot.UserID == "" {
		return Snapshot{}, fmt.Errorf("snapshot requires a user ID")
	}

	snapshot.ID = shared.GenerateID()
	snapshot.Timestamp = ss.now().UTC()

	body, err := store.MarshalBody(snapshot)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	expires := snapshot.Timestamp.Add(ss.ttl)
	item := store.Item{
		Key:       store.Key{Partition: sessionPartitionPrefix + snapshot.UserID, Sort: sortKey(snapshot.Timestamp)},
		Body:      body,
		ExpiresAt: &expires,
	}

	if err := ss.store.PutItem(ctx, item); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

// Latest returns the snapshot with the maximum timestamp for the user, or
// nil when the user has no live session.
func (ss *SessionStore) Latest(ctx context.Context, userID string) (*Snapshot, error) {
	items, err := ss.store.Query(ctx, store.Query{
		Partition:  sessionPartitionPrefix + userID,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	var snapshot Snapshot
	if err := store.UnmarshalBody(&items[0], &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &snapshot, nil
}

// History returns up to limit snapshots for the user, newest first.
func (ss *SessionStore) History(ctx context.Context, userID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	items, err := ss.store.Query(ctx, store.Query{
		Partition:  sessionPartitionPrefix + userID,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(items))
	for _, item := range items {
		var snapshot Snapshot
		if err := store.UnmarshalBody(&item, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

// DeleteAll removes every snapshot for the user and returns the count,
// supporting unlink and cleanup flows.
func (ss *SessionStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	items, err := ss.store.Query(ctx, store.Query{Partition: sessionPartitionPrefix + userID})
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	deletes := make([]store.Key, 0, len(items))
	for _, item := range items {
		deletes = append(deletes, item.Key)
	}

	if err := ss.store.BatchWrite(ctx, nil, deletes); err != nil {
		return 0, err
	}

	return len(deletes), nil
}

// sortKey renders a timestamp as a fixed-width, lexicographically ordered
// sort key.
func sortKey(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}
