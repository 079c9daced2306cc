// package store defines the durable document-store contract consumed by the
// token and playback-session stores, plus its SQLite implementation.
//
// Items are JSON documents addressed by a (partition, sort) key pair with an
// optional expiry honored passively: expired items are invisible to reads and
// physically removed by maintenance sweeps. A missing item is a valid empty
// result, never an error; infrastructure failures are classified as
// [shared.ErrStorageUnavailable].
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Key addresses a single item.
type Key struct {
	Partition string
	Sort      string
}

// Item is one durable JSON document.
type Item struct {
	Key       Key
	Body      json.RawMessage
	ExpiresAt *time.Time // nil => never expires
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Condition restricts the sort key during a query.
type Condition struct {
	Op    string // "", "=", ">=", "begins_with"
	Value string
}

// Query describes a partition scan.
type Query struct {
	Partition  string
	Sort       Condition
	Descending bool
	Limit      int
}

// Store is the durable store contract.
//
// Implementations must be safe for concurrent use. Concurrent writers for
// the same key race with last-write-wins semantics; lost updates are an
// accepted weakness, not an error.
type Store interface {
	// PutItem inserts or replaces an item.
	PutItem(ctx context.Context, item Item) error

	// GetItem retrieves one item by key. Returns (nil, nil) when the item
	// does not exist or has passively expired.
	GetItem(ctx context.Context, key Key) (*Item, error)

	// Query returns live items in a partition matching the sort condition,
	// ordered by sort key.
	Query(ctx context.Context, q Query) ([]Item, error)

	// DeleteItem removes an item by key. Deleting a missing item is not an
	// error.
	DeleteItem(ctx context.Context, key Key) error

	// BatchWrite applies puts and deletes as one logical operation.
	BatchWrite(ctx context.Context, puts []Item, deletes []Key) error
}

// Purger is implemented by stores that can physically remove passively
// expired items.
type Purger interface {
	// PurgeExpired deletes every expired item and returns the count removed.
	PurgeExpired(ctx context.Context) (int, error)
}

// MarshalBody encodes a record into an item body.
func MarshalBody(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// UnmarshalBody decodes an item body into a record.
func UnmarshalBody(item *Item, v any) error {
	return json.Unmarshal(item.Body, v)
}
