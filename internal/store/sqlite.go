package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/encore/internal/shared"
)

// SQLiteStore implements [Store] over the documents table created by the
// embedded migrations.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore on an open database connection.
// The connection must have had migrations applied via [shared.RunMigrations].
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// PutItem inserts or replaces the item at its key.
func (s *SQLiteStore) PutItem(ctx context.Context, item Item) error {
	now := s.now().UTC()

	query := `
		INSERT INTO documents (partition_key, sort_key, body, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_key, sort_key)
		DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at, updated_at = excluded.updated_at
	`

	var expires any
	if item.ExpiresAt != nil {
		expires = item.ExpiresAt.UTC()
	}

	if _, err := s.db.ExecContext(ctx, query, item.Key.Partition, item.Key.Sort, string(item.Body), expires, now, now); err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", shared.ErrStorageUnavailable, item.Key.Partition, item.Key.Sort, err)
	}

	return nil
}

// GetItem retrieves a live item, treating passively expired rows as absent.
func (s *SQLiteStore) GetItem(ctx context.Context, key Key) (*Item, error) {
	query := `
		SELECT partition_key, sort_key, body, expires_at, created_at, updated_at
		FROM documents
		WHERE partition_key = ? AND sort_key = ? AND (expires_at IS NULL OR expires_at > ?)
	`

	row := s.db.QueryRowContext(ctx, query, key.Partition, key.Sort, s.now().UTC())

	item, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", shared.ErrStorageUnavailable, key.Partition, key.Sort, err)
	}

	return item, nil
}

// Query returns live items in a partition ordered by sort key.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Item, error) {
	query := `
		SELECT partition_key, sort_key, body, expires_at, created_at, updated_at
		FROM documents
		WHERE partition_key = ? AND (expires_at IS NULL OR expires_at > ?)
	`
	args := []any{q.Partition, s.now().UTC()}

	switch q.Sort.Op {
	case "":
	case "=":
		query += " AND sort_key = ?"
		args = append(args, q.Sort.Value)
	case ">=":
		query += " AND sort_key >= ?"
		args = append(args, q.Sort.Value)
	case "begins_with":
		query += " AND sort_key LIKE ?"
		args = append(args, q.Sort.Value+"%")
	default:
		return nil, fmt.Errorf("%w: unsupported sort condition %q", shared.ErrInvalidArgument, q.Sort.Op)
	}

	if q.Descending {
		query += " ORDER BY sort_key DESC"
	} else {
		query += " ORDER BY sort_key ASC"
	}

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", shared.ErrStorageUnavailable, q.Partition, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", shared.ErrStorageUnavailable, q.Partition, err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", shared.ErrStorageUnavailable, q.Partition, err)
	}

	return items, nil
}

// DeleteItem removes an item; deleting a missing item succeeds.
func (s *SQLiteStore) DeleteItem(ctx context.Context, key Key) error {
	query := `DELETE FROM documents WHERE partition_key = ? AND sort_key = ?`

	if _, err := s.db.ExecContext(ctx, query, key.Partition, key.Sort); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", shared.ErrStorageUnavailable, key.Partition, key.Sort, err)
	}

	return nil
}

// BatchWrite applies puts and deletes in a single transaction.
func (s *SQLiteStore) BatchWrite(ctx context.Context, puts []Item, deletes []Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin batch: %v", shared.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	now := s.now().UTC()

	for _, item := range puts {
		var expires any
		if item.ExpiresAt != nil {
			expires = item.ExpiresAt.UTC()
		}

		query := `
			INSERT INTO documents (partition_key, sort_key, body, expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (partition_key, sort_key)
			DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at, updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, item.Key.Partition, item.Key.Sort, string(item.Body), expires, now, now); err != nil {
			return fmt.Errorf("%w: batch put %s/%s: %v", shared.ErrStorageUnavailable, item.Key.Partition, item.Key.Sort, err)
		}
	}

	for _, key := range deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE partition_key = ? AND sort_key = ?`, key.Partition, key.Sort); err != nil {
			return fmt.Errorf("%w: batch delete %s/%s: %v", shared.ErrStorageUnavailable, key.Partition, key.Sort, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit batch: %v", shared.ErrStorageUnavailable, err)
	}

	return nil
}

// PurgeExpired physically removes passively expired rows.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: purge expired: %v", shared.ErrStorageUnavailable, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge expired: %v", shared.ErrStorageUnavailable, err)
	}

	return int(removed), nil
}

// scanItem maps one row onto an Item.
func scanItem(scan func(dest ...any) error) (*Item, error) {
	var (
		item      Item
		body      string
		expiresAt sql.NullTime
	)

	if err := scan(&item.Key.Partition, &item.Key.Sort, &body, &expiresAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}

	item.Body = []byte(body)
	if expiresAt.Valid {
		t := expiresAt.Time
		item.ExpiresAt = &t
	}

	return &item, nil
}
