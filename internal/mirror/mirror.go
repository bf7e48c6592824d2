package mirror

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Mirror is the durable local cache of remote collections. Each collection is
// stored as a single row holding the full serialized set, replaced wholesale
// on every successful remote read and on every offline mutation.
type Mirror struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func New(db *sql.DB) Mirror {
	return Mirror{DB: db, Now: time.Now}
}

func (m Mirror) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Load returns the serialized collection, or ErrNotFound if it was never cached.
func (m Mirror) Load(ctx context.Context, collection string) ([]byte, error) {
	var payload string
	err := m.DB.QueryRowContext(ctx, `SELECT payload_json FROM collections WHERE name=?`, collection).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// Replace overwrites the serialized collection.
func (m Mirror) Replace(ctx context.Context, collection string, payload []byte) error {
	now := m.now().UTC().Format(time.RFC3339)
	_, err := m.DB.ExecContext(ctx, `INSERT INTO collections(name,payload_json,updated_at) VALUES (?,?,?)
ON CONFLICT(name) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`,
		collection, string(payload), now)
	return err
}

// UpdatedAt reports when a collection was last written, or ErrNotFound.
func (m Mirror) UpdatedAt(ctx context.Context, collection string) (time.Time, error) {
	var ts string
	err := m.DB.QueryRowContext(ctx, `SELECT updated_at FROM collections WHERE name=?`, collection).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, ts)
}
