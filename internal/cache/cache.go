// Package cache is the durable local fallback store: a key to JSON-blob
// table in the workspace database. It stands in for the browser's
// localStorage in the original system.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known cache keys.
const (
	KeyTasks     = "tasks"
	KeyOfficials = "officials"
	KeyWorkers   = "workers"
	KeySession   = "session"
)

var ErrNotFound = errors.New("cache entry not found")

type Cache struct {
	DB  *sql.DB
	Now func() time.Time
}

func (c Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Get unmarshals the blob stored under key into out. Returns ErrNotFound
// when the key is absent; a corrupt blob surfaces as the json error so
// callers can degrade to their seed data.
func (c Cache) Get(ctx context.Context, key string, out any) error {
	var payload string
	err := c.DB.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key=?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return nil
}

// Put serializes v and rewrites the blob under key.
func (c Cache) Put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	ts := c.now().UTC().Format(time.RFC3339)
	_, err = c.DB.ExecContext(ctx, `INSERT INTO cache_entries(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, string(payload), ts)
	return err
}

// Delete removes the entry under key. Missing keys are a no-op.
func (c Cache) Delete(ctx context.Context, key string) error {
	_, err := c.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key=?`, key)
	return err
}
