// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the durable key-value snapshot store backing the
// entity stores.
//
// Values are stored in a single SQLite table and mirrored in memory. Reads
// are served from the mirror; writes go to the mirror first and then to
// SQLite best-effort, so a persistence failure never corrupts the in-memory
// state the rest of the client works from.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed is returned when the cache is used after Close.
	ErrClosed = errors.New("cache is closed")
)

// =============================================================================
// WELL-KNOWN KEYS
// =============================================================================

// Key constants for the shared key space. Entity snapshot keys are produced
// by SnapshotKey; each entity-type key is only written by its owning store.
const (
	KeyActiveServerID       = "active_server_id"
	KeyServerConfigs        = "server_configs"
	KeyAuthToken            = "auth_token"
	KeyReviewerMode         = "reviewer_mode"
	KeyTheme                = "theme"
	KeyLocale               = "locale"
	KeyCurrentUser          = "current_user"
	KeyCurrentUserAvatar    = "current_user_avatar"
	KeyUserSettings         = "user_settings"
	KeyResolvedDefaultModel = "resolved_default_model"
	KeyTransportOptions     = "transport_options"
	KeyBackendConfig        = "backend_config"
)

// SnapshotKey returns the cache key for an entity-type list snapshot.
func SnapshotKey(kind string) string {
	return "snapshot/" + kind
}

// =============================================================================
// CACHE
// =============================================================================

// Cache is the persistent key-value store with an in-memory mirror.
type Cache struct {
	mu     sync.RWMutex
	mirror map[string][]byte
	db     *sql.DB
	closed bool
}

// Open opens (or creates) the cache database at path and loads the mirror.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Single writer; WAL keeps readers unblocked during persist.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	c := &Cache{
		mirror: make(map[string][]byte),
		db:     db,
	}
	if err := c.loadMirror(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// loadMirror reads every row into the in-memory mirror so synchronous reads
// never touch the database.
func (c *Cache) loadMirror() error {
	rows, err := c.db.Query(`SELECT key, value FROM kv`)
	if err != nil {
		return fmt.Errorf("failed to load cache mirror: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan cache row: %w", err)
		}
		c.mirror[key] = value
	}
	return rows.Err()
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// =============================================================================
// RAW GET/SET
// =============================================================================

// GetSync returns the value for key from the in-memory mirror. It performs
// no I/O and no side effects.
func (c *Cache) GetSync(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.mirror[key]
	return v, ok
}

// Get returns the value for key. Equivalent to GetSync today; kept as the
// async-path accessor the stores call so the two read paths stay distinct.
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.GetSync(key)
}

// Set writes key=value to the mirror and persists it. Persistence failures
// are logged and swallowed; the mirror always reflects the write.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mirror[key] = value
	db := c.db
	c.mu.Unlock()

	if _, err := db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		log.Printf("cache: persist %s: %v", key, err)
	}
}

// Delete removes key from the mirror and the database.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.mirror, key)
	db := c.db
	c.mu.Unlock()

	if _, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		log.Printf("cache: delete %s: %v", key, err)
	}
}

// =============================================================================
// TYPED GET/SET
// =============================================================================

// GetJSON unmarshals the value for key into a T. The second return is false
// on a cache miss or an undecodable entry (logged, treated as a miss).
func GetJSON[T any](c *Cache, key string) (T, bool) {
	var out T
	data, ok := c.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("cache: decode %s: %v", key, err)
		return out, false
	}
	return out, true
}

// GetJSONSync is GetJSON over the synchronous mirror read path.
func GetJSONSync[T any](c *Cache, key string) (T, bool) {
	var out T
	data, ok := c.GetSync(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("cache: decode %s: %v", key, err)
		return out, false
	}
	return out, true
}

// SetJSON marshals v and stores it under key. Marshal failures are logged
// and the entry is left untouched.
func SetJSON[T any](c *Cache, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("cache: encode %s: %v", key, err)
		return
	}
	c.Set(key, data)
}

// GetString returns a plain string value for key.
func (c *Cache) GetString(key string) (string, bool) {
	data, ok := c.Get(key)
	if !ok {
		return "", false
	}
	return string(data), true
}

// SetString stores a plain string value under key.
func (c *Cache) SetString(key, value string) {
	c.Set(key, []byte(value))
}

// GetBool returns a boolean value for key (missing key reads as false).
func (c *Cache) GetBool(key string) bool {
	data, ok := c.Get(key)
	return ok && string(data) == "true"
}

// SetBool stores a boolean value under key.
func (c *Cache) SetBool(key string, value bool) {
	if value {
		c.Set(key, []byte("true"))
	} else {
		c.Set(key, []byte("false"))
	}
}
