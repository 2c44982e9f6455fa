package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studysync/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

const (
	prefLastFullSync  = "last_full_sync"
	prefHasCachedData = "has_cached_data"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
// A bare file path gets WAL journaling, a busy timeout and immediate
// transactions so refreshes never interleave with concurrent readers.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// withTx runs fn inside a single transaction, committing only if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveSession stores the credential pair in one statement.
func (db *DB) SaveSession(ctx context.Context, token string, userID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO session (id, token, user_id, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			saved_at = excluded.saved_at
	`, token, userID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	return nil
}

// LoadSession returns the stored pair. ok is false when no session exists.
func (db *DB) LoadSession(ctx context.Context) (token string, userID int64, ok bool, err error) {
	row := db.conn.QueryRowContext(ctx, `SELECT token, user_id FROM session WHERE id = 1`)
	if err := row.Scan(&token, &userID); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("failed to load session: %w", err)
	}
	return token, userID, true, nil
}

// ClearSession removes the credential pair and purges the signed-out user's
// cached content and sync metadata. Unsynced events are kept.
func (db *DB) ClearSession(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var userID int64
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM session WHERE id = 1`).Scan(&userID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session`); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if err == nil {
			if err := purgeContent(ctx, tx, userID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE key IN (?, ?)`, prefLastFullSync, prefHasCachedData); err != nil {
			return fmt.Errorf("failed to reset sync metadata: %w", err)
		}
		return nil
	})
}

func purgeContent(ctx context.Context, tx *sql.Tx, userID int64) error {
	for _, table := range []string{"answers", "questions", "quizzes", "flashcards", "decks"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to purge %s for user %d: %w", table, userID, err)
		}
	}
	return nil
}

// SyncMetadata returns the persisted sync metadata, zero-valued if never set.
func (db *DB) SyncMetadata(ctx context.Context) (domain.SyncMetadata, error) {
	var meta domain.SyncMetadata
	rows, err := db.conn.QueryContext(ctx, `
		SELECT key, value FROM preferences WHERE key IN (?, ?)
	`, prefLastFullSync, prefHasCachedData)
	if err != nil {
		return meta, fmt.Errorf("failed to read sync metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, fmt.Errorf("failed to scan preference row: %w", err)
		}
		switch key {
		case prefLastFullSync:
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return meta, fmt.Errorf("failed to parse %s %q: %w", key, value, err)
			}
			if ms > 0 {
				meta.LastFullSync = time.UnixMilli(ms)
			}
		case prefHasCachedData:
			meta.HasCachedData = value == "true"
		}
	}
	return meta, rows.Err()
}

// RecordFullSync stores the time of a successful refresh and flags the cache
// as populated.
func (db *DB) RecordFullSync(ctx context.Context, at time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := setPreference(ctx, tx, prefLastFullSync, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
			return err
		}
		return setPreference(ctx, tx, prefHasCachedData, "true")
	})
}

func setPreference(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}
