package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/friendchat/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers; WAL still lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		auto_title INTEGER NOT NULL DEFAULT 0,
		messages_json TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `id, title, auto_title, messages_json, profile_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var messagesJSON, profileJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&session.ID, &session.Title, &session.AutoTitle,
		&messagesJSON, &profileJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", session.ID, err)
	}
	if err := json.Unmarshal([]byte(profileJSON), &session.Profile); err != nil {
		return nil, fmt.Errorf("decode profile for %s: %w", session.ID, err)
	}
	if session.Messages == nil {
		session.Messages = []domain.Message{}
	}
	session.CreatedAt = time.UnixMilli(createdAt)
	session.LastUpdated = time.UnixMilli(updatedAt)

	return &session, nil
}

// ListSessions returns every stored session, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSession(ctx context.Context, db execer, session *domain.Session) error {
	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		auto_title = excluded.auto_title,
		messages_json = excluded.messages_json,
		profile_json = excluded.profile_json,
		updated_at = excluded.updated_at`

	messages := make([]domain.Message, len(session.Messages))
	for i, m := range session.Messages {
		messages[i] = m.Persistable()
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	profileJSON, err := json.Marshal(session.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = session.LastUpdated
	}

	_, err = db.ExecContext(ctx, query,
		session.ID, session.Title, session.AutoTitle,
		string(messagesJSON), string(profileJSON),
		createdAt.UnixMilli(), session.LastUpdated.UnixMilli(),
	)
	return err
}

// UpsertSession creates or fully rewrites a session record.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	return withRetry(ctx, "upsert session", func() error {
		return upsertSession(ctx, s.db, session)
	})
}

// UpsertSessions rewrites all given sessions in one transaction.
func (s *SQLiteStore) UpsertSessions(ctx context.Context, sessions []*domain.Session) error {
	return withRetry(ctx, "upsert sessions", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		for _, session := range sessions {
			if err := upsertSession(ctx, tx, session); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("session %s: %w", session.ID, err)
			}
		}
		return tx.Commit()
	})
}

// DeleteSession removes a session record.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return withRetry(ctx, "delete session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return err
	})
}

// DeleteAllSessions removes every session record.
func (s *SQLiteStore) DeleteAllSessions(ctx context.Context) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "delete all sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// GetProfile reads the flat profile record.
func (s *SQLiteStore) GetProfile(ctx context.Context) (*domain.Profile, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, ProfileKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(value), &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile writes the flat profile record.
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	value, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "save profile", func() error {
		_, err := s.db.ExecContext(ctx, query, ProfileKey, string(value), time.Now().UnixMilli())
		return err
	})
}
