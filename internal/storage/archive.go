// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a session has no archived turns.
	ErrSessionNotFound = errors.New("session not in archive")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("archive closed")
)

// =============================================================================
// TYPES
// =============================================================================

// SessionMeta summarizes one archived session.
type SessionMeta struct {
	ID        string
	Title     string
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TurnRecord is one archived exchange.
type TurnRecord struct {
	ID int64
	chat.Turn
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is a SQLite transcript archive. It implements chat.Archive and is
// safe for concurrent use.
type Archive struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ chat.Archive = (*Archive)(nil)

// Open opens or creates the archive at path. ":memory:" gives a private
// in-memory archive.
func Open(path string, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Archive{db: db, path: path, logger: logger.Named("archive")}, nil
}

// Path returns the database path.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveTurn records a completed exchange. The session row is created on first
// use and its title follows the latest turn.
func (a *Archive) SaveTurn(ctx context.Context, turn chat.Turn) error {
	if turn.SessionID == "" {
		return errors.New("turn has no session id")
	}
	started := turn.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	ended := started.Add(turn.Duration).UnixMilli()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return a.wrap("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE sessions.title END,
			updated_at = MAX(sessions.updated_at, excluded.updated_at)`,
		turn.SessionID, turn.SessionTitle, started.UnixMilli(), ended)
	if err != nil {
		return a.wrap("upsert session", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, user_text, assistant_text, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, turn.User, turn.Assistant, started.UnixMilli(), turn.Duration.Milliseconds())
	if err != nil {
		return a.wrap("insert turn", err)
	}

	if err := tx.Commit(); err != nil {
		return a.wrap("commit", err)
	}
	a.logger.Debug("turn archived", zap.String("session", turn.SessionID))
	return nil
}

// Sessions lists archived sessions, most recently updated first.
func (a *Archive) Sessions(ctx context.Context) ([]SessionMeta, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.created_at, s.updated_at, COUNT(t.id)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, a.wrap("list sessions", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Title, &created, &updated, &m.Turns); err != nil {
			return nil, a.wrap("scan session", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		out = append(out, m)
	}
	return out, a.wrap("list sessions", rows.Err())
}

// Turns returns the archived turns of a session in order.
func (a *Archive) Turns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	return a.queryTurns(ctx, `
		SELECT t.id, t.session_id, s.title, t.user_text, t.assistant_text, t.started_at, t.duration_ms
		FROM turns t JOIN sessions s ON s.id = t.session_id
		WHERE t.session_id = ?
		ORDER BY t.id`, sessionID)
}

// Messages returns a session's archived turns as alternating user and
// assistant messages, the same shape the backend's history endpoint returns.
func (a *Archive) Messages(ctx context.Context, sessionID string) ([]api.Message, error) {
	turns, err := a.Turns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	msgs := make([]api.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			api.Message{Content: t.User, Type: api.MessageUser},
			api.Message{Content: t.Assistant, Type: api.MessageAssistant})
	}
	return msgs, nil
}

// Search returns turns whose user or assistant text contains query,
// case-insensitively for ASCII, newest first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]TurnRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	return a.queryTurns(ctx, `
		SELECT t.id, t.session_id, s.title, t.user_text, t.assistant_text, t.started_at, t.duration_ms
		FROM turns t JOIN sessions s ON s.id = t.session_id
		WHERE t.user_text LIKE ? ESCAPE '\' OR t.assistant_text LIKE ? ESCAPE '\'
		ORDER BY t.id DESC
		LIMIT ?`, pattern, pattern, limit)
}

// DeleteSession removes a session and its turns. Unknown ids are not an
// error.
func (a *Archive) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return a.wrap("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return a.wrap("delete turns", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return a.wrap("delete session", err)
	}
	return a.wrap("commit", tx.Commit())
}

func (a *Archive) queryTurns(ctx context.Context, query string, args ...any) ([]TurnRecord, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, a.wrap("query turns", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var r TurnRecord
		var started, durMs int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SessionTitle, &r.User, &r.Assistant, &started, &durMs); err != nil {
			return nil, a.wrap("scan turn", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, a.wrap("query turns", rows.Err())
}

func (a *Archive) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("archive %s: %w", op, ErrClosed)
	}
	return fmt.Errorf("archive %s: %w", op, err)
}

// escapeLike escapes LIKE wildcards so query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
