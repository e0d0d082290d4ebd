// Package appdb provides the application store: registered users and
// their outstanding magic-link login tokens. It is separate from the
// uploaded databases users explore, which are opened read-only and
// never written.
package appdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

var (
	ErrTokenNotFound = errors.New("login token not found")
	ErrTokenExpired  = errors.New("login token expired")
	ErrTokenUsed     = errors.New("login token already used")
)

// Store is the application database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the application database at path
// and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create app database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open app database: %w", err)
	}
	// The pure-Go driver returns SQLITE_BUSY under concurrent writers;
	// a single pooled connection serializes access instead.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			last_login_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS login_tokens (
			token TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			used_at DATETIME
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create login_tokens table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_login_tokens_email ON login_tokens(email)",
		"CREATE INDEX IF NOT EXISTS idx_login_tokens_expires ON login_tokens(expires_at)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateLoginToken records a pending magic-link token for email.
func (s *Store) CreateLoginToken(ctx context.Context, token, email string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_tokens (token, email, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, token, normalizeEmail(email), time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store login token: %w", err)
	}
	return nil
}

// ConsumeLoginToken marks token used and returns the email it was
// issued for. A token can be consumed exactly once, and only before it
// expires.
func (s *Store) ConsumeLoginToken(ctx context.Context, token string, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	var email string
	var expiresAt time.Time
	var usedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT email, expires_at, used_at FROM login_tokens WHERE token = ?
	`, token).Scan(&email, &expiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up login token: %w", err)
	}
	if usedAt.Valid {
		return "", ErrTokenUsed
	}
	if now.After(expiresAt) {
		return "", ErrTokenExpired
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE login_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL
	`, now.UTC(), token); err != nil {
		return "", fmt.Errorf("failed to mark login token used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return email, nil
}

// UpsertUser creates the user on first login and bumps last_login_at on
// subsequent logins.
func (s *Store) UpsertUser(ctx context.Context, email string, now time.Time) (*models.User, error) {
	email = normalizeEmail(email)
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	user := &models.User{Email: email, LastLoginAt: now}
	err = tx.QueryRowContext(ctx, `
		SELECT id, created_at FROM users WHERE email = ?
	`, email).Scan(&user.ID, &user.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		user.ID = uuid.NewString()
		user.CreatedAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, created_at, last_login_at)
			VALUES (?, ?, ?, ?)
		`, user.ID, email, now, now); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET last_login_at = ? WHERE id = ?
		`, now, user.ID); err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

// PurgeExpiredTokens deletes tokens past their expiry, returning how
// many were removed.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM login_tokens WHERE expires_at < ?
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge login tokens: %w", err)
	}
	return res.RowsAffected()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
