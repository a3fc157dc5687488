package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"intake_bot/internal/adminpanel"
	"intake_bot/internal/settings"
)

// TokenStore хранит токены админ-панели в Postgres.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore создает новый TokenStore.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Save(ctx context.Context, token adminpanel.Token) error {
	const query = `
		INSERT INTO admin_tokens (token, issued_to, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, token.Token, token.IssuedTo, token.CreatedAt, token.ExpiresAt)
	return err
}

func (s *TokenStore) Get(ctx context.Context, rawToken string) (adminpanel.Token, error) {
	const query = `
		SELECT token, issued_to, created_at, expires_at
		FROM admin_tokens
		WHERE token = $1
	`
	var token adminpanel.Token
	if err := s.db.QueryRowContext(ctx, query, rawToken).Scan(&token.Token, &token.IssuedTo, &token.CreatedAt, &token.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return adminpanel.Token{}, adminpanel.ErrTokenNotFound
		}
		return adminpanel.Token{}, err
	}
	return token, nil
}

func (s *TokenStore) Delete(ctx context.Context, rawToken string) error {
	const query = `DELETE FROM admin_tokens WHERE token = $1`
	_, err := s.db.ExecContext(ctx, query, rawToken)
	return err
}

func (s *TokenStore) PurgeExpired(ctx context.Context, now time.Time) error {
	const query = `DELETE FROM admin_tokens WHERE expires_at <= $1`
	_, err := s.db.ExecContext(ctx, query, now)
	return err
}

// SettingsStore хранит настройки бота в Postgres.
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore создает новый SettingsStore.
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM bot_settings WHERE key = $1`
	var value string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", settings.ErrSettingNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO bot_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value
	`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}
