// Package options persists installation wide settings such as the
// password salt and the rights schema version.
package options

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Keys read and written by the authority.
const (
	KeySalt          = "extra_auth_hash_text"
	KeyMinLength     = "min_password_length"
	KeyPattern       = "password_pattern"
	KeyRightsVersion = "libauth_version"
	KeyResetDate     = "admin_reset_date"
)

// Store reads and writes options. Get returns "" for unset keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetDefault stores value only when key has never been set.
	SetDefault(ctx context.Context, key, value string) error
}

// Int parses an integer option, returning fallback when unset or malformed.
func Int(ctx context.Context, s Store, key string, fallback int) (int, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// Repository implements Store using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one option value.
func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM options WHERE name = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("options: get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value, replacing any previous one.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO options (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("options: set %s: %w", key, err)
	}
	return nil
}

// SetDefault stores value unless key already exists.
func (r *Repository) SetDefault(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO options (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`, key, value)
	if err != nil {
		return fmt.Errorf("options: set default %s: %w", key, err)
	}
	return nil
}

var _ Store = (*Repository)(nil)
