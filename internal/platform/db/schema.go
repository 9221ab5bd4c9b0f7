package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the tables owned by the authority. The albums, pages and
// news_categories tables belong to the gallery; they are created here only
// so a standalone database resolves managed object references.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS options (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS administrators (
		id          BIGSERIAL PRIMARY KEY,
		"user"      TEXT NOT NULL,
		pass        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		rights      BIGINT NOT NULL DEFAULT 0,
		valid       BOOLEAN NOT NULL DEFAULT TRUE,
		"group"     TEXT,
		custom_data TEXT NOT NULL DEFAULT ''
	)`,
	// Users (valid) and groups (not valid) are separate namespaces.
	`CREATE UNIQUE INDEX IF NOT EXISTS administrators_user_valid ON administrators ("user", valid)`,
	`CREATE INDEX IF NOT EXISTS administrators_pass ON administrators (pass)`,
	`CREATE TABLE IF NOT EXISTS albums (id BIGSERIAL PRIMARY KEY, folder TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE IF NOT EXISTS pages (id BIGSERIAL PRIMARY KEY, titlelink TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE IF NOT EXISTS news_categories (id BIGSERIAL PRIMARY KEY, titlelink TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE IF NOT EXISTS admin_to_object (
		id       BIGSERIAL PRIMARY KEY,
		adminid  BIGINT NOT NULL REFERENCES administrators (id) ON DELETE CASCADE,
		objectid BIGINT NOT NULL,
		type     TEXT NOT NULL,
		edit     INTEGER NOT NULL DEFAULT 32767
	)`,
	`CREATE INDEX IF NOT EXISTS admin_to_object_adminid ON admin_to_object (adminid)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		actor_id    BIGINT,
		action      TEXT NOT NULL,
		entity      TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		meta        JSONB NOT NULL DEFAULT '{}'::jsonb,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// schemaLock serialises EnsureSchema between the server and the worker.
const schemaLock = 7_310_221

// EnsureSchema creates missing tables in one transaction holding an
// advisory lock.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", schemaLock); err != nil {
		return fmt.Errorf("platform/db: schema lock: %w", err)
	}
	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: ensure schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
