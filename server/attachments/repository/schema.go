package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"attach_server/server/attachments/registry"
)

const principalsDDL = `
CREATE TABLE IF NOT EXISTS principals(
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	perms TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the principals table and one attachment table per
// registered model. Intended for startup; real deployments may manage the
// same DDL through their own migration tooling.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, models []*registry.Model) error {
	if _, err := pool.Exec(ctx, principalsDDL); err != nil {
		return fmt.Errorf("ensure principals table: %w", err)
	}
	for _, model := range models {
		ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s(
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	thumbnail_key TEXT NOT NULL DEFAULT '',
	creator_id UUID NOT NULL REFERENCES principals(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, model.Table)
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure table %s: %w", model.Table, err)
		}
		index := fmt.Sprintf(`
CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s(owner_id, created_at DESC)
`, model.Table, model.Table)
		if _, err := pool.Exec(ctx, index); err != nil {
			return fmt.Errorf("ensure index on %s: %w", model.Table, err)
		}
	}
	return nil
}
