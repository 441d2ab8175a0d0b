package db

import (
	"context"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureRoles upserts the four fixed role rows.
func EnsureRoles(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}

	for _, r := range role.All() {
		batch.Queue(`
			INSERT INTO roles (id, title, access_level)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE
			SET title = EXCLUDED.title, access_level = EXCLUDED.access_level
		`, r.ID, string(r.Title), r.AccessLevel)
	}

	return pool.SendBatch(ctx, batch).Close()
}
