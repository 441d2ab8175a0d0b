package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/docman/internal/domain/session"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefreshTokensRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{observer: observer{prom: prom}, pool: pool}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, t session.RefreshToken) error {
	return r.observe("refresh_tokens.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.RevokedAt, t.ReplacedBy, t.CreatedAt)
		return err
	})
}

// Rotate revokes the presented token and stores next in its place. The old
// row is locked so two concurrent refreshes cannot both succeed.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, presentedID, presentedHash string, next session.RefreshToken) (session.RefreshToken, error) {
	var current session.RefreshToken

	err := r.observe("refresh_tokens.rotate", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		err = tx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
			FROM refresh_tokens
			WHERE id = $1
			FOR UPDATE
		`, presentedID).Scan(
			&current.ID,
			&current.UserID,
			&current.TokenHash,
			&current.ExpiresAt,
			&current.RevokedAt,
			&current.ReplacedBy,
			&current.CreatedAt,
		)
		if err != nil {
			return err
		}

		if err := current.Check(presentedHash, time.Now().UTC()); err != nil {
			return err
		}

		if next.UserID != current.UserID {
			return session.ErrMismatch
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW(), replaced_by = $2
			WHERE id = $1
		`, current.ID, next.ID); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.RefreshToken{}, session.ErrNotFound
		}
		return session.RefreshToken{}, err
	}

	return next, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	return r.observe("refresh_tokens.revoke", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW()
			WHERE id = $1 AND revoked_at IS NULL
		`, id)
		return err
	})
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.observe("refresh_tokens.revoke_all", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW()
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID)
		return err
	})
}
