package postgres

import (
	"context"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RolesRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewRolesRepo(pool *pgxpool.Pool, prom *observability.Prom) *RolesRepo {
	return &RolesRepo{observer: observer{prom: prom}, pool: pool}
}

func (r *RolesRepo) List(ctx context.Context) ([]role.Role, error) {
	out := make([]role.Role, 0, 4)

	err := r.observe("roles.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT id, title, access_level FROM roles ORDER BY access_level ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rr role.Role
			var title string
			if err := rows.Scan(&rr.ID, &title, &rr.AccessLevel); err != nil {
				return err
			}
			rr.Title = role.Title(title)
			out = append(out, rr)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}
