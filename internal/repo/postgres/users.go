package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `u.id, u.email, u.username, u.password_hash, u.name, r.title, u.created_at, u.updated_at`

type UsersRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{observer: observer{prom: prom}, pool: pool}
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var title string

	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &title, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}

	u.Role = role.Title(title)
	return u, nil
}

func mapUserWriteErr(err error) error {
	if name, ok := pgConstraint(err, codeUniqueViolation); ok {
		switch name {
		case "users_email_uniq":
			return user.ErrEmailTaken
		case "users_username_uniq":
			return user.ErrUsernameTaken
		}
	}
	return err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx, `
			INSERT INTO users (id, email, username, password_hash, name, role_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, (SELECT id FROM roles WHERE title = $6), $7, $8)
		`, u.ID, u.Email, u.Username, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt, u.UpdatedAt)
		return e
	})

	if err != nil {
		return user.User{}, mapUserWriteErr(err)
	}
	return u, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE `+where, arg))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `u.id = $1`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `lower(u.email) = lower($1)`, email)
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", `lower(u.username) = lower($1)`, username)
}

// GetByIdentifier matches either the email or the username.
func (r *UsersRepo) GetByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_identifier", `lower(u.email) = lower($1) OR lower(u.username) = lower($1)`, identifier)
}

func (r *UsersRepo) List(ctx context.Context, filter user.ListFilter) ([]user.User, int, error) {
	output := make([]user.User, 0, filter.Limit)
	total := 0

	err := r.observe("users.list", func() error {
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
			return err
		}

		rows, err := r.pool.Query(ctx, `
			SELECT `+userColumns+`
			FROM users u JOIN roles r ON r.id = u.role_id
			ORDER BY u.created_at DESC, u.id DESC
			LIMIT $1 OFFSET $2
		`, filter.Limit, filter.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u user.User
			var title string
			if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &title, &u.CreatedAt, &u.UpdatedAt); err != nil {
				return err
			}
			u.Role = role.Title(title)
			output = append(output, u)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}
	return output, total, nil
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	var out user.User

	err := r.observe("users.update", func() error {
		var e error
		out, e = scanUser(r.pool.QueryRow(ctx, `
			WITH updated AS (
				UPDATE users
				SET email = $2,
					username = $3,
					password_hash = $4,
					name = $5,
					role_id = (SELECT id FROM roles WHERE title = $6),
					updated_at = $7
				WHERE id = $1
				RETURNING *
			)
			SELECT `+userColumns+` FROM updated u JOIN roles r ON r.id = u.role_id
		`, u.ID, u.Email, u.Username, u.PasswordHash, u.Name, string(u.Role), u.UpdatedAt))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, mapUserWriteErr(err)
	}
	return out, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("users.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return e
	})

	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if affected == 0 {
		return user.ErrNotFound
	}
	return nil
}
