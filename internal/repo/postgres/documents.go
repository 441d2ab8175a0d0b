package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `d.id, d.title, d.content, d.owner_id, r.title, d.created_at, d.updated_at`

type DocumentsRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewDocumentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *DocumentsRepo {
	return &DocumentsRepo{observer: observer{prom: prom}, pool: pool}
}

func scanDocument(row pgx.Row) (document.Document, error) {
	var d document.Document
	var title string

	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.OwnerID, &title, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return document.Document{}, err
	}

	d.Role = role.Title(title)
	return d, nil
}

func (r *DocumentsRepo) Create(ctx context.Context, d document.Document) (document.Document, error) {
	err := r.observe("documents.create", func() error {
		_, e := r.pool.Exec(ctx, `
			INSERT INTO documents (id, title, content, owner_id, role_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, (SELECT id FROM roles WHERE title = $5), $6, $7)
		`, d.ID, d.Title, d.Content, d.OwnerID, string(d.Role), d.CreatedAt, d.UpdatedAt)
		return e
	})

	if err != nil {
		if _, ok := pgConstraint(err, codeUniqueViolation); ok {
			return document.Document{}, document.ErrAlreadyExists
		}
		if name, ok := pgConstraint(err, codeForeignKeyViolation); ok && name == "documents_owner_id_fkey" {
			return document.Document{}, user.ErrNotFound
		}
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}

	return d, nil
}

func (r *DocumentsRepo) GetByID(ctx context.Context, id string) (document.Document, error) {
	var d document.Document

	err := r.observe("documents.get_by_id", func() error {
		var e error
		d, e = scanDocument(r.pool.QueryRow(ctx,
			`SELECT `+documentColumns+` FROM documents d JOIN roles r ON r.id = d.role_id WHERE d.id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return document.Document{}, document.ErrNotFound
		}
		return document.Document{}, err
	}

	return d, nil
}

// List applies the visibility scope first, then the caller's filters.
func (r *DocumentsRepo) List(ctx context.Context, filter document.ListFilter) ([]document.Document, int, error) {
	const from = `
		FROM documents d
		JOIN roles r ON r.id = d.role_id
	`

	var conds []string
	var args []any

	argsPosition := 1

	if !filter.Scope.All {
		titles := make([]string, 0, len(filter.Scope.Roles))
		for _, t := range filter.Scope.Roles {
			titles = append(titles, string(t))
		}

		if filter.Scope.OwnerID != "" {
			conds = append(conds, fmt.Sprintf("(d.owner_id = $%d OR r.title = ANY($%d))", argsPosition, argsPosition+1))
			args = append(args, filter.Scope.OwnerID, titles)
			argsPosition += 2
		} else {
			conds = append(conds, fmt.Sprintf("r.title = ANY($%d)", argsPosition))
			args = append(args, titles)
			argsPosition++
		}
	}

	if filter.OwnerID != nil {
		conds = append(conds, fmt.Sprintf("d.owner_id = $%d", argsPosition))
		args = append(args, *filter.OwnerID)
		argsPosition++
	}

	if filter.Role != nil {
		conds = append(conds, fmt.Sprintf("r.title = $%d", argsPosition))
		args = append(args, string(*filter.Role))
		argsPosition++
	}

	if filter.CreatedFrom != nil {
		conds = append(conds, fmt.Sprintf("d.created_at >= $%d", argsPosition))
		args = append(args, *filter.CreatedFrom)
		argsPosition++
	}

	if filter.CreatedBefore != nil {
		conds = append(conds, fmt.Sprintf("d.created_at < $%d", argsPosition))
		args = append(args, *filter.CreatedBefore)
		argsPosition++
	}

	if filter.Query != nil {
		conds = append(conds, fmt.Sprintf(`d.title ILIKE $%d ESCAPE '\'`, argsPosition))
		args = append(args, "%"+escapeLike(*filter.Query)+"%")
		argsPosition++
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	// the total is counted on its own so a page past the end still reports it
	countQuery := `SELECT COUNT(*)` + from + where

	// stable ordering for pagination
	query := `SELECT ` + documentColumns + from + where +
		fmt.Sprintf(" ORDER BY d.created_at DESC, d.id DESC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)
	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)

	output := make([]document.Document, 0, filter.Limit)
	total := 0

	err := r.observe("documents.list", func() error {
		if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
			return err
		}
		if total == 0 {
			return nil
		}

		rows, err := r.pool.Query(ctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDocument(rows)
			if err != nil {
				return err
			}
			output = append(output, d)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

// Update writes d only if the stored row still carries expectedUpdatedAt.
func (r *DocumentsRepo) Update(ctx context.Context, d document.Document, expectedUpdatedAt time.Time) (document.Document, error) {
	var out document.Document

	err := r.observe("documents.update", func() error {
		var e error
		out, e = scanDocument(r.pool.QueryRow(ctx, `
			WITH updated AS (
				UPDATE documents
				SET title = $2,
					content = $3,
					role_id = (SELECT id FROM roles WHERE title = $4),
					updated_at = $5
				WHERE id = $1 AND updated_at = $6
				RETURNING *
			)
			SELECT `+documentColumns+` FROM updated d JOIN roles r ON r.id = d.role_id
		`, d.ID, d.Title, d.Content, string(d.Role), d.UpdatedAt, expectedUpdatedAt))
		return e
	})

	if err == nil {
		return out, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, err
	}

	// nothing matched: either the row is gone or someone else wrote first
	if _, getErr := r.GetByID(ctx, d.ID); getErr != nil {
		return document.Document{}, getErr
	}

	return document.Document{}, document.ErrConflict
}

func (r *DocumentsRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("documents.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return e
	})

	if err != nil {
		return err
	}

	if affected == 0 {
		return document.ErrNotFound
	}

	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
