package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/user"
)

type DocumentsRepo struct {
	s *state
}

func (r *DocumentsRepo) Create(ctx context.Context, d document.Document) (document.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[d.OwnerID]; !ok {
		return document.Document{}, user.ErrNotFound
	}

	if _, exists := r.s.docs[d.ID]; exists {
		return document.Document{}, document.ErrAlreadyExists
	}

	r.s.docs[d.ID] = d
	return d, nil
}

func (r *DocumentsRepo) GetByID(ctx context.Context, id string) (document.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.docs[id]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	return d, nil
}

func matches(filter document.ListFilter, d document.Document) bool {
	if !filter.Scope.Allows(d) {
		return false
	}
	if filter.OwnerID != nil && d.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.Role != nil && d.Role != *filter.Role {
		return false
	}
	if filter.CreatedFrom != nil && d.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedBefore != nil && !d.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	if filter.Query != nil && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(*filter.Query)) {
		return false
	}
	return true
}

func (r *DocumentsRepo) List(ctx context.Context, filter document.ListFilter) ([]document.Document, int, error) {
	r.s.mu.RLock()
	out := make([]document.Document, 0)
	for _, d := range r.s.docs {
		if matches(filter, d) {
			out = append(out, d)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return page(out, filter.Limit, filter.Offset), len(out), nil
}

func (r *DocumentsRepo) Update(ctx context.Context, d document.Document, expectedUpdatedAt time.Time) (document.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.docs[d.ID]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}

	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return document.Document{}, document.ErrConflict
	}

	// id, owner and creation time are immutable
	d.OwnerID = current.OwnerID
	d.CreatedAt = current.CreatedAt
	r.s.docs[d.ID] = d
	return d, nil
}

func (r *DocumentsRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.docs[id]; !ok {
		return document.ErrNotFound
	}

	delete(r.s.docs, id)
	return nil
}
