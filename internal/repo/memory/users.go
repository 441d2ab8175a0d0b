package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/geocoder89/docman/internal/domain/user"
)

type UsersRepo struct {
	s *state
}

// conflict reports which unique key of u is already held by another user.
func (r *UsersRepo) conflict(u user.User) error {
	for _, other := range r.s.users {
		if other.ID == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return user.ErrEmailTaken
		}
		if strings.EqualFold(other.Username, u.Username) {
			return user.ErrUsernameTaken
		}
	}
	return nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.conflict(u); err != nil {
		return user.User{}, err
	}

	r.s.users[u.ID] = u
	return u, nil
}

func (r *UsersRepo) find(match func(user.User) bool) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if match(u) {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *UsersRepo) GetByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	return r.find(func(u user.User) bool {
		return strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier)
	})
}

func (r *UsersRepo) List(ctx context.Context, filter user.ListFilter) ([]user.User, int, error) {
	r.s.mu.RLock()
	all := make([]user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		all = append(all, u)
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	return page(all, filter.Limit, filter.Offset), len(all), nil
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}

	if err := r.conflict(u); err != nil {
		return user.User{}, err
	}

	r.s.users[u.ID] = u
	return u, nil
}

// Delete removes the user together with their documents and sessions.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return user.ErrNotFound
	}

	delete(r.s.users, id)

	for docID, d := range r.s.docs {
		if d.OwnerID == id {
			delete(r.s.docs, docID)
		}
	}

	for tokenID, t := range r.s.sessions {
		if t.UserID == id {
			delete(r.s.sessions, tokenID)
		}
	}

	return nil
}
