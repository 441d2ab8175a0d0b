package memory

import (
	"sync"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/session"
	"github.com/geocoder89/docman/internal/domain/user"
)

// Store keeps every table in process memory. The repos share one lock so a
// user delete can cascade to documents and sessions the way the database does.
type Store struct {
	Users         *UsersRepo
	Documents     *DocumentsRepo
	Roles         *RolesRepo
	RefreshTokens *RefreshTokensRepo
}

type state struct {
	mu       sync.RWMutex
	users    map[string]user.User
	docs     map[string]document.Document
	sessions map[string]session.RefreshToken
}

func New() *Store {
	s := &state{
		users:    make(map[string]user.User),
		docs:     make(map[string]document.Document),
		sessions: make(map[string]session.RefreshToken),
	}

	return &Store{
		Users:         &UsersRepo{s: s},
		Documents:     &DocumentsRepo{s: s},
		Roles:         &RolesRepo{},
		RefreshTokens: &RefreshTokensRepo{s: s},
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
