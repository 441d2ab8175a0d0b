package document

import (
	"slices"

	"github.com/geocoder89/docman/internal/domain/role"
)

// Viewer is whoever is asking. The zero value is an anonymous request.
type Viewer struct {
	UserID string
	Role   role.Title
}

func (v Viewer) Authenticated() bool {
	return v.UserID != ""
}

func (v Viewer) IsAdmin() bool {
	return v.Authenticated() && v.Role == role.Admin
}

// Scope describes the set of documents a viewer may read. Storage layers
// translate it into their own predicates.
type Scope struct {
	All     bool
	OwnerID string
	Roles   []role.Title
}

// ScopeFor computes visibility at read time from the viewer's role.
func ScopeFor(v Viewer) Scope {
	switch {
	case v.IsAdmin():
		return Scope{All: true}
	case v.Authenticated():
		return Scope{OwnerID: v.UserID, Roles: []role.Title{role.Public, role.User}}
	default:
		return Scope{Roles: []role.Title{role.Public}}
	}
}

func (s Scope) Allows(d Document) bool {
	if s.All {
		return true
	}
	if s.OwnerID != "" && d.OwnerID == s.OwnerID {
		return true
	}
	return slices.Contains(s.Roles, d.Role)
}

func CanView(v Viewer, d Document) bool {
	return ScopeFor(v).Allows(d)
}

// CanModify reports whether v may update or delete d.
func CanModify(v Viewer, d Document) bool {
	if !v.Authenticated() {
		return false
	}
	return v.IsAdmin() || d.OwnerID == v.UserID
}

// CanAssign reports whether v may tag a document with t. Only admins create
// admin documents.
func CanAssign(v Viewer, t role.Title) bool {
	if !v.Authenticated() || !t.Valid() {
		return false
	}
	if t == role.Admin {
		return v.IsAdmin()
	}
	return true
}
