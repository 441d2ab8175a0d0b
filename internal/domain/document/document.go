package document

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/google/uuid"
)

type Document struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	OwnerID   string     `json:"ownerId"`
	Role      role.Title `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict means the row changed since the caller read it.
	ErrConflict = errors.New("document was modified concurrently")
)

type CreateRequest struct {
	// ID lets a client pick the id of its optimistic placeholder.
	ID      string `json:"id" binding:"omitempty,uuid"`
	Title   string `json:"title" binding:"required,min=1,max=200"`
	Content string `json:"content" binding:"max=100000"`
	Role    string `json:"role" binding:"omitempty,roletitle"`
}

// nil fields are left untouched
type UpdateRequest struct {
	Title   *string `json:"title" binding:"omitempty,min=1,max=200"`
	Content *string `json:"content" binding:"omitempty,max=100000"`
	Role    *string `json:"role" binding:"omitempty,roletitle"`
}

// with pointers if optional, it will be nil
type ListFilter struct {
	Scope         Scope
	OwnerID       *string
	Role          *role.Title
	CreatedFrom   *time.Time // inclusive
	CreatedBefore *time.Time // exclusive
	Query         *string
	Limit         int
	Offset        int
}

// NewFromCreateRequest builds the document a create request describes. An empty
// role defaults to public.
func NewFromCreateRequest(req CreateRequest, ownerID string) Document {
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	r := role.Public
	if parsed, err := role.Parse(req.Role); err == nil {
		r = parsed
	}

	return Document{
		ID:        id,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		OwnerID:   ownerID,
		Role:      r,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply returns a copy of d with the non-nil fields of req applied. Role values
// are expected to be validated already.
func (d Document) Apply(req UpdateRequest) Document {
	out := d
	if req.Title != nil {
		out.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		out.Content = *req.Content
	}
	if req.Role != nil {
		if r, err := role.Parse(*req.Role); err == nil {
			out.Role = r
		}
	}
	return out
}
