package user

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/google/uuid"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	Name         string     `json:"name"`
	Role         role.Title `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
)

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Username string `json:"username" binding:"required,username"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,min=1,max=120"`
}

type LoginRequest struct {
	// Identifier is either the email or the username.
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// nil fields are left untouched
type UpdateRequest struct {
	Email    *string `json:"email" binding:"omitempty,email,max=254"`
	Username *string `json:"username" binding:"omitempty,username"`
	Password *string `json:"password" binding:"omitempty,min=8,max=72"`
	Name     *string `json:"name" binding:"omitempty,min=1,max=120"`
	Role     *string `json:"role" binding:"omitempty,roletitle"`
}

type ListFilter struct {
	Limit  int
	Offset int
}

// New builds a user ready for insertion. Email and username are stored lower-cased.
func New(req SignUpRequest, passwordHash string, r role.Title) User {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(req.Email),
		Username:     NormalizeUsername(req.Username),
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         r,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
