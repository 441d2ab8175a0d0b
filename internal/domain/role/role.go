package role

import (
	"errors"
	"strings"
)

// Title names an access tier. Users and documents both carry one.
type Title string

const (
	Public  Title = "public"
	User    Title = "user"
	Private Title = "private"
	Admin   Title = "admin"
)

var ErrUnknown = errors.New("unknown role")

// Role is one of the four seeded rows.
type Role struct {
	ID          int   `json:"id"`
	Title       Title `json:"title"`
	AccessLevel int   `json:"accessLevel"`
}

var titles = []Title{Public, User, Private, Admin}

// All returns the seed rows in rank order.
func All() []Role {
	out := make([]Role, 0, len(titles))
	for i, t := range titles {
		out = append(out, Role{ID: i + 1, Title: t, AccessLevel: t.AccessLevel()})
	}
	return out
}

func Parse(s string) (Title, error) {
	t := Title(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrUnknown
	}
	return t, nil
}

func (t Title) Valid() bool {
	return t.AccessLevel() >= 0
}

// AccessLevel is the numeric rank of the title, or -1 when unknown.
func (t Title) AccessLevel() int {
	switch t {
	case Public:
		return 0
	case User:
		return 1
	case Private:
		return 2
	case Admin:
		return 3
	default:
		return -1
	}
}

func (t Title) AtLeast(other Title) bool {
	return t.Valid() && t.AccessLevel() >= other.AccessLevel()
}

func (t Title) String() string {
	return string(t)
}
