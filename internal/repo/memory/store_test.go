package memory

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/session"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *Store, username string, r role.Title) user.User {
	t.Helper()

	u := user.New(user.SignUpRequest{
		Email:    username + "@example.com",
		Username: username,
		Name:     username,
	}, "hash", r)

	created, err := s.Users.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func seedDoc(t *testing.T, s *Store, owner user.User, title string, r role.Title, createdAt time.Time) document.Document {
	t.Helper()

	d := document.NewFromCreateRequest(document.CreateRequest{Title: title, Role: string(r)}, owner.ID)
	d.CreatedAt = createdAt
	d.UpdatedAt = createdAt

	created, err := s.Documents.Create(context.Background(), d)
	require.NoError(t, err)
	return created
}

func TestUsersUniqueKeysAreCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedUser(t, s, "alice", role.User)

	dupEmail := user.New(user.SignUpRequest{Email: "ALICE@example.com", Username: "other"}, "h", role.User)
	_, err := s.Users.Create(ctx, dupEmail)
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	dupName := user.New(user.SignUpRequest{Email: "x@example.com", Username: "Alice"}, "h", role.User)
	_, err = s.Users.Create(ctx, dupName)
	assert.ErrorIs(t, err, user.ErrUsernameTaken)

	got, err := s.Users.GetByIdentifier(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestDocumentsListAppliesScopeAndFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice", role.User)
	bob := seedUser(t, s, "bob", role.User)

	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seedDoc(t, s, alice, "Alpha notes", role.Public, day)
	seedDoc(t, s, alice, "Beta plan", role.Private, day.Add(time.Hour))
	seedDoc(t, s, bob, "Gamma memo", role.User, day.AddDate(0, 0, 1))
	seedDoc(t, s, bob, "Bob secret", role.Private, day.AddDate(0, 0, 2))

	anon, total, err := s.Documents.List(ctx, document.ListFilter{Scope: document.ScopeFor(document.Viewer{}), Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Alpha notes", anon[0].Title)

	asAlice, total, err := s.Documents.List(ctx, document.ListFilter{
		Scope: document.ScopeFor(document.Viewer{UserID: alice.ID, Role: role.User}),
		Limit: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	// newest first
	assert.Equal(t, "Gamma memo", asAlice[0].Title)
	for _, d := range asAlice {
		assert.NotEqual(t, "Bob secret", d.Title)
	}

	from := day.Truncate(24 * time.Hour)
	before := from.AddDate(0, 0, 1)
	q := "PLAN"
	filtered, total, err := s.Documents.List(ctx, document.ListFilter{
		Scope:         document.Scope{All: true},
		CreatedFrom:   &from,
		CreatedBefore: &before,
		Query:         &q,
		Limit:         20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Beta plan", filtered[0].Title)

	paged, total, err := s.Documents.List(ctx, document.ListFilter{Scope: document.Scope{All: true}, Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, paged, 1)

	past, total, err := s.Documents.List(ctx, document.ListFilter{Scope: document.Scope{All: true}, Limit: 2, Offset: 100})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, past)
}

func TestDocumentsUpdateDetectsConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice", role.User)
	d := seedDoc(t, s, alice, "draft", role.Public, time.Now().UTC())

	stale := d.UpdatedAt
	next := d
	next.Title = "first"
	next.UpdatedAt = stale.Add(time.Second)

	_, err := s.Documents.Update(ctx, next, stale)
	require.NoError(t, err)

	next.Title = "second"
	_, err = s.Documents.Update(ctx, next, stale)
	assert.ErrorIs(t, err, document.ErrConflict)

	next.ID = "missing"
	_, err = s.Documents.Update(ctx, next, stale)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestDocumentsCreateRejectsDuplicateID(t *testing.T) {
	s := New()
	alice := seedUser(t, s, "alice", role.User)
	d := seedDoc(t, s, alice, "one", role.Public, time.Now().UTC())

	_, err := s.Documents.Create(context.Background(), d)
	assert.ErrorIs(t, err, document.ErrAlreadyExists)
}

func TestUserDeleteCascades(t *testing.T) {
	s := New()
	ctx := context.Background()

	alice := seedUser(t, s, "alice", role.User)
	d := seedDoc(t, s, alice, "one", role.Public, time.Now().UTC())
	require.NoError(t, s.RefreshTokens.Create(ctx, session.RefreshToken{ID: "t1", UserID: alice.ID}))

	require.NoError(t, s.Users.Delete(ctx, alice.ID))

	_, err := s.Documents.GetByID(ctx, d.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = s.RefreshTokens.Rotate(ctx, "t1", "", session.RefreshToken{ID: "t2", UserID: alice.ID})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRefreshRotateRevokesPrevious(t *testing.T) {
	s := New()
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.RefreshTokens.Create(ctx, session.RefreshToken{ID: "t1", UserID: "u1", TokenHash: "h1", ExpiresAt: exp}))

	_, err := s.RefreshTokens.Rotate(ctx, "t1", "wrong", session.RefreshToken{ID: "t2", UserID: "u1"})
	assert.ErrorIs(t, err, session.ErrMismatch)

	next, err := s.RefreshTokens.Rotate(ctx, "t1", "h1", session.RefreshToken{ID: "t2", UserID: "u1", TokenHash: "h2", ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, "t2", next.ID)

	_, err = s.RefreshTokens.Rotate(ctx, "t1", "h1", session.RefreshToken{ID: "t3", UserID: "u1"})
	assert.ErrorIs(t, err, session.ErrRevoked)
}
