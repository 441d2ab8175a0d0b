package memory

import (
	"context"
	"time"

	"github.com/geocoder89/docman/internal/domain/session"
)

type RefreshTokensRepo struct {
	s *state
}

func (r *RefreshTokensRepo) Create(ctx context.Context, t session.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.sessions[t.ID] = t
	return nil
}

func (r *RefreshTokensRepo) Rotate(ctx context.Context, presentedID, presentedHash string, next session.RefreshToken) (session.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.sessions[presentedID]
	if !ok {
		return session.RefreshToken{}, session.ErrNotFound
	}

	now := time.Now().UTC()
	if err := current.Check(presentedHash, now); err != nil {
		return session.RefreshToken{}, err
	}

	if next.UserID != current.UserID {
		return session.RefreshToken{}, session.ErrMismatch
	}

	current.RevokedAt = &now
	current.ReplacedBy = &next.ID
	r.s.sessions[current.ID] = current
	r.s.sessions[next.ID] = next

	return next, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t, ok := r.s.sessions[id]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
		r.s.sessions[id] = t
	}
	return nil
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	for id, t := range r.s.sessions {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.s.sessions[id] = t
		}
	}
	return nil
}
