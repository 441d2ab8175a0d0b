package session

import (
	"errors"
	"time"
)

// RefreshToken is the server-side record of an issued refresh token. Only the
// HMAC of the raw token is stored.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

var (
	ErrNotFound = errors.New("refresh token not found")
	ErrRevoked  = errors.New("refresh token revoked")
	ErrExpired  = errors.New("refresh token expired")
	ErrMismatch = errors.New("refresh token hash mismatch")
)

// Check validates a stored token against the presented hash at now.
func (t RefreshToken) Check(presentedHash string, now time.Time) error {
	if t.RevokedAt != nil {
		return ErrRevoked
	}
	if now.After(t.ExpiresAt) {
		return ErrExpired
	}
	if t.TokenHash != presentedHash {
		return ErrMismatch
	}
	return nil
}
