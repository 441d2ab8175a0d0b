package db

import (
	"context"
	"errors"

	"github.com/geocoder89/docman/internal/config"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/security"
)

type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

// EnsureAdminUser creates the configured admin account once. Missing admin
// credentials disable seeding.
func EnsureAdminUser(ctx context.Context, users AdminStore, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	// check if the user exists
	_, err := users.GetByEmail(ctx, user.NormalizeEmail(cfg.AdminEmail))

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	u := user.New(user.SignUpRequest{
		Email:    cfg.AdminEmail,
		Username: cfg.AdminUsername,
		Name:     cfg.AdminName,
	}, hash, role.Admin)

	_, err = users.Create(ctx, u)

	if errors.Is(err, user.ErrEmailTaken) {
		return nil
	}

	return err
}
