package memory

import (
	"context"

	"github.com/geocoder89/docman/internal/domain/role"
)

type RolesRepo struct{}

func (r *RolesRepo) List(ctx context.Context) ([]role.Role, error) {
	return role.All(), nil
}
