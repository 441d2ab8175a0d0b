package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/docman/internal/cache"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/gin-gonic/gin"
)

const rolesCacheKey = "roles:all"

type RoleLister interface {
	List(ctx context.Context) ([]role.Role, error)
}

type RolesHandler struct {
	roles RoleLister
	cache *cache.Cache[[]role.Role]
}

func NewRolesHandler(roles RoleLister, c *cache.Cache[[]role.Role]) *RolesHandler {
	return &RolesHandler{roles: roles, cache: c}
}

// GET /api/roles
func (h *RolesHandler) ListRoles(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, err := h.cache.GetOrLoad(cctx, rolesCacheKey, h.roles.List)
	if err != nil {
		RespondInternal(ctx, "Could not list roles")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, items)
}
