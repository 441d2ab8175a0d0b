package middlewares

import (
	"net/http"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/gin-gonic/gin"
)

// RequireRole admits callers whose access level is at least min. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRole(min role.Title) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := ViewerFromContext(c)

		if !v.Authenticated() {
			abort(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}

		if !v.Role.AtLeast(min) {
			abort(c, http.StatusForbidden, "forbidden", string(min)+" role required")
			return
		}

		c.Next()
	}
}
