package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/docman/internal/actorctx"
	"github.com/geocoder89/docman/internal/auth"
	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/gin-gonic/gin"
)

const accessTokenHeader = "x-access-token"

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// tokenFrom reads x-access-token first, then a Bearer header, then the token
// query parameter when allowQuery is set (browsers cannot put headers on a
// WebSocket handshake).
func tokenFrom(c *gin.Context, allowQuery bool) string {
	if raw := strings.TrimSpace(c.GetHeader(accessTokenHeader)); raw != "" {
		return raw
	}

	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	if allowQuery {
		return strings.TrimSpace(c.Query("token"))
	}

	return ""
}

// authenticate resolves the caller. ok is false when a token was presented
// but did not verify; the request has then already been aborted.
func (m *AuthMiddleware) authenticate(c *gin.Context, allowQuery bool) (present bool, ok bool) {
	raw := tokenFrom(c, allowQuery)
	if raw == "" {
		return false, true
	}

	claims, err := m.jwt.VerifyAccessToken(raw)
	if err != nil {
		abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
		return true, false
	}

	r, err := role.Parse(claims.Role)
	if err != nil || claims.UserID() == "" {
		abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
		return true, false
	}

	c.Set(ctxViewerKey, document.Viewer{UserID: claims.UserID(), Role: r})
	c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID()))

	return true, true
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		present, ok := m.authenticate(c, false)
		if !ok {
			return
		}
		if !present {
			abort(c, http.StatusUnauthorized, "unauthorized", "Missing access token")
			return
		}
		c.Next()
	}
}

// OptionalAuth lets anonymous requests through. A token that is present but
// invalid is still rejected.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c, false); !ok {
			return
		}
		c.Next()
	}
}

// SocketAuth is OptionalAuth that also accepts ?token=.
func (m *AuthMiddleware) SocketAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c, true); !ok {
			return
		}
		c.Next()
	}
}

// ViewerFromContext returns the caller, or the anonymous Viewer.
func ViewerFromContext(c *gin.Context) document.Viewer {
	v, ok := c.Get(ctxViewerKey)
	if !ok {
		return document.Viewer{}
	}
	viewer, _ := v.(document.Viewer)
	return viewer
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	v := ViewerFromContext(c)
	return v.UserID, v.Authenticated()
}
