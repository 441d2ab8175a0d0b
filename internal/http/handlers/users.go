package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/docman/internal/auth"
	"github.com/geocoder89/docman/internal/config"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/session"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/http/middlewares"
	"github.com/geocoder89/docman/internal/security"
	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/users"
)

type UserStore interface {
	UserLookup
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (user.User, error)
	List(ctx context.Context, filter user.ListFilter) ([]user.User, int, error)
	Update(ctx context.Context, u user.User) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, t session.RefreshToken) error
	Rotate(ctx context.Context, presentedID, presentedHash string, next session.RefreshToken) (session.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// LiveConnections carries account changes to realtime connections that are
// already open, since those were authorized once at connect.
type LiveConnections interface {
	Reauthorize(ctx context.Context, userID string, r role.Title)
	DisconnectUser(ctx context.Context, userID string)
}

type UsersHandler struct {
	users    UserStore
	sessions SessionStore
	live     LiveConnections
	jwt      *auth.Manager
	cfg      config.Config
	log      *slog.Logger
}

// live may be nil when no realtime hub runs.
func NewUsersHandler(users UserStore, sessions SessionStore, live LiveConnections, jwtManager *auth.Manager, cfg config.Config, log *slog.Logger) *UsersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UsersHandler{
		users:    users,
		sessions: sessions,
		live:     live,
		jwt:      jwtManager,
		cfg:      cfg,
		log:      log,
	}
}

func respondUserWriteErr(ctx *gin.Context, err error, log *slog.Logger, fallback string) {
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		RespondDuplicate(ctx, "email", "Email is already in use")
	case errors.Is(err, user.ErrUsernameTaken):
		RespondDuplicate(ctx, "username", "Username is already taken")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	default:
		log.ErrorContext(ctx.Request.Context(), "users.write_failed", "err", err)
		RespondInternal(ctx, fallback)
	}
}

// POST /api/users
func (h *UsersHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest
	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	// new accounts always start as plain users
	u, err := h.users.Create(cctx, user.New(req, hash, role.User))
	if err != nil {
		respondUserWriteErr(ctx, err, h.log, "Could not create user")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "users.signed_up", "user_id", u.ID)
	h.startSession(ctx, cctx, u, http.StatusCreated)
}

// POST /api/users/login
func (h *UsersHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	found, err := h.users.GetByIdentifier(cctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(ctx.Request.Context(), "users.login_lookup_failed", "err", err)
		}
		RespondUnauthorized(ctx, "invalid_credentials", "Email, username or password is incorrect")
		return
	}

	if err := security.CheckPassword(found.PasswordHash, req.Password); err != nil {
		RespondUnauthorized(ctx, "invalid_credentials", "Email, username or password is incorrect")
		return
	}

	h.startSession(ctx, cctx, found, http.StatusOK)
}

// startSession issues an access token and a stored refresh token for u.
func (h *UsersHandler) startSession(ctx *gin.Context, cctx context.Context, u user.User, status int) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	raw, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return
	}

	err = h.sessions.Create(cctx, session.RefreshToken{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "users.session_create_failed", "err", err)
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setRefreshCookie(ctx, raw, expiresAt)

	ctx.JSON(status, gin.H{
		"token": accessToken,
		"user":  u,
	})
}

// POST /api/users/refresh
func (h *UsersHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		RespondUnauthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	// reload so a role change takes effect on the next access token
	u, err := h.users.GetByID(cctx, claims.UserID())
	if err != nil {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	_, err = h.sessions.Rotate(cctx, claims.JTI(), h.jwt.HashRefreshToken(raw), session.RefreshToken{
		ID:        newJTI,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrExpired):
			RespondUnauthorized(ctx, "expired_refresh", "Refresh token expired")
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrRevoked), errors.Is(err, session.ErrMismatch):
			RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "users.refresh_failed", "err", err)
			RespondInternal(ctx, "Could not refresh session")
		}
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"token": accessToken,
		"user":  u,
	})
}

// POST /api/users/logout
func (h *UsersHandler) Logout(ctx *gin.Context) {
	defer func() {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
	}()

	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	// revoke that one token (idempotent)
	if err := h.sessions.Revoke(cctx, claims.JTI()); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "users.logout_revoke_failed", "err", err)
	}
}

// GET /api/users
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	limit, offset, fields := parsePagination(ctx)
	if len(fields) > 0 {
		RespondBadRequest(ctx, "Invalid query parameters", gin.H{"fields": fields})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, total, err := h.users.List(cctx, user.ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "users.list_failed", "err", err)
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  len(items),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *UsersHandler) loadTarget(ctx *gin.Context, cctx context.Context) (user.User, bool) {
	u, err := lookupUser(cctx, h.users, ctx.Param("user"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return user.User{}, false
		}
		h.log.ErrorContext(ctx.Request.Context(), "users.get_failed", "err", err)
		RespondInternal(ctx, "Could not load user")
		return user.User{}, false
	}
	return u, true
}

// GET /api/users/:user
func (h *UsersHandler) GetUser(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	u, ok := h.loadTarget(ctx, cctx)
	if !ok {
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u)
}

// PUT /api/users/:user
func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	var req user.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	target, ok := h.loadTarget(ctx, cctx)
	if !ok {
		return
	}

	viewer := middlewares.ViewerFromContext(ctx)
	if !viewer.IsAdmin() && viewer.UserID != target.ID {
		RespondForbidden(ctx, "You can only edit your own account")
		return
	}

	next := target
	if req.Role != nil {
		if !viewer.IsAdmin() {
			RespondForbidden(ctx, "Only admins can change roles")
			return
		}
		r, _ := role.Parse(*req.Role)
		next.Role = r
	}
	if req.Email != nil {
		next.Email = user.NormalizeEmail(*req.Email)
	}
	if req.Username != nil {
		next.Username = user.NormalizeUsername(*req.Username)
	}
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			RespondInternal(ctx, "Could not update user")
			return
		}
		next.PasswordHash = hash
	}
	next.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	updated, err := h.users.Update(cctx, next)
	if err != nil {
		respondUserWriteErr(ctx, err, h.log, "Could not update user")
		return
	}

	// a new password or role ends the sessions minted under the old one
	if req.Password != nil || updated.Role != target.Role {
		if err := h.sessions.RevokeAllForUser(cctx, updated.ID); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "users.revoke_sessions_failed", "user_id", updated.ID, "err", err)
		}
	}
	if updated.Role != target.Role && h.live != nil {
		h.live.Reauthorize(ctx.Request.Context(), updated.ID, updated.Role)
	}

	ctx.JSON(http.StatusOK, updated)
}

// DELETE /api/users/:user
func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	target, ok := h.loadTarget(ctx, cctx)
	if !ok {
		return
	}

	viewer := middlewares.ViewerFromContext(ctx)
	if !viewer.IsAdmin() && viewer.UserID != target.ID {
		RespondForbidden(ctx, "You can only delete your own account")
		return
	}

	if err := h.users.Delete(cctx, target.ID); err != nil {
		respondUserWriteErr(ctx, err, h.log, "Could not delete user")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "users.deleted", "target_id", target.ID)
	if h.live != nil {
		h.live.DisconnectUser(ctx.Request.Context(), target.ID)
	}

	if viewer.UserID == target.ID {
		h.clearRefreshCookie(ctx)
	}
	ctx.Status(http.StatusNoContent)
}

func (h *UsersHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, maxAge, refreshCookiePath, "", h.cfg.IsProd(), true)
}

func (h *UsersHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.cfg.IsProd(), true)
}
