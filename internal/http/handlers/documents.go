package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const storeTimeout = 3 * time.Second

type DocumentStore interface {
	Create(ctx context.Context, d document.Document) (document.Document, error)
	GetByID(ctx context.Context, id string) (document.Document, error)
	List(ctx context.Context, filter document.ListFilter) ([]document.Document, int, error)
	Update(ctx context.Context, d document.Document, expectedUpdatedAt time.Time) (document.Document, error)
	Delete(ctx context.Context, id string) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

// DocumentNotifier is told about every successful mutation.
type DocumentNotifier interface {
	Created(ctx context.Context, d document.Document)
	Updated(ctx context.Context, before, after document.Document)
	Deleted(ctx context.Context, d document.Document)
}

type DocumentsHandler struct {
	docs   DocumentStore
	users  UserLookup
	notify DocumentNotifier
	log    *slog.Logger
}

func NewDocumentsHandler(docs DocumentStore, users UserLookup, notify DocumentNotifier, log *slog.Logger) *DocumentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentsHandler{docs: docs, users: users, notify: notify, log: log}
}

func (h *DocumentsHandler) list(ctx *gin.Context, filter document.ListFilter) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	items, total, err := h.docs.List(cctx, filter)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "documents.list_failed", "err", err)
		RespondInternal(ctx, "Could not list documents")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  len(items),
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GET /api/documents
func (h *DocumentsHandler) ListDocuments(ctx *gin.Context) {
	filter, fields := parseDocumentFilter(ctx)
	if len(fields) > 0 {
		RespondBadRequest(ctx, "Invalid query parameters", gin.H{"fields": fields})
		return
	}

	filter.Scope = document.ScopeFor(middlewares.ViewerFromContext(ctx))
	h.list(ctx, filter)
}

// GET /api/users/:user/documents
func (h *DocumentsHandler) ListUserDocuments(ctx *gin.Context) {
	filter, fields := parseDocumentFilter(ctx)
	if len(fields) > 0 {
		RespondBadRequest(ctx, "Invalid query parameters", gin.H{"fields": fields})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	owner, err := lookupUser(cctx, h.users, ctx.Param("user"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not load user")
		return
	}

	filter.Scope = document.ScopeFor(middlewares.ViewerFromContext(ctx))
	filter.OwnerID = &owner.ID
	h.list(ctx, filter)
}

// load fetches the document named in the path. It writes the error response
// itself and reports whether the handler should continue.
func (h *DocumentsHandler) load(ctx *gin.Context) (document.Document, bool) {
	id := ctx.Param("doc_id")
	if _, err := uuid.Parse(id); err != nil {
		RespondNotFound(ctx, "Document not found")
		return document.Document{}, false
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	d, err := h.docs.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			RespondNotFound(ctx, "Document not found")
			return document.Document{}, false
		}
		h.log.ErrorContext(ctx.Request.Context(), "documents.get_failed", "doc_id", id, "err", err)
		RespondInternal(ctx, "Could not fetch document")
		return document.Document{}, false
	}

	return d, true
}

// GET /api/documents/:doc_id
func (h *DocumentsHandler) GetDocument(ctx *gin.Context) {
	d, ok := h.load(ctx)
	if !ok {
		return
	}

	viewer := middlewares.ViewerFromContext(ctx)
	if !document.CanView(viewer, d) {
		if !viewer.Authenticated() {
			RespondUnauthorized(ctx, "unauthorized", "Sign in to view this document")
			return
		}
		RespondForbidden(ctx, "You do not have access to this document")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, d)
}

// POST /api/documents
func (h *DocumentsHandler) CreateDocument(ctx *gin.Context) {
	var req document.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	viewer := middlewares.ViewerFromContext(ctx)
	d := document.NewFromCreateRequest(req, viewer.UserID)

	if !document.CanAssign(viewer, d.Role) {
		RespondForbidden(ctx, "Only admins can create admin documents")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	created, err := h.docs.Create(cctx, d)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrAlreadyExists):
			RespondConflict(ctx, "document_exists", "A document with this id already exists")
		case errors.Is(err, user.ErrNotFound):
			RespondUnauthorized(ctx, "unauthorized", "Account no longer exists")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "documents.create_failed", "err", err)
			RespondInternal(ctx, "Could not create document")
		}
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "documents.created", "doc_id", created.ID, "role", created.Role)
	h.notify.Created(context.WithoutCancel(ctx.Request.Context()), created)

	ctx.JSON(http.StatusCreated, created)
}

// PUT /api/documents/:doc_id
func (h *DocumentsHandler) UpdateDocument(ctx *gin.Context) {
	var req document.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	current, ok := h.load(ctx)
	if !ok {
		return
	}

	viewer := middlewares.ViewerFromContext(ctx)
	if !document.CanModify(viewer, current) {
		RespondForbidden(ctx, "Only the owner or an admin can edit this document")
		return
	}

	if req.Role != nil {
		r, _ := role.Parse(*req.Role)
		if !document.CanAssign(viewer, r) {
			RespondForbidden(ctx, "Only admins can assign the admin role")
			return
		}
	}

	if ifMatchStale(ctx.GetHeader("If-Match"), current) {
		RespondConflict(ctx, "stale_version", "Document was changed by someone else")
		return
	}

	next := current.Apply(req)
	next.UpdatedAt = nextVersion(current.UpdatedAt)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	updated, err := h.docs.Update(cctx, next, current.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrConflict):
			RespondConflict(ctx, "stale_version", "Document was changed by someone else")
		case errors.Is(err, document.ErrNotFound):
			RespondNotFound(ctx, "Document not found")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "documents.update_failed", "doc_id", current.ID, "err", err)
			RespondInternal(ctx, "Could not update document")
		}
		return
	}

	h.notify.Updated(context.WithoutCancel(ctx.Request.Context()), current, updated)

	if etag, err := buildETag(updated); err == nil {
		ctx.Header("ETag", etag)
	}
	ctx.JSON(http.StatusOK, updated)
}

// DELETE /api/documents/:doc_id
func (h *DocumentsHandler) DeleteDocument(ctx *gin.Context) {
	current, ok := h.load(ctx)
	if !ok {
		return
	}

	if !document.CanModify(middlewares.ViewerFromContext(ctx), current) {
		RespondForbidden(ctx, "Only the owner or an admin can delete this document")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.docs.Delete(cctx, current.ID); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			RespondNotFound(ctx, "Document not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "documents.delete_failed", "doc_id", current.ID, "err", err)
		RespondInternal(ctx, "Could not delete document")
		return
	}

	h.notify.Deleted(context.WithoutCancel(ctx.Request.Context()), current)
	ctx.Status(http.StatusNoContent)
}

// nextVersion is the updatedAt of the next write. It always moves forward so
// the compare-and-swap sees a change even within one clock tick.
func nextVersion(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// lookupUser resolves a path value that is either a user id or a username.
func lookupUser(ctx context.Context, users UserLookup, idOrUsername string) (user.User, error) {
	if _, err := uuid.Parse(idOrUsername); err == nil {
		return users.GetByID(ctx, idOrUsername)
	}
	return users.GetByUsername(ctx, idOrUsername)
}
