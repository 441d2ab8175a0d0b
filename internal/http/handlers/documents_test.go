package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/docman/internal/auth"
	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/domain/user"
	"github.com/geocoder89/docman/internal/http/handlers"
	"github.com/geocoder89/docman/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = auth.NewManager("handlers-test-secret", time.Minute, time.Hour)

func tokenFor(t *testing.T, id string, r role.Title) string {
	t.Helper()

	tok, err := testJWT.GenerateAccessToken(id, "tester", string(r))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// Fake repository implementations of the handler interfaces

type fakeDocsRepo struct {
	createFn func(ctx context.Context, d document.Document) (document.Document, error)
	getFn    func(ctx context.Context, id string) (document.Document, error)
	listFn   func(ctx context.Context, filter document.ListFilter) ([]document.Document, int, error)
	updateFn func(ctx context.Context, d document.Document, expected time.Time) (document.Document, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeDocsRepo) Create(ctx context.Context, d document.Document) (document.Document, error) {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return d, nil
}

func (f *fakeDocsRepo) GetByID(ctx context.Context, id string) (document.Document, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return document.Document{}, document.ErrNotFound
}

func (f *fakeDocsRepo) List(ctx context.Context, filter document.ListFilter) ([]document.Document, int, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return []document.Document{}, 0, nil
}

func (f *fakeDocsRepo) Update(ctx context.Context, d document.Document, expected time.Time) (document.Document, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, d, expected)
	}
	return d, nil
}

func (f *fakeDocsRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeUserLookup struct {
	byID       map[string]user.User
	byUsername map[string]user.User
}

func (f fakeUserLookup) GetByID(_ context.Context, id string) (user.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return user.User{}, user.ErrNotFound
}

func (f fakeUserLookup) GetByUsername(_ context.Context, username string) (user.User, error) {
	if u, ok := f.byUsername[username]; ok {
		return u, nil
	}
	return user.User{}, user.ErrNotFound
}

type notification struct {
	kind   string
	before document.Document
	after  document.Document
}

type fakeNotifier struct {
	got []notification
}

func (n *fakeNotifier) Created(_ context.Context, d document.Document) {
	n.got = append(n.got, notification{kind: "create", after: d})
}

func (n *fakeNotifier) Updated(_ context.Context, before, after document.Document) {
	n.got = append(n.got, notification{kind: "update", before: before, after: after})
}

func (n *fakeNotifier) Deleted(_ context.Context, d document.Document) {
	n.got = append(n.got, notification{kind: "delete", after: d})
}

func setupDocsRouter(repo *fakeDocsRepo, users fakeUserLookup, n *fakeNotifier) *gin.Engine {
	h := handlers.NewDocumentsHandler(repo, users, n, nil)
	mw := middlewares.NewAuthMiddleware(testJWT)

	r := gin.New()
	r.GET("/api/documents", mw.OptionalAuth(), h.ListDocuments)
	r.GET("/api/documents/:doc_id", mw.OptionalAuth(), h.GetDocument)
	r.POST("/api/documents", mw.RequireAuth(), h.CreateDocument)
	r.PUT("/api/documents/:doc_id", mw.RequireAuth(), h.UpdateDocument)
	r.DELETE("/api/documents/:doc_id", mw.RequireAuth(), h.DeleteDocument)
	r.GET("/api/users/:user/documents", mw.OptionalAuth(), h.ListUserDocuments)
	return r
}

func do(r *gin.Engine, method, target, token, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("x-access-token", token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListDocumentsScopeAndQuery(t *testing.T) {
	ownerID := uuid.NewString()

	tests := []struct {
		name       string
		url        string
		token      func(t *testing.T) string
		wantStatus int
		check      func(t *testing.T, f document.ListFilter)
	}{
		{
			name:       "anonymous sees public only",
			url:        "/api/documents",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f document.ListFilter) {
				if f.Scope.All || f.Scope.OwnerID != "" || len(f.Scope.Roles) != 1 || f.Scope.Roles[0] != role.Public {
					t.Fatalf("unexpected scope %+v", f.Scope)
				}
				if f.Limit != 20 || f.Offset != 0 {
					t.Fatalf("unexpected paging %d/%d", f.Limit, f.Offset)
				}
			},
		},
		{
			name:       "user sees own plus public and user",
			url:        "/api/documents?limit=5&offset=10",
			token:      func(t *testing.T) string { return tokenFor(t, ownerID, role.User) },
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f document.ListFilter) {
				if f.Scope.OwnerID != ownerID || len(f.Scope.Roles) != 2 {
					t.Fatalf("unexpected scope %+v", f.Scope)
				}
				if f.Limit != 5 || f.Offset != 10 {
					t.Fatalf("unexpected paging %d/%d", f.Limit, f.Offset)
				}
			},
		},
		{
			name:       "admin sees all",
			url:        "/api/documents",
			token:      func(t *testing.T) string { return tokenFor(t, ownerID, role.Admin) },
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f document.ListFilter) {
				if !f.Scope.All {
					t.Fatalf("admin scope should be all, got %+v", f.Scope)
				}
			},
		},
		{
			name:       "role and date range compose",
			url:        "/api/documents?role=user&created_min=2024-03-01&created_max=2024-03-31&q=plan",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f document.ListFilter) {
				if f.Role == nil || *f.Role != role.User {
					t.Fatalf("role filter missing")
				}
				wantFrom := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
				wantBefore := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
				if f.CreatedFrom == nil || !f.CreatedFrom.Equal(wantFrom) {
					t.Fatalf("got from %v want %v", f.CreatedFrom, wantFrom)
				}
				if f.CreatedBefore == nil || !f.CreatedBefore.Equal(wantBefore) {
					t.Fatalf("got before %v want %v", f.CreatedBefore, wantBefore)
				}
				if f.Query == nil || *f.Query != "plan" {
					t.Fatalf("query filter missing")
				}
			},
		},
		{
			name:       "single created day",
			url:        "/api/documents?created=2024-03-10T15:04:05Z",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f document.ListFilter) {
				from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
				if !f.CreatedFrom.Equal(from) || !f.CreatedBefore.Equal(from.AddDate(0, 0, 1)) {
					t.Fatalf("unexpected bounds %v..%v", f.CreatedFrom, f.CreatedBefore)
				}
			},
		},
		{name: "limit too large", url: "/api/documents?limit=1000", wantStatus: http.StatusBadRequest},
		{name: "bad role", url: "/api/documents?role=owner", wantStatus: http.StatusBadRequest},
		{name: "bad date", url: "/api/documents?created_min=yesterday", wantStatus: http.StatusBadRequest},
		{name: "inverted range", url: "/api/documents?created_min=2024-03-02&created_max=2024-03-01", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got document.ListFilter
			repo := &fakeDocsRepo{listFn: func(_ context.Context, f document.ListFilter) ([]document.Document, int, error) {
				got = f
				return []document.Document{}, 0, nil
			}}

			token := ""
			if tt.token != nil {
				token = tt.token(t)
			}

			w := do(setupDocsRouter(repo, fakeUserLookup{}, &fakeNotifier{}), http.MethodGet, tt.url, token, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestGetDocumentVisibility(t *testing.T) {
	ownerID := uuid.NewString()
	private := document.Document{ID: uuid.NewString(), OwnerID: ownerID, Role: role.Private, Title: "secret"}
	public := document.Document{ID: uuid.NewString(), OwnerID: ownerID, Role: role.Public, Title: "hello"}

	repo := &fakeDocsRepo{getFn: func(_ context.Context, id string) (document.Document, error) {
		switch id {
		case private.ID:
			return private, nil
		case public.ID:
			return public, nil
		}
		return document.Document{}, document.ErrNotFound
	}}
	r := setupDocsRouter(repo, fakeUserLookup{}, &fakeNotifier{})

	tests := []struct {
		name       string
		id         string
		token      string
		wantStatus int
	}{
		{"public anonymous", public.ID, "", http.StatusOK},
		{"private anonymous", private.ID, "", http.StatusUnauthorized},
		{"private other user", private.ID, tokenFor(t, uuid.NewString(), role.Private), http.StatusForbidden},
		{"private owner", private.ID, tokenFor(t, ownerID, role.User), http.StatusOK},
		{"private admin", private.ID, tokenFor(t, uuid.NewString(), role.Admin), http.StatusOK},
		{"missing", uuid.NewString(), "", http.StatusNotFound},
		{"not a uuid", "abc", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/documents/"+tt.id, tt.token, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestGetDocumentETag(t *testing.T) {
	d := document.Document{ID: uuid.NewString(), Role: role.Public, Title: "hello"}
	repo := &fakeDocsRepo{getFn: func(context.Context, string) (document.Document, error) { return d, nil }}
	r := setupDocsRouter(repo, fakeUserLookup{}, &fakeNotifier{})

	first := do(r, http.MethodGet, "/api/documents/"+d.ID, "", "")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	second := do(r, http.MethodGet, "/api/documents/"+d.ID, "", "", "If-None-Match", etag)
	if second.Code != http.StatusNotModified {
		t.Fatalf("got %d, want 304", second.Code)
	}
}

func TestCreateDocumentHandler(t *testing.T) {
	userID := uuid.NewString()
	clientID := uuid.NewString()

	tests := []struct {
		name       string
		body       string
		token      string
		repoSetUp  func(*fakeDocsRepo)
		wantStatus int
		wantRole   role.Title
		wantNotify bool
	}{
		{
			name:       "defaults to public",
			body:       `{"title":"Notes","content":"hi"}`,
			token:      tokenFor(t, userID, role.User),
			wantStatus: http.StatusCreated,
			wantRole:   role.Public,
			wantNotify: true,
		},
		{
			name:       "client supplied id is kept",
			body:       `{"id":"` + clientID + `","title":"Notes","role":"private"}`,
			token:      tokenFor(t, userID, role.User),
			wantStatus: http.StatusCreated,
			wantRole:   role.Private,
			wantNotify: true,
		},
		{
			name:       "non admin cannot create admin document",
			body:       `{"title":"Notes","role":"admin"}`,
			token:      tokenFor(t, userID, role.Private),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin can create admin document",
			body:       `{"title":"Notes","role":"admin"}`,
			token:      tokenFor(t, userID, role.Admin),
			wantStatus: http.StatusCreated,
			wantRole:   role.Admin,
			wantNotify: true,
		},
		{
			name:       "duplicate id conflicts",
			body:       `{"id":"` + clientID + `","title":"Notes"}`,
			token:      tokenFor(t, userID, role.User),
			repoSetUp: func(f *fakeDocsRepo) {
				f.createFn = func(context.Context, document.Document) (document.Document, error) {
					return document.Document{}, document.ErrAlreadyExists
				}
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "validation error",
			body:       `{"title":""}`,
			token:      tokenFor(t, userID, role.User),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad client id",
			body:       `{"id":"nope","title":"x"}`,
			token:      tokenFor(t, userID, role.User),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "anonymous rejected",
			body:       `{"title":"Notes"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:  "repo error",
			body:  `{"title":"Notes"}`,
			token: tokenFor(t, userID, role.User),
			repoSetUp: func(f *fakeDocsRepo) {
				f.createFn = func(context.Context, document.Document) (document.Document, error) {
					return document.Document{}, errors.New("db error")
				}
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeDocsRepo{}
			if tt.repoSetUp != nil {
				tt.repoSetUp(repo)
			}
			n := &fakeNotifier{}

			w := do(setupDocsRouter(repo, fakeUserLookup{}, n), http.MethodPost, "/api/documents", tt.token, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantNotify != (len(n.got) == 1) {
				t.Fatalf("notifications: got %d, want notify=%v", len(n.got), tt.wantNotify)
			}

			if w.Code != http.StatusCreated {
				return
			}

			var d document.Document
			if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if d.Role != tt.wantRole {
				t.Fatalf("got role %q, want %q", d.Role, tt.wantRole)
			}
			if d.OwnerID != userID {
				t.Fatalf("owner should come from the token, got %q", d.OwnerID)
			}
		})
	}
}

func TestUpdateDocumentHandler(t *testing.T) {
	ownerID := uuid.NewString()
	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	current := document.Document{ID: uuid.NewString(), OwnerID: ownerID, Role: role.Public, Title: "v1", CreatedAt: stamp, UpdatedAt: stamp}

	tests := []struct {
		name       string
		body       string
		token      string
		headers    []string
		updateErr  error
		wantStatus int
		wantEvent  bool
	}{
		{"owner edits", `{"title":"v2"}`, tokenFor(t, ownerID, role.User), nil, nil, http.StatusOK, true},
		{"admin edits", `{"role":"admin"}`, tokenFor(t, uuid.NewString(), role.Admin), nil, nil, http.StatusOK, true},
		{"stranger forbidden", `{"title":"v2"}`, tokenFor(t, uuid.NewString(), role.User), nil, nil, http.StatusForbidden, false},
		{"owner cannot assign admin", `{"role":"admin"}`, tokenFor(t, ownerID, role.User), nil, nil, http.StatusForbidden, false},
		{"stale if-match", `{"title":"v2"}`, tokenFor(t, ownerID, role.User), []string{"If-Match", `"deadbeef"`}, nil, http.StatusConflict, false},
		{"concurrent write", `{"title":"v2"}`, tokenFor(t, ownerID, role.User), nil, document.ErrConflict, http.StatusConflict, false},
		{"bad role", `{"role":"owner"}`, tokenFor(t, ownerID, role.User), nil, nil, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var expected time.Time
			repo := &fakeDocsRepo{
				getFn: func(context.Context, string) (document.Document, error) { return current, nil },
				updateFn: func(_ context.Context, d document.Document, exp time.Time) (document.Document, error) {
					expected = exp
					if tt.updateErr != nil {
						return document.Document{}, tt.updateErr
					}
					return d, nil
				},
			}
			n := &fakeNotifier{}

			w := do(setupDocsRouter(repo, fakeUserLookup{}, n), http.MethodPut, "/api/documents/"+current.ID, tt.token, tt.body, tt.headers...)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantEvent != (len(n.got) == 1) {
				t.Fatalf("notifications: got %d, want event=%v", len(n.got), tt.wantEvent)
			}

			if w.Code == http.StatusOK {
				if !expected.Equal(stamp) {
					t.Fatalf("compare-and-swap should expect %v, got %v", stamp, expected)
				}
				if !n.got[0].after.UpdatedAt.After(stamp) {
					t.Fatalf("updatedAt should move forward")
				}
				if n.got[0].before.Role != role.Public {
					t.Fatalf("notifier should see the previous role")
				}
			}
		})
	}
}

func TestUpdateDocumentMatchingIfMatch(t *testing.T) {
	ownerID := uuid.NewString()
	current := document.Document{ID: uuid.NewString(), OwnerID: ownerID, Role: role.User, Title: "v1"}
	repo := &fakeDocsRepo{getFn: func(context.Context, string) (document.Document, error) { return current, nil }}
	r := setupDocsRouter(repo, fakeUserLookup{}, &fakeNotifier{})

	tok := tokenFor(t, ownerID, role.User)
	etag := do(r, http.MethodGet, "/api/documents/"+current.ID, tok, "").Header().Get("ETag")

	w := do(r, http.MethodPut, "/api/documents/"+current.ID, tok, `{"content":"more"}`, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestDeleteDocumentHandler(t *testing.T) {
	ownerID := uuid.NewString()
	current := document.Document{ID: uuid.NewString(), OwnerID: ownerID, Role: role.User}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"owner", tokenFor(t, ownerID, role.User), http.StatusNoContent},
		{"admin", tokenFor(t, uuid.NewString(), role.Admin), http.StatusNoContent},
		{"stranger", tokenFor(t, uuid.NewString(), role.Private), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleted := false
			repo := &fakeDocsRepo{
				getFn:    func(context.Context, string) (document.Document, error) { return current, nil },
				deleteFn: func(context.Context, string) error { deleted = true; return nil },
			}
			n := &fakeNotifier{}

			w := do(setupDocsRouter(repo, fakeUserLookup{}, n), http.MethodDelete, "/api/documents/"+current.ID, tt.token, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if deleted != (tt.wantStatus == http.StatusNoContent) {
				t.Fatalf("delete called=%v", deleted)
			}
			if deleted && (len(n.got) != 1 || n.got[0].kind != "delete") {
				t.Fatalf("expected a delete notification, got %+v", n.got)
			}
		})
	}
}

func TestListUserDocumentsResolvesUsernameOrID(t *testing.T) {
	alice := user.User{ID: uuid.NewString(), Username: "alice"}
	users := fakeUserLookup{
		byID:       map[string]user.User{alice.ID: alice},
		byUsername: map[string]user.User{"alice": alice},
	}

	for _, param := range []string{"alice", alice.ID} {
		var got document.ListFilter
		repo := &fakeDocsRepo{listFn: func(_ context.Context, f document.ListFilter) ([]document.Document, int, error) {
			got = f
			return []document.Document{}, 0, nil
		}}

		w := do(setupDocsRouter(repo, users, &fakeNotifier{}), http.MethodGet, "/api/users/"+param+"/documents", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: got %d", param, w.Code)
		}
		if got.OwnerID == nil || *got.OwnerID != alice.ID {
			t.Fatalf("%s: owner filter not applied", param)
		}
		if got.Scope.All {
			t.Fatalf("%s: anonymous scope must stay narrow", param)
		}
	}

	w := do(setupDocsRouter(&fakeDocsRepo{}, users, &fakeNotifier{}), http.MethodGet, "/api/users/bob/documents", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
}
