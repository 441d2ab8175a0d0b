package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(2)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	r := gin.New()
	r.POST("/login", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1").Code)

	blocked := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "30", blocked.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2").Code)

	// one token refills every 30s
	clock = clock.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1").Code)
}

func TestKeyByUserOrIPSeparatesAccounts(t *testing.T) {
	rl := NewRateLimiter(1)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	r := gin.New()
	r.POST("/documents", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(ctxViewerKey, document.Viewer{UserID: id, Role: role.User})
		}
		c.Next()
	}, rl.RateLimiterMiddleware(KeyByUserOrIP), func(c *gin.Context) { c.Status(http.StatusCreated) })

	hit := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		req.RemoteAddr = "10.0.0.9:4321"
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// same address, different accounts
	assert.Equal(t, http.StatusCreated, hit("u1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("u1"))
	assert.Equal(t, http.StatusCreated, hit("u2"))

	// anonymous callers share the address bucket
	assert.Equal(t, http.StatusCreated, hit(""))
	assert.Equal(t, http.StatusTooManyRequests, hit(""))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Contains(t, rl.clients, "user:u1")
	assert.Contains(t, rl.clients, "user:u2")
	assert.Contains(t, rl.clients, "10.0.0.9")
}

func TestRateLimiterSweepsIdleBucketsOnInterval(t *testing.T) {
	rl := NewRateLimiter(10)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	rl.now = func() time.Time { return clock }

	rl.bucket("10.0.0.1")

	clock = start.Add(9*time.Minute + 50*time.Second)
	rl.bucket("10.0.0.2")
	assert.Len(t, rl.clients, 2)

	// 10.0.0.1 is now idle, but the last sweep was 20s ago
	clock = start.Add(10*time.Minute + 10*time.Second)
	rl.bucket("10.0.0.3")
	assert.Len(t, rl.clients, 3)

	clock = start.Add(10*time.Minute + 50*time.Second)
	rl.bucket("10.0.0.3")
	assert.Len(t, rl.clients, 2)
	assert.NotContains(t, rl.clients, "10.0.0.1")
}
