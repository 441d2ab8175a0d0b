package http

import (
	"log/slog"
	"slices"
	"time"

	"github.com/geocoder89/docman/internal/auth"
	"github.com/geocoder89/docman/internal/cache"
	"github.com/geocoder89/docman/internal/config"
	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/http/handlers"
	"github.com/geocoder89/docman/internal/http/middlewares"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/geocoder89/docman/internal/realtime"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router wires into handlers. Storage is passed as
// interfaces so postgres and memory stores are interchangeable.
type Deps struct {
	Cfg    config.Config
	Log    *slog.Logger
	JWT    *auth.Manager
	Prom   *observability.Prom
	Gather prometheus.Gatherer

	Users     handlers.UserStore
	Documents handlers.DocumentStore
	Roles     handlers.RoleLister
	Sessions  handlers.SessionStore

	Hub *realtime.Hub

	// Checks are probed by /readyz.
	Checks map[string]handlers.PingFunc
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "x-access-token", "If-Match", "If-None-Match", "X-Request-Id"},
		ExposeHeaders:    []string{"ETag", "X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	switch {
	case slices.Contains(origins, "*"):
		cfg.AllowAllOrigins = true
	case len(origins) == 0:
		cfg.AllowOriginFunc = func(string) bool { return false }
	default:
		cfg.AllowOrigins = origins
	}

	return cfg
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	handlers.RegisterValidators()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.Cfg.ServiceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(cors.New(corsConfig(d.Cfg.AllowedOrigins)))
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	health := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Gather != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gather, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authMW := middlewares.NewAuthMiddleware(d.JWT)
	authLimiter := middlewares.NewRateLimiter(d.Cfg.AuthRatePerMin)
	writeLimiter := middlewares.NewRateLimiter(d.Cfg.DocWriteRatePerMin)
	notifier := realtime.NewNotifier(d.Hub, log)

	docs := handlers.NewDocumentsHandler(d.Documents, d.Users, notifier, log)
	users := handlers.NewUsersHandler(d.Users, d.Sessions, d.Hub, d.JWT, d.Cfg, log)
	roles := handlers.NewRolesHandler(d.Roles, cache.New[[]role.Role](time.Duration(d.Cfg.RolesCacheTTLSec)*time.Second))
	rtc := handlers.NewRealtimeHandler(d.Hub, realtime.NewUpgrader(d.Cfg.AllowedOrigins), log)

	api := r.Group("/api")
	{
		api.GET("/documents", authMW.OptionalAuth(), docs.ListDocuments)
		api.GET("/documents/:doc_id", authMW.OptionalAuth(), docs.GetDocument)
		// write limits run after auth so each account gets its own bucket
		writes := writeLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)
		api.POST("/documents", authMW.RequireAuth(), writes, docs.CreateDocument)
		api.PUT("/documents/:doc_id", authMW.RequireAuth(), writes, docs.UpdateDocument)
		api.DELETE("/documents/:doc_id", authMW.RequireAuth(), writes, docs.DeleteDocument)

		limited := authLimiter.RateLimiterMiddleware(middlewares.KeyByIP)
		api.POST("/users", limited, users.SignUp)
		api.POST("/users/login", limited, users.Login)
		api.POST("/users/refresh", users.Refresh)
		api.POST("/users/logout", users.Logout)

		api.GET("/users", authMW.RequireAuth(), authMW.RequireRole(role.Admin), users.ListUsers)
		api.GET("/users/:user", authMW.RequireAuth(), users.GetUser)
		api.PUT("/users/:user", authMW.RequireAuth(), users.UpdateUser)
		api.DELETE("/users/:user", authMW.RequireAuth(), users.DeleteUser)
		api.GET("/users/:user/documents", authMW.OptionalAuth(), docs.ListUserDocuments)

		api.GET("/roles", roles.ListRoles)
	}

	r.GET("/docman/rtc", authMW.SocketAuth(), rtc.Connect)

	return r
}
