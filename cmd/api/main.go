package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/docman/internal/auth"
	"github.com/geocoder89/docman/internal/config"
	"github.com/geocoder89/docman/internal/db"
	httpx "github.com/geocoder89/docman/internal/http"
	"github.com/geocoder89/docman/internal/http/handlers"
	"github.com/geocoder89/docman/internal/observability"
	"github.com/geocoder89/docman/internal/realtime"
	"github.com/geocoder89/docman/internal/redisclient"
	"github.com/geocoder89/docman/internal/repo/memory"
	"github.com/geocoder89/docman/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

var errShuttingDown = errors.New("shutting down")

type userStore interface {
	handlers.UserStore
	db.AdminStore
}

// stores groups whichever storage backend STORAGE selected.
type stores struct {
	users     userStore
	documents handlers.DocumentStore
	roles     handlers.RoleLister
	sessions  handlers.SessionStore
	ping      handlers.PingFunc
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (stores, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("storage.memory", "msg", "data is lost on restart")
		m := memory.New()
		return stores{
			users:     m.Users,
			documents: m.Documents,
			roles:     m.Roles,
			sessions:  m.RefreshTokens,
			close:     func() {},
		}, nil
	}

	if err := db.Migrate(cfg.DBURL); err != nil {
		return stores{}, err
	}

	pool, err := db.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}

	if err := db.EnsureRoles(ctx, pool); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("seed roles: %w", err)
	}

	return stores{
		users:     postgres.NewUsersRepo(pool, prom),
		documents: postgres.NewDocumentsRepo(pool, prom),
		roles:     postgres.NewRolesRepo(pool, prom),
		sessions:  postgres.NewRefreshTokensRepo(pool, prom),
		ping:      pool.Ping,
		close:     pool.Close,
	}, nil
}

func main() {
	// Load the config set up
	cfg := config.Load()

	log := observability.NewLogger(observability.LogOptions{
		Env:       cfg.Env,
		File:      cfg.LogFile,
		FileMaxMB: cfg.LogFileMaxMB,
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer st.close()

	seedCtx, cancelSeed := config.WithTimeout(5 * time.Second)
	err = db.EnsureAdminUser(seedCtx, st.users, cfg)
	cancelSeed()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	var shuttingDown atomic.Bool
	checks := map[string]handlers.PingFunc{
		"db": st.ping,
		"server": func(context.Context) error {
			if shuttingDown.Load() {
				return errShuttingDown
			}
			return nil
		},
	}

	hubOpts := realtime.HubOptions{Prom: prom, Log: log}

	var broker *realtime.RedisBroker
	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rc.Close() }()

		broker = realtime.NewRedisBroker(rc.Raw(), cfg.RealtimeChannel, log)
		hubOpts.Broker = realtime.NewBreakerBroker(broker, realtime.BreakerConfig{})
		checks["redis"] = rc.Ping
	}

	hub := realtime.NewHub(hubOpts)

	router := httpx.NewRouter(httpx.Deps{
		Cfg:       cfg,
		Log:       log,
		JWT:       auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL()),
		Prom:      prom,
		Gather:    reg,
		Users:     st.users,
		Documents: st.documents,
		Roles:     st.roles,
		Sessions:  st.sessions,
		Hub:       hub,
		Checks:    checks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if broker != nil {
		g.Go(func() error {
			// resubscribe until shutdown; a lost subscription only delays remote events
			for {
				err := broker.Run(gctx, hub.Deliver)
				if gctx.Err() != nil {
					return nil
				}
				log.Warn("realtime.subscriber_stopped", "err", err)

				select {
				case <-gctx.Done():
					return nil
				case <-time.After(2 * time.Second):
				}
			}
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		shuttingDown.Store(true)
		log.Info("server shutting down")

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}
