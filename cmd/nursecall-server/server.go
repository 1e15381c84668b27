package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/config"
	"github.com/mbp/nursecall/internal/domain/directory"
	"github.com/mbp/nursecall/internal/domain/emergency"
	"github.com/mbp/nursecall/internal/domain/notification"
	"github.com/mbp/nursecall/internal/domain/performance"
	"github.com/mbp/nursecall/internal/platform/auth"
	"github.com/mbp/nursecall/internal/platform/cache"
	"github.com/mbp/nursecall/internal/platform/db"
	"github.com/mbp/nursecall/internal/platform/events"
	"github.com/mbp/nursecall/internal/platform/middleware"
	tmpl "github.com/mbp/nursecall/internal/platform/notification"
)

// recipientDirectory resolves notification selectors straight from the
// directory repositories, which lets the dispatcher exist before the
// directory service that notifies through it.
type recipientDirectory struct {
	users directory.UserRepository
	staff directory.StaffRepository
}

func (r recipientDirectory) UserIDsWithRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return r.users.ListIDsByRole(ctx, role)
}

func (r recipientDirectory) AvailableStaffUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.staff.ListAvailableUserIDs(ctx)
}

// services is the wired application graph.
type services struct {
	directory    *directory.Service
	notification *notification.Service
	performance  *performance.Service
	emergency    *emergency.Service
}

func newServices(pool *pgxpool.Pool, c cache.Cache, pub events.Publisher, logger zerolog.Logger) *services {
	tx := db.NewTxManager(pool)
	templates := tmpl.NewTemplateEngine()

	users := directory.NewUserRepoPG(pool)
	staff := directory.NewStaffRepoPG(pool)

	dispatcher := notification.NewDispatcher(notification.NewRepoPG(pool), recipientDirectory{users: users, staff: staff}, logger)
	notifSvc := notification.NewService(notification.NewRepoPG(pool), dispatcher, templates, logger)

	dirSvc := directory.NewService(users, directory.NewPatientRepoPG(pool), directory.NewRoomRepoPG(pool), staff,
		tx, notifSvc, logger)

	perfRepo := performance.NewRepoPG(pool)
	perfSvc := performance.NewService(performance.NewRecalculator(perfRepo, tx), perfRepo, dirSvc, c, logger)

	emSvc := emergency.NewService(emergency.NewRepoPG(pool), dirSvc, dispatcher, perfSvc, tx, pub, templates, logger)

	return &services{directory: dirSvc, notification: notifSvc, performance: perfSvc, emergency: emSvc}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func authMiddleware(cfg *config.Config, logger zerolog.Logger) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development auth enabled: identity is taken from X-User-ID / X-User-Roles headers")
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

// newEcho builds the HTTP surface. extra health checks are probed by
// /health/db next to postgres.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, svcs *services, checks ...db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-User-ID", "X-User-Roles"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(authMiddleware(cfg, logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, checks...))
	}

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	directory.NewHandler(svcs.directory).RegisterRoutes(api)
	notification.NewHandler(svcs.notification).RegisterRoutes(api)
	performance.NewHandler(svcs.performance).RegisterRoutes(api)
	emergency.NewHandler(svcs.emergency).RegisterRoutes(api)
	return e
}

// openCache returns Redis when configured, otherwise a no-op cache.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, []db.Check, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, nil, func() {}
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "nursecall:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, performance cache disabled")
		return cache.Nop{}, nil, func() {}
	}
	logger.Info().Msg("connected to redis")
	check := db.Check{Name: "redis", Ping: r.Ping, Optional: true}
	return r, []db.Check{check}, func() { _ = r.Close() }
}

func openPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing emergency events to kafka")
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if n, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Info().Int("applied", n).Msg("database migrations applied")
	}

	c, checks, closeCache := openCache(ctx, cfg, logger)
	defer closeCache()
	pub := openPublisher(cfg, logger)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	e := newEcho(cfg, logger, pool, newServices(pool, c, pub, logger), checks...)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
