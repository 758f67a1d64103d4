package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthdesk/triage/internal/config"
	"github.com/healthdesk/triage/internal/domain/attendances"
	"github.com/healthdesk/triage/internal/domain/forms"
	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/domain/responses"
	"github.com/healthdesk/triage/internal/domain/scheduling"
	"github.com/healthdesk/triage/internal/platform/auth"
	"github.com/healthdesk/triage/internal/platform/db"
	"github.com/healthdesk/triage/internal/platform/logging"
	"github.com/healthdesk/triage/internal/platform/middleware"
	"github.com/healthdesk/triage/internal/platform/telemetry"
	"github.com/healthdesk/triage/internal/platform/websocket"
)

const (
	version         = "0.1.0"
	devUserID       = "dev-admin"
	shutdownTimeout = 10 * time.Second
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e, err := newServer(cfg, pool, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the middleware chain and every
// domain's routes. The pool is only touched when requests arrive.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var prober db.Prober
	if pool != nil {
		prober = db.NewProber(pool)
	}
	metrics := telemetry.New(prober)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", auth.DevUserHeader, auth.DevRolesHeader},
	}))

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	e.Use(authMW)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if prober != nil {
		e.GET("/health/db", db.HealthHandler(prober))
	}
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	api.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	registerDomains(api, cfg, pool, metrics, logger)
	return e, nil
}

// registerDomains wires repositories, services and handlers. Response
// scoring feeds the appointment router, and manual bookings read the
// response score back, so responses and scheduling depend on each other
// only through interfaces. Committed outcomes are pushed to the event hub
// and counted in metrics.
func registerDomains(api *echo.Group, cfg *config.Config, pool *pgxpool.Pool, metrics *telemetry.Metrics, logger zerolog.Logger) {
	tx := db.NewTransactor(pool)

	identitySvc := identity.NewService(identity.NewUserRepoPG(pool))
	identity.NewHandler(identitySvc).RegisterRoutes(api)

	formsSvc := forms.NewService(tx, forms.NewFormRepoPG(pool), forms.NewRuleRepoPG(pool), identitySvc)
	forms.NewHandler(formsSvc).RegisterRoutes(api)

	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	router := scheduling.NewRouter(apptRepo, identitySvc, logger)

	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(api)

	responsesSvc := responses.NewService(tx, responses.NewResponseRepoPG(pool), formsSvc, router, identitySvc, logger)
	responsesSvc.SetPublisher(hub)
	responsesSvc.SetRecorder(metrics)
	responses.NewHandler(responsesSvc).RegisterRoutes(api)

	schedulingSvc := scheduling.NewService(tx, apptRepo, identitySvc, responsesSvc)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)

	attendancesSvc := attendances.NewService(tx, attendances.NewAttendanceRepoPG(pool), identitySvc, schedulingSvc)
	attendances.NewHandler(attendancesSvc).RegisterRoutes(api)
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(devUserID), nil
	}
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
		Skipper:    auth.AuthSkipper,
	}), nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS <= 0 {
		return rl
	}
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	if rl.BurstSize <= 0 {
		rl.BurstSize = int(rl.RequestsPerSecond)
	}
	return rl
}
