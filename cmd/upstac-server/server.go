package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/upstac/upstac/internal/config"
	"github.com/upstac/upstac/internal/domain/consultation"
	"github.com/upstac/upstac/internal/platform/auth"
	"github.com/upstac/upstac/internal/platform/db"
	"github.com/upstac/upstac/internal/platform/jobs"
	"github.com/upstac/upstac/internal/platform/middleware"
)

const version = "0.1.0"

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	e := newServer(cfg, logger, st)

	scheduler := jobs.NewScheduler(logger)
	if cfg.BacklogReportSchedule != "" {
		reporter := jobs.NewBacklogReporter(st.requests, logger)
		if err := scheduler.Add("consultation_backlog", cfg.BacklogReportSchedule, reporter.Run); err != nil {
			return err
		}
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("scheduled jobs did not finish before shutdown")
		}
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the HTTP surface over st.
func newServer(cfg *config.Config, logger zerolog.Logger, st *stores) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevUserHeader},
	}))
	e.Use(echomw.BodyLimit("64K"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health))

	apiV1 := e.Group("/api/v1")
	if cfg.UsesDevAuth() {
		logger.Warn().Msg("development auth is active: every caller is treated as a doctor")
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(logger, nil))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	lifecycle := consultation.NewLifecycle(st.requests, st.flows, st.tx)
	h := consultation.NewHandler(lifecycle, consultation.ContextIdentity{})
	h.SetHooks(consultation.LogHooks(logger))
	h.RegisterRoutes(apiV1)

	return e
}
