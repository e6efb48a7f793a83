// Package main provides the entrypoint for the CommutePulse API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/api"
	"github.com/commutepulse/commutepulse/internal/api/handler"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/app"
	"github.com/commutepulse/commutepulse/internal/auth"
	"github.com/commutepulse/commutepulse/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "commutepulse-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CommutePulse API")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()

	tp, engineMetrics, err := app.InitTelemetry(ctx, cfg, serviceName, Version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	engine, err := app.Build(ctx, cfg, app.Options{Logger: log, Metrics: engineMetrics})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close engine")
		}
	}()

	signingKey := cfg.Auth.JWTSigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
	})

	var checks []handler.DependencyCheck
	if engine.Pool != nil {
		checks = append(checks, handler.DependencyCheck{Name: "database", Check: engine.Pool.Ping})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           metrics,
		TokenValidator:    jwtService,
		RateLimit:         cfg.Server.RateLimit,
		RequireTLS:        cfg.Server.RequireTLS,
		Registry:          engine.Registry,
		DependencyChecks:  checks,
		Routes:            engine.Routes,
		Settings:          engine.Settings,
		PatternEstimator:  engine.Patterns,
		DelayMonitor:      engine.Monitor,
		AlternativeFinder: engine.Finder,
		Calculator:        engine.Calculator,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("transit_provider", engine.Transit.Name()).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
