// Package main provides commutectl, the CommutePulse operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/app"
	"github.com/commutepulse/commutepulse/internal/auth"
	"github.com/commutepulse/commutepulse/internal/cli"
	"github.com/commutepulse/commutepulse/internal/config"
	"github.com/commutepulse/commutepulse/internal/database"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(Version, load)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func load(ctx context.Context) (*cli.Services, func() error, error) {
	level := zerolog.WarnLevel
	if os.Getenv("COMMUTECTL_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, nil, err
	}

	engine, err := app.Build(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		return nil, nil, err
	}

	signingKey := cfg.Auth.JWTSigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
	}

	svc := &cli.Services{
		Patterns:   engine.Patterns,
		Delays:     engine.Monitor,
		Finder:     engine.Finder,
		Calculator: engine.Calculator,
		Tokens: auth.NewJWTService(auth.JWTConfig{
			SigningKey: signingKey,
			Issuer:     cfg.Auth.Issuer,
		}),
	}
	if engine.Pool != nil {
		svc.Migrate = func(ctx context.Context) ([]string, error) {
			return database.Migrate(ctx, engine.Pool)
		}
	}

	return svc, engine.Close, nil
}
