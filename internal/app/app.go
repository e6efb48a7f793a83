// Package app assembles the CommutePulse engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/config"
	"github.com/commutepulse/commutepulse/internal/database"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/notify"
	"github.com/commutepulse/commutepulse/internal/pattern"
	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/telemetry"
	"github.com/commutepulse/commutepulse/internal/transit"
	"github.com/commutepulse/commutepulse/internal/transit/gtfsrt"
	"github.com/commutepulse/commutepulse/internal/transit/seoul"
)

// Engine holds the wired engine components.
type Engine struct {
	Pool     *pgxpool.Pool
	Registry *resilience.Registry
	Transit  *transit.Service

	Routes   commute.RouteRepository
	Settings departure.SettingRepository

	Patterns    *pattern.Estimator
	Monitor     *delay.Monitor
	Finder      *alternative.Finder
	Calculator  *departure.Calculator
	Suggestions notify.SuggestionPublisher
	Metrics     *telemetry.EngineMetrics

	closers []func() error
}

// Options controls optional parts of the engine.
type Options struct {
	Logger  zerolog.Logger
	Metrics *telemetry.EngineMetrics

	// ArrivalProvider replaces the configured live provider (optional).
	ArrivalProvider transit.ArrivalProvider
}

// Build connects stores and providers described by cfg. Without DB_HOST the
// engine runs on empty in-memory stores.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	log := opts.Logger
	e := &Engine{
		Registry: resilience.NewRegistry(),
		Metrics:  opts.Metrics,
	}

	var (
		routes    commute.RouteRepository
		records   commute.RecordRepository
		sessions  commute.SessionRepository
		mappings  alternative.MappingRepository
		settings  departure.SettingRepository
		snapshots departure.SnapshotRepository
	)
	if database.Enabled() {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		e.Pool = pool
		e.closers = append(e.closers, func() error { pool.Close(); return nil })
		conn := pool.Config().ConnConfig
		log.Info().
			Str("host", conn.Host).
			Uint16("port", conn.Port).
			Str("database", conn.Database).
			Msg("database connected")

		commuteRepo := commute.NewPostgresRepository(pool)
		departureRepo := departure.NewPostgresRepository(pool)
		routes, records, sessions = commuteRepo, commuteRepo, commuteRepo
		mappings = alternative.NewPostgresMappingRepository(pool)
		settings, snapshots = departureRepo, departureRepo
	} else {
		log.Warn().Msg("DB_HOST not set, using in-memory stores")
		commuteRepo := commute.NewInMemoryRepository()
		departureRepo := departure.NewInMemoryRepository()
		routes, records, sessions = commuteRepo, commuteRepo, commuteRepo
		mappings = alternative.NewInMemoryMappingRepository()
		settings, snapshots = departureRepo, departureRepo
	}
	e.Routes = routes
	e.Settings = settings

	provider := opts.ArrivalProvider
	if provider == nil {
		var err error
		provider, err = arrivalProvider(cfg.Transit, e.Registry, log)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	e.Transit = transit.NewService(transit.ServiceConfig{
		Provider:        provider,
		Logger:          log,
		CacheTTL:        cfg.Transit.CacheTTL,
		StaleIfErrorTTL: cfg.Transit.StaleIfErrorTTL,
		CacheSize:       cfg.Transit.CacheSize,
	})

	e.Patterns = pattern.NewEstimator(pattern.EstimatorConfig{
		Records: records,
		Logger:  log,
		Defaults: pattern.Defaults{
			MorningWeekday: cfg.Pattern.MorningWeekday,
			MorningWeekend: cfg.Pattern.MorningWeekend,
			EveningWeekday: cfg.Pattern.EveningWeekday,
			EveningWeekend: cfg.Pattern.EveningWeekend,
		},
		MaxSamples:    cfg.Pattern.MaxSamples,
		MatureSamples: cfg.Pattern.MatureSamples,
		LookbackDays:  cfg.Pattern.LookbackDays,
	})

	e.Monitor = delay.NewMonitor(delay.MonitorConfig{
		Routes:      routes,
		Arrivals:    e.Transit,
		Logger:      log,
		Metrics:     opts.Metrics,
		Concurrency: cfg.Delay.Concurrency,
	})

	e.Finder = alternative.NewFinder(alternative.FinderConfig{
		Mappings:    mappings,
		Arrivals:    e.Transit,
		Logger:      log,
		Metrics:     opts.Metrics,
		Concurrency: cfg.Delay.Concurrency,
	})

	var notifier departure.Notifier = notify.Nop{}
	e.Suggestions = notify.Nop{}
	if cfg.PubSub.ProjectID != "" {
		publisher, err := notify.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.closers = append(e.closers, publisher.Close)
		pubsubNotifier := notify.NewPubSubNotifier(notify.PubSubConfig{
			Publisher:       publisher,
			DepartureTopic:  cfg.PubSub.DepartureTopic,
			SuggestionTopic: cfg.PubSub.SuggestionTopic,
			Logger:          log,
		})
		notifier = pubsubNotifier
		e.Suggestions = pubsubNotifier
		log.Info().
			Str("project_id", cfg.PubSub.ProjectID).
			Str("departure_topic", cfg.PubSub.DepartureTopic).
			Msg("pubsub notifier initialized")
	}

	e.Calculator = departure.NewCalculator(departure.CalculatorConfig{
		Settings:  settings,
		Snapshots: snapshots,
		Routes:    routes,
		Sessions:  sessions,
		Adjuster:  delay.NewAdjuster(e.Monitor),
		Notifier:  notifier,
		Logger:    log,
		Metrics:   opts.Metrics,
	})

	return e, nil
}

func arrivalProvider(cfg config.TransitConfig, registry *resilience.Registry, log zerolog.Logger) (transit.ArrivalProvider, error) {
	clientConfig := func(name string) resilience.ClientConfig {
		cc := resilience.DefaultClientConfig(name)
		cc.Timeout = cfg.Timeout
		cc.MaxRetries = cfg.MaxRetries
		cc.Registry = registry
		cc.CircuitBreaker.OnStateChange = resilience.LogStateChanges(log)
		return cc
	}

	switch cfg.Provider {
	case config.ProviderSeoul:
		if cfg.Seoul.APIKey == "" {
			log.Warn().Msg("SEOUL_API_KEY not set, arrival lookups will fail")
		}
		return seoul.NewClient(seoul.ClientConfig{
			APIKey:     cfg.Seoul.APIKey,
			BaseURL:    cfg.Seoul.BaseURL,
			PageSize:   cfg.Seoul.PageSize,
			HTTPClient: resilience.NewClient(clientConfig(seoul.ProviderName)),
			Logger:     log,
		}), nil
	case config.ProviderGTFSRT:
		return gtfsrt.NewClient(gtfsrt.ClientConfig{
			FeedURL:      cfg.GTFSRT.FeedURL,
			APIKey:       cfg.GTFSRT.APIKey,
			APIKeyHeader: cfg.GTFSRT.APIKeyHeader,
			Stops:        cfg.GTFSRT.Stops,
			FeedTTL:      cfg.GTFSRT.FeedTTL,
			HTTPClient:   resilience.NewClient(clientConfig(gtfsrt.ProviderName)),
			Logger:       log,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transit provider %q", cfg.Provider)
	}
}

// Close releases the database pool and publishers.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// InitTelemetry starts OpenTelemetry for service and creates the engine instruments.
func InitTelemetry(ctx context.Context, cfg *config.Config, service, version string) (*telemetry.Provider, *telemetry.EngineMetrics, error) {
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	metrics, err := telemetry.NewEngineMetrics(tp.Meter)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("creating engine metrics: %w", err)
	}
	return tp, metrics, nil
}
