package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/weather-broadcast-service/internal/adapter/cwa"
	httpadapter "github.com/couchcryptid/weather-broadcast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-broadcast-service/internal/adapter/kafka"
	"github.com/couchcryptid/weather-broadcast-service/internal/adapter/llm"
	"github.com/couchcryptid/weather-broadcast-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/weather-broadcast-service/internal/adapter/redis"
	"github.com/couchcryptid/weather-broadcast-service/internal/adapter/tts"
	"github.com/couchcryptid/weather-broadcast-service/internal/config"
	"github.com/couchcryptid/weather-broadcast-service/internal/forecast"
	"github.com/couchcryptid/weather-broadcast-service/internal/ledger"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	"github.com/couchcryptid/weather-broadcast-service/internal/pipeline"
	"github.com/couchcryptid/weather-broadcast-service/internal/report"
	"github.com/couchcryptid/weather-broadcast-service/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	cwaClient := cwa.NewClient(cfg.CWAAPIKey, cfg.CWABaseURL, cfg.CWATimeout, cfg.ForecastCities, logger)
	if cfg.CWAAPIKey == "" {
		logger.Warn("CWA_API_KEY not set, feeds will report configuration errors")
	}

	backend, err := llm.New(llm.Settings{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIKey(),
		Model:    cfg.AIModel,
		Timeout:  cfg.AITimeout,
	})
	if err != nil {
		logger.Error("failed to configure text generation", "error", err)
		os.Exit(1)
	}
	generator := report.NewGenerator(backend, cfg.AITimeout, logger, metrics)
	logger.Info("text generation configured", "provider", generator.Provider(), "model", cfg.AIModel)

	dispatcher := tts.NewDispatcher(cfg.TTSURL, cfg.TTSEngine, cfg.TTSTimeout, logger, metrics)

	// Event ledger (LEDGER_DRIVER=postgres|memory).
	var (
		led     pipeline.Ledger
		prepare func(context.Context) error
	)
	switch cfg.LedgerDriver {
	case "memory":
		led = ledger.NewMemory(clock)
		logger.Warn("using in-memory ledger, processed events are forgotten on restart")
	default:
		pg, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer pg.Close() //nolint:errcheck // process exit
		led = pg
		prepare = pg.Migrate
	}

	// Forecast snapshot mirror (optional, REDIS_ADDR).
	var mirror forecast.Mirror
	if cfg.RedisAddr != "" {
		m := redisadapter.NewMirror(redisadapter.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), "", cfg.ForecastTTL)
		defer m.Close() //nolint:errcheck // process exit
		mirror = m
		logger.Info("forecast mirror enabled", "addr", cfg.RedisAddr)
	}

	// Audit stream (optional, KAFKA_BROKERS).
	var publisher pipeline.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		p := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger, metrics)
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = p
		logger.Info("audit stream enabled", "topic", cfg.KafkaAuditTopic, "brokers", cfg.KafkaBrokers)
	}

	cache := forecast.New(cwaClient, generator, dispatcher, clock, logger, metrics, forecast.Options{
		Window: cfg.ForecastTTL,
		Mirror: mirror,
	})
	coord := pipeline.New(cwaClient, led, generator, dispatcher, publisher, logger, metrics)
	sched := scheduler.New(coord, cache, coord, clock, logger, metrics, scheduler.Options{
		ForecastOffset: cfg.ForecastBroadcastOffset,
		StartupTimeout: cfg.StartupTimeout,
		Prepare:        prepare,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, cache, cwaClient, coord, coord, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduler.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}

	logger.Info("shutdown complete")
}
