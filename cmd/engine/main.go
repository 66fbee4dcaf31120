package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"syncengine/internal/breaker"
	"syncengine/internal/config"
	"syncengine/internal/database"
	"syncengine/internal/events"
	"syncengine/internal/logging"
	"syncengine/internal/metrics"
	"syncengine/internal/models"
	"syncengine/internal/provider"
	"syncengine/internal/webhook"
	"syncengine/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	credentials := provider.NewCachedSource(provider.NewDBSource(db), time.Duration(cfg.Providers.CredentialsTTL)*time.Second)
	factory := provider.NewFactory(cfg.Providers, credentials, &logger)
	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold, time.Duration(cfg.Breaker.Timeout)*time.Second)

	var syncWorker *worker.SyncWorker
	if cfg.Worker.Enabled {
		retryPolicy := worker.RetryPolicy{InitialDelay: 2 * time.Minute, BackoffFactor: 2}
		syncWorker = worker.NewSyncWorker(db, factory, breakers, redisClient, cfg.Worker, retryPolicy, &logger)
		go syncWorker.Start(ctx)
	}

	eventBus := events.NewEventBus()
	subscribeSyncEvents(ctx, eventBus, db, syncWorker, &logger)

	if cfg.Webhook.Enabled {
		gateway := webhook.NewGateway(db, &logger)
		verifier := webhook.NewHMACVerifier(cfg.Webhook.Secrets)
		webhookServer := webhook.NewServer(cfg.Webhook, gateway, verifier, &logger)
		go func() {
			if err := webhookServer.Start(); err != nil {
				logger.Error().Err(err).Msg("webhook server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = webhookServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Bool("worker", cfg.Worker.Enabled).
		Bool("webhook", cfg.Webhook.Enabled).
		Msg("sync engine started")

	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "engine-main").Logger()
	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, worker falls back to plain polling")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}
	return client
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// subscribeSyncEvents translates local domain events into outbound sync jobs.
func subscribeSyncEvents(
	ctx context.Context,
	bus *events.EventBus,
	db *database.DB,
	syncWorker *worker.SyncWorker,
	logger *zerolog.Logger,
) {
	if bus == nil || syncWorker == nil || db == nil {
		return
	}

	appointmentHandler := func(operation string) events.EventHandler {
		return func(ev *events.Event) error {
			var payload events.AppointmentEventPayload
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
				return nil
			}

			_, err := syncWorker.Enqueue(ctx, models.SubjectAppointment, payload.AppointmentID, payload.WorkspaceID, operation, payload.Provider, models.AppointmentPayload{
				SubjectID:       payload.AppointmentID,
				ScheduledAt:     payload.ScheduledAt,
				DurationMinutes: payload.DurationMinutes,
				ServiceType:     payload.ServiceType,
				Notes:           payload.Notes,
			})
			if err != nil {
				logger.Error().Err(err).Int64("appointment_id", payload.AppointmentID).Msg("event bus: enqueue appointment job")
			}
			return nil
		}
	}

	bus.Subscribe(events.EventAppointmentCreated, appointmentHandler(models.OpCreate))
	bus.Subscribe(events.EventAppointmentRescheduled, appointmentHandler(models.OpUpdate))
	bus.Subscribe(events.EventAppointmentCancelled, appointmentHandler(models.OpCancel))

	bus.Subscribe(events.EventMessageQueued, func(ev *events.Event) error {
		var payload events.MessageEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		_, err := syncWorker.Enqueue(ctx, models.SubjectMessage, payload.MessageID, payload.WorkspaceID, models.OpCreate, payload.Provider, models.MessagePayload{
			Direction:  payload.Direction,
			FromNumber: payload.FromNumber,
			ToNumber:   payload.ToNumber,
			Body:       payload.Body,
		})
		if err != nil {
			logger.Error().Err(err).Int64("message_id", payload.MessageID).Msg("event bus: enqueue message job")
		}
		return nil
	})
}
