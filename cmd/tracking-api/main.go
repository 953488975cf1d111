// Command tracking-api serves live job tracking.
//
// @title                       Job Tracking API
// @version                     1.0
// @description                 Live position, route progress and off-route detection for active delivery jobs.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api"
	"github.com/99minutos/job-tracking/internal/core/ports"
	"github.com/99minutos/job-tracking/internal/core/service"
	"github.com/99minutos/job-tracking/internal/infrastructure/db/mongo"
	"github.com/99minutos/job-tracking/internal/infrastructure/db/redis"
	opshttp "github.com/99minutos/job-tracking/internal/infrastructure/http"
	"github.com/99minutos/job-tracking/internal/infrastructure/http/handlers"
	"github.com/99minutos/job-tracking/internal/infrastructure/messaging/kafka"
	"github.com/99minutos/job-tracking/internal/infrastructure/queue"
	"github.com/99minutos/job-tracking/internal/pkg/config"
	"github.com/99minutos/job-tracking/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "job-tracking",
	})
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("ops_port", cfg.OpsPort).
		Str("push_transport", cfg.PushTransport).
		Msg("starting job-tracking")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer func() { _ = rdb.Close() }()

	positionRepo := mongo.NewPositionRepository(db)
	routeRepo := mongo.NewRouteRepository(db)
	if err := mongo.EnsureIndexes(ctx, positionRepo, routeRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to create indexes")
	}

	// --- Push channel ---
	publisher, subscriber, closePush := pushChannel(ctx, cfg, rdb, log)
	defer closePush()

	// --- Core ---
	tracking := service.NewTrackingService(
		positionRepo,
		subscriber,
		routeRepo,
		redis.NewRecalculationPublisher(rdb),
		service.TrackingConfig{
			PollInterval: cfg.Tracking.PollInterval,
			Progress: service.ProgressConfig{
				UnreliableFixMeters:   cfg.Tracking.UnreliableFixMeters,
				DistanceEpsilonMeters: cfg.Tracking.DistanceEpsilonMeters,
				TimeEpsilon:           cfg.Tracking.TimeEpsilon,
			},
			Deviation: service.DeviationConfig{
				MaxDeviationMeters: cfg.Tracking.MaxDeviationMeters,
				MinDwell:           cfg.Tracking.MinDwell,
				Cooldown:           cfg.Tracking.Cooldown,
			},
		},
		log,
	)

	positions := service.NewPositionService(
		positionRepo,
		publisher,
		redis.NewDedupChecker(rdb),
		service.PositionServiceConfig{MaxClockSkew: cfg.Tracking.MaxClockSkew},
		log,
	)
	dispatcher := queue.NewDispatcher(cfg.DispatchWorkers, positions, log)
	dispatcher.Start(ctx)

	// --- HTTP ---
	apiServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Dispatcher: dispatcher,
			Tracking:   tracking,
			JWTSecret:  cfg.JWTSecret,
			Log:        logger.Component("api"),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	opsServer := &http.Server{
		Addr: ":" + cfg.OpsPort,
		Handler: opshttp.NewRouter(map[string]handlers.Check{
			"mongodb": func(ctx context.Context) error { return mongo.Ping(ctx, mongoClient) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		ReadTimeout: 5 * time.Second,
	}

	for name, srv := range map[string]*http.Server{"api": apiServer, "ops": opsServer} {
		name, srv := name, srv
		go func() {
			log.Info().Str("server", name).Str("addr", srv.Addr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Str("server", name).Msg("HTTP server error")
			}
		}()
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down job-tracking...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server forced shutdown")
	}
	dispatcher.Stop()
	if err := tracking.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracking sessions did not stop cleanly")
	}
	cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced shutdown")
	}

	log.Info().Msg("job-tracking stopped")
}

// pushChannel selects the push transport. The returned close function
// releases whatever the transport opened.
func pushChannel(
	ctx context.Context,
	cfg *config.Config,
	rdb *goredis.Client,
	log zerolog.Logger,
) (ports.PositionPublisher, ports.PositionSubscriber, func()) {
	if cfg.PushTransport != config.TransportKafka {
		ch := redis.NewPositionChannel(rdb, log)
		return ch, ch, func() {}
	}

	writer := kafka.NewPositionWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	hub := kafka.NewPositionHub(kafka.HubConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, log)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error().Err(err).Msg("kafka position hub stopped")
		}
	}()

	return writer, hub, func() {
		_ = hub.Close()
		_ = writer.Close()
	}
}
