// cmd/api-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ihydro/internal/assistant"
	"ihydro/internal/common/config"
	"ihydro/internal/common/database"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/observability"
	"ihydro/internal/ingest"
	"ihydro/internal/server"
	"ihydro/internal/storage"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s abandoned after %d attempts: %w", operationName, i+1, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	if err := config.ValidateServer(cfg); err != nil {
		zapLog.Fatal("invalid configuration", zap.Error(err))
	}

	zapLog.Info("Starting iHydro API server...", zap.String("version", cfg.App.Version))

	obs := observability.New("ihydro-api", cfg.Tracing, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pg *database.PostgresClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		return nil
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	var redis *database.RedisClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := redis.Ping(ctx); err != nil {
			_ = redis.Close()
			return err
		}
		return nil
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	readings := storage.NewReadingStore(pg, log)
	chats := storage.NewChatStore(pg)
	if err := readings.Migrate(ctx); err != nil {
		zapLog.Fatal("reading migrations failed", zap.Error(err))
	}
	if err := chats.Migrate(ctx); err != nil {
		zapLog.Fatal("chat migrations failed", zap.Error(err))
	}

	cache := storage.NewLatestCache(redis.Client, config.GetDuration(cfg.Server.CacheTTL))
	hub := server.NewHub(0)

	opts := []ingest.Option{ingest.WithCache(cache), ingest.WithBroadcaster(hub)}

	checks := []server.Option{
		server.WithCache(cache),
		server.WithReadinessCheck("postgres", pg.Ping),
		server.WithReadinessCheck("redis", redis.Ping),
	}

	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(ctx, func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		archive := storage.NewArchive(esClient, cfg.Database.Elasticsearch.Index)
		if err := archive.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		}
		opts = append(opts, ingest.WithIndexer(archive))
		checks = append(checks, server.WithReadinessCheck("elasticsearch", esClient.Ping))
		zapLog.Info("Elasticsearch connected successfully")
	}

	if cfg.Kafka.Enabled {
		publisher := ingest.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.App.Name)
		defer publisher.Close()
		opts = append(opts, ingest.WithPublisher(publisher))
		zapLog.Info("Kafka publisher enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	pipeline := ingest.NewPipeline(readings, log, opts...)
	chat := assistant.New(assistant.LoadConfig(cfg), chats, log)
	srv := server.New(server.LoadConfig(cfg), readings, pipeline, chat, hub, log, checks...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.MQTT.Enabled {
		subscriber := ingest.NewMQTTSubscriber(&ingest.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
		}, pipeline, log)
		g.Go(func() error {
			err := subscriber.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("API server stopped with error", zap.Error(err))
	}
	zapLog.Info("API server stopped")
}
