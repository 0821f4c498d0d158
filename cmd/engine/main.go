package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/logger"
	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/middlewares"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/database"
	"github.com/signalmesh/hermes/pkg/dedup"
	"github.com/signalmesh/hermes/pkg/engine"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/processors"
	"github.com/signalmesh/hermes/pkg/recipients"
	"github.com/signalmesh/hermes/pkg/redelivery"
	"github.com/signalmesh/hermes/pkg/repositories"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system env")
	}
	cfg := config.LoadOrDefault(os.Getenv("CONFIG_FILE"))

	zlog, err := logger.InitLogger()
	if err != nil {
		panic("Failed to initialize zap logger: " + err.Error())
	}
	defer zlog.Sync()

	db, err := database.InitDB(cfg.Database.DSN)
	if err != nil {
		zlog.Fatal("database init failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("database migration failed", zap.Error(err))
	}

	metrics.InitEngineMetrics()
	metrics.InitKafkaMetrics()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	intakeConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.IntakeTopic, cfg.Kafka.ConsumerGroup)
	returnConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ReturnTopic, cfg.Kafka.OutcomeGroup)

	endpointRepo := repositories.NewEndpointRepository(db)
	historyRepo := repositories.NewHistoryRepository(db)
	dedupRepo := repositories.NewDedupRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)

	gate := dedup.NewGate(dedupRepo, zlog, dedup.SubscriptionsStrategy{})
	reinjector := redelivery.NewReinjector(producer, cfg.Kafka.IntakeTopic, cfg.Engine.MaxReinjections, zlog)

	directory := recipients.NewHTTPDirectory(cfg.Recipients.BaseURL, cfg.Recipients.Token, cfg.Recipients.Timeout)
	resolver := recipients.NewResolver(directory, recipients.RetryPolicy{
		MaxAttempts: cfg.Recipients.MaxAttempts,
		Initial:     cfg.Recipients.InitialBackoff,
		Max:         cfg.Recipients.MaxBackoff,
	}, cfg.Recipients.CacheTTL, cfg.Recipients.PageSize, zlog)

	registry := processors.NewRegistry(
		processors.NewWebhookAdapter(cfg.Engine.WebhookTimeout, reinjector, zlog),
		processors.NewEmailAdapter(resolver, subscriptionRepo, producer, cfg.Kafka.ConnectorTopic, zlog),
		processors.NewChatAdapter(producer, cfg.Kafka.ConnectorTopic, zlog),
	)
	router := engine.NewRouter(endpointRepo, historyRepo, registry, zlog)

	intake := engine.NewIntakeConsumer(intakeConsumer, gate, router, cfg.Engine, zlog)
	outcome := engine.NewOutcomeConsumer(returnConsumer, historyRepo, reinjector, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		intake.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		outcome.Run(ctx)
		done <- struct{}{}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: ":8081", Handler: middlewares.MetricsMiddleware(mux)}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("metrics server failed", zap.Error(err))
		}
	}()
	zlog.Info("engine started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("intake_topic", cfg.Kafka.IntakeTopic),
		zap.String("ack_mode", cfg.Engine.AckMode))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zlog.Info("Shutdown signal received", zap.String("signal", sig.String()))

	// Stop fetching first, then let in-flight work drain before closing the
	// producer the adapters publish through.
	cancel()
	intakeConsumer.Close()
	returnConsumer.Close()
	<-done
	<-done

	if err := producer.Close(); err != nil {
		zlog.Error("Error closing Kafka producer", zap.Error(err))
	}
	server.Close()
}
