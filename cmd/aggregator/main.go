package main

import (
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
	"github.com/signalmesh/hermes/pkg/aggregator"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/database"
	"github.com/signalmesh/hermes/pkg/kafka"
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

	metrics.InitAggregatorMetrics()
	metrics.InitKafkaMetrics()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	aggregationRepo := repositories.NewAggregationRepository(db)
	job := aggregator.NewJob(aggregationRepo, producer, cfg.Kafka.IntakeTopic, cfg.Aggregator, zlog)

	scheduler, err := aggregator.NewScheduler(job, cfg.Aggregator.Schedule, zlog)
	if err != nil {
		zlog.Fatal("invalid aggregator schedule", zap.Error(err))
	}
	scheduler.Start()
	zlog.Info("aggregator started", zap.String("schedule", cfg.Aggregator.Schedule))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: ":8082", Handler: middlewares.MetricsMiddleware(mux)}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zlog.Info("Shutdown signal received", zap.String("signal", sig.String()))

	scheduler.Stop()
	if err := producer.Close(); err != nil {
		zlog.Error("Error closing Kafka producer", zap.Error(err))
	}
	server.Close()
}
