package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/cmd/ingest/app/routes"
	"github.com/signalmesh/hermes/logger"
	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/middlewares"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/database"
	"github.com/signalmesh/hermes/pkg/kafka"
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
	redisClient := database.InitRedis(cfg.Redis.Addr)

	metrics.InitAPIMetrics()
	metrics.InitKafkaMetrics()
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	zlog.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	router := gin.Default()
	router.Use(middlewares.GinMetricsMiddleware())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	routes.Notifications(v1.Group("/notifications"), producer, db, redisClient, cfg, zlog)

	go handleShutdown(producer, zlog)
	if err := router.Run(cfg.API.Addr); err != nil {
		zlog.Fatal("Failed to start server", zap.Error(err))
	}
}

func handleShutdown(producer *kafka.Producer, log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Shutdown signal received", zap.String("signal", sig.String()))

	if err := producer.Close(); err != nil {
		log.Error("Error closing Kafka producer", zap.Error(err))
	}
	os.Exit(0)
}
