package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/cmd/ingest/app/internal/handler"
	"github.com/signalmesh/hermes/middlewares"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/kafka"
)

func Notifications(router *gin.RouterGroup, p *kafka.Producer, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log *zap.Logger) {
	ingestHandler := handler.NewIngestHandler(p, redisClient, cfg.Kafka.IntakeTopic, log)
	auth := &middlewares.AuthConfig{
		RedisClient: redisClient,
		DB:          db,
	}
	limiter := middlewares.NewRateLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst)

	router.POST("/", limiter.Middleware(), middlewares.IngestAuth(auth), ingestHandler.Ingest())
}
