package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/pkg/models"
)

const apiKeyCacheTTL = 10 * time.Minute

type AuthConfig struct {
	RedisClient *redis.Client
	DB          *gorm.DB
}

// IngestAuth authenticates the X-API-Key header against the api_keys table,
// caching lookups in Redis, and resolves the calling tenant into the request
// context. An X-Idempotency-Key header replays the cached response of an
// earlier identical request instead of ingesting twice.
func IngestAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		var orgID, accountID string
		cacheKey := fmt.Sprintf("apikey:%s", apiKey)
		cached, err := cfg.RedisClient.HGetAll(ctx, cacheKey).Result()
		if err == nil && len(cached) > 0 {
			orgID = cached["org_id"]
			accountID = cached["account_id"]
		} else {
			var record models.APIKey
			err := cfg.DB.First(&record, "hash = ? AND active", apiKey).Error
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			orgID = record.OrgID
			accountID = record.AccountID

			cfg.RedisClient.HSet(ctx, cacheKey, map[string]any{
				"org_id":     orgID,
				"account_id": accountID,
			})
			cfg.RedisClient.Expire(ctx, cacheKey, apiKeyCacheTTL)
		}

		c.Set("org_id", orgID)
		c.Set("account_id", accountID)

		if idempotencyKey := c.GetHeader("X-Idempotency-Key"); idempotencyKey != "" {
			c.Set("idempotency_key", idempotencyKey)
			replayKey := fmt.Sprintf("idempotency:%s:%s", orgID, idempotencyKey)
			if resp, err := cfg.RedisClient.Get(ctx, replayKey).Result(); err == nil {
				c.Data(http.StatusOK, "application/json", []byte(resp))
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
