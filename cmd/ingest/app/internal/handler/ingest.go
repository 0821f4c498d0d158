package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/types"
)

const idempotencyTTL = 24 * time.Hour

// MessageIDHeader mirrors the engine-side header: the ingest API stamps every
// published message with the event id it assigned.
const MessageIDHeader = "x-hermes-message-id"

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

type IngestRequest struct {
	Bundle      string          `json:"bundle" binding:"required"`
	Application string          `json:"application" binding:"required"`
	EventType   string          `json:"event_type" binding:"required"`
	Timestamp   time.Time       `json:"timestamp"`
	Context     map[string]any  `json:"context"`
	Payload     json.RawMessage `json:"payload"`
}

type IngestHandler struct {
	producer    Publisher
	redisClient *redis.Client
	intakeTopic string
	log         *zap.Logger
}

func NewIngestHandler(producer Publisher, redisClient *redis.Client, intakeTopic string, log *zap.Logger) *IngestHandler {
	return &IngestHandler{
		producer:    producer,
		redisClient: redisClient,
		intakeTopic: intakeTopic,
		log:         log,
	}
}

// Ingest accepts one event and publishes it to the intake stream. The caller
// gets the assigned event id back; delivery itself is asynchronous.
func (h *IngestHandler) Ingest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		orgID := c.GetString("org_id")
		event := types.Event{
			ID:          uuid.New(),
			AccountID:   c.GetString("account_id"),
			OrgID:       orgID,
			Bundle:      req.Bundle,
			Application: req.Application,
			EventType:   req.EventType,
			Timestamp:   req.Timestamp,
			Context:     req.Context,
			Payload:     req.Payload,
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		raw, err := json.Marshal(event)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode event"})
			return
		}

		ctx := c.Request.Context()
		err = h.producer.Publish(ctx, h.intakeTopic, []byte(orgID), raw,
			kafka.Header{Key: MessageIDHeader, Value: []byte(event.ID.String())})
		if err != nil {
			h.log.Error("intake publish failed",
				zap.String("org_id", orgID),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event could not be accepted"})
			return
		}

		response := gin.H{"id": event.ID.String(), "status": "accepted"}
		if idempotencyKey := c.GetString("idempotency_key"); idempotencyKey != "" && h.redisClient != nil {
			body, _ := json.Marshal(response)
			replayKey := fmt.Sprintf("idempotency:%s:%s", orgID, idempotencyKey)
			h.redisClient.Set(ctx, replayKey, body, idempotencyTTL)
		}

		h.log.Info("event accepted",
			zap.String("org_id", orgID),
			zap.String("event_id", event.ID.String()),
			zap.String("bundle", req.Bundle),
			zap.String("application", req.Application),
			zap.String("event_type", req.EventType))
		c.JSON(http.StatusAccepted, response)
	}
}
