package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/models"
	"github.com/signalmesh/hermes/pkg/redelivery"
	"github.com/signalmesh/hermes/pkg/types"
)

// HistoryFinalizer moves a pending history row to its terminal status.
type HistoryFinalizer interface {
	Finalize(id uuid.UUID, status models.NotificationStatus, invocationResult bool, details []byte) error
}

// OutcomeConsumer reads connector delivery results from the return channel,
// finalizes the matching history rows and requeues retryable failures.
type OutcomeConsumer struct {
	source     MessageSource
	history    HistoryFinalizer
	reinjector *redelivery.Reinjector
	log        *zap.Logger
}

func NewOutcomeConsumer(source MessageSource, history HistoryFinalizer, reinjector *redelivery.Reinjector, log *zap.Logger) *OutcomeConsumer {
	return &OutcomeConsumer{
		source:     source,
		history:    history,
		reinjector: reinjector,
		log:        log,
	}
}

func (c *OutcomeConsumer) Run(ctx context.Context) {
	for {
		m, err := c.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			c.log.Error("outcome fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var result types.ConnectorResult
		if err := json.Unmarshal(m.Value, &result); err != nil {
			metrics.EventsRejectedTotal.Inc()
			c.log.Error("unparseable connector result", zap.Error(err))
			c.commit(ctx, m)
			continue
		}

		if err := c.Handle(ctx, &result); err != nil {
			c.log.Error("connector result handling failed, leaving uncommitted",
				zap.String("history_id", result.ID.String()),
				zap.Error(err))
			continue
		}
		c.commit(ctx, m)
	}
}

// Handle finalizes one connector result. A retryable failure below the
// attempt cap is requeued to the intake path, scoped to the recipients that
// failed; the history row of this dispatch is terminal either way.
func (c *OutcomeConsumer) Handle(ctx context.Context, result *types.ConnectorResult) error {
	if result.Successful {
		details, _ := json.Marshal(map[string]any{"status_code": result.StatusCode})
		return c.history.Finalize(result.ID, models.StatusSuccess, true, details)
	}

	kind := redelivery.FailureKind(result.FailureKind)
	if kind == "" && result.StatusCode > 0 {
		kind = redelivery.ClassifyStatus(result.StatusCode)
	}
	if kind == "" {
		kind = redelivery.KindUnknown
	}

	requeued := false
	if redelivery.ShouldRetry(&kind, result.Envelope.ReinjectionCount, c.reinjector.MaxAttempts()) {
		ok, err := c.reinjector.Reinject(ctx, result.Envelope, result.FailedRecipients)
		if err != nil {
			return err
		}
		requeued = ok
	}

	details, _ := json.Marshal(map[string]any{
		"failure_kind": string(kind),
		"status_code":  result.StatusCode,
		"error":        result.Message,
		"reinjected":   requeued,
	})
	c.log.Warn("connector delivery failed",
		zap.String("history_id", result.ID.String()),
		zap.String("org_id", result.OrgID),
		zap.String("failure_kind", string(kind)),
		zap.Bool("reinjected", requeued),
		zap.Int("failed_recipients", len(result.FailedRecipients)))
	return c.history.Finalize(result.ID, models.StatusFailedExternal, false, details)
}

func (c *OutcomeConsumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.source.Commit(ctx, m); err != nil {
		c.log.Error("offset commit failed", zap.Error(err))
	}
}
