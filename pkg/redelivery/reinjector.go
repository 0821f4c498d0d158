package redelivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/types"
)

// ReinjectionCountHeader carries the redelivery counter on reinjected intake
// messages so the counter survives the round trip through Kafka.
const ReinjectionCountHeader = "x-hermes-reinjection-count"

// Publisher is the slice of the Kafka producer the reinjector needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

// Reinjector requeues retryable delivery failures to the intake path with a
// bounded counter. Once the counter reaches the cap the envelope is dropped
// and the caller finalizes the history row as a terminal failure.
type Reinjector struct {
	producer    Publisher
	intakeTopic string
	maxAttempts int
	log         *zap.Logger
}

func NewReinjector(producer Publisher, intakeTopic string, maxAttempts int, log *zap.Logger) *Reinjector {
	return &Reinjector{
		producer:    producer,
		intakeTopic: intakeTopic,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

func (r *Reinjector) MaxAttempts() int { return r.maxAttempts }

// Reinject builds the next ReinjectionEnvelope from a failed delivery and
// requeues it. failedRecipients, when non-empty, narrows the retry to the
// recipients that actually failed instead of re-sending to everyone.
// It reports whether the envelope was requeued; false means the attempt cap
// was reached and the failure is terminal.
func (r *Reinjector) Reinject(ctx context.Context, env types.Envelope, failedRecipients []string) (bool, error) {
	if env.ReinjectionCount >= r.maxAttempts {
		r.log.Info("reinjection cap reached, delivery is terminal",
			zap.String("org_id", env.Event.OrgID),
			zap.String("event_id", env.Event.ID.String()),
			zap.Int("attempts", env.ReinjectionCount))
		return false, nil
	}

	next := env
	next.ReinjectionCount++
	if len(failedRecipients) > 0 {
		next.FailedRecipients = failedRecipients
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal reinjection envelope: %w", err)
	}

	err = r.producer.Publish(ctx, r.intakeTopic, []byte(next.Event.OrgID), payload,
		kafka.Header{Key: ReinjectionCountHeader, Value: []byte(strconv.Itoa(next.ReinjectionCount))})
	if err != nil {
		return false, fmt.Errorf("reinject envelope: %w", err)
	}

	endpointType := ""
	if env.EndpointID != nil {
		endpointType = "connector"
	}
	metrics.ReinjectionsTotal.WithLabelValues(endpointType).Inc()
	r.log.Info("message reinjected",
		zap.String("org_id", next.Event.OrgID),
		zap.String("event_id", next.Event.ID.String()),
		zap.Int("reinjection_count", next.ReinjectionCount),
		zap.Int("failed_recipients", len(next.FailedRecipients)))
	return true, nil
}
