package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/config"
	"github.com/signalmesh/hermes/pkg/dedup"
	"github.com/signalmesh/hermes/pkg/kafka"
	"github.com/signalmesh/hermes/pkg/redelivery"
	"github.com/signalmesh/hermes/pkg/types"
)

// MessageIDHeader optionally carries a producer-assigned message id. It is
// validated and counted but the event id remains authoritative.
const MessageIDHeader = "x-hermes-message-id"

// MessageSource is the slice of the Kafka consumer the intake loop needs.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Processor handles one accepted envelope.
type Processor interface {
	Process(ctx context.Context, env *types.Envelope) error
}

// IntakeConsumer reads the intake stream, runs the deduplication gate and
// hands accepted envelopes to the router.
//
// Two acknowledgment modes exist. "post" commits after processing, so a
// failed event is redelivered; it processes one message at a time. "pre"
// commits right after parsing and fans work out to a bounded worker pool,
// trading the redelivery guarantee for throughput.
type IntakeConsumer struct {
	source    MessageSource
	gate      *dedup.Gate
	processor Processor
	cfg       config.EngineConfig
	log       *zap.Logger

	queue      chan *types.Envelope
	wg         sync.WaitGroup
	workCancel context.CancelFunc
}

func NewIntakeConsumer(source MessageSource, gate *dedup.Gate, processor Processor, cfg config.EngineConfig, log *zap.Logger) *IntakeConsumer {
	return &IntakeConsumer{
		source:    source,
		gate:      gate,
		processor: processor,
		cfg:       cfg,
		log:       log,
	}
}

// Run consumes until ctx is canceled or the source is closed. In "pre" mode
// it drains the in-flight work before returning, bounded by DrainTimeout.
func (c *IntakeConsumer) Run(ctx context.Context) {
	preAck := c.cfg.AckMode == "pre"
	if preAck {
		c.startWorkers()
	}

	for {
		m, err := c.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			c.log.Error("intake fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		env, ok := c.parse(m)
		if !ok {
			// Poison messages are committed so they never wedge the
			// partition.
			c.commit(ctx, m)
			continue
		}
		metrics.EventsConsumedTotal.WithLabelValues(env.Event.Bundle, env.Event.Application).Inc()

		if preAck {
			c.commit(ctx, m)
			select {
			case c.queue <- env:
			case <-ctx.Done():
			}
			continue
		}

		if err := c.handle(ctx, env); err != nil {
			metrics.ProcessingErrorsTotal.Inc()
			c.log.Error("event processing failed, leaving uncommitted",
				zap.String("event_id", env.Event.ID.String()),
				zap.String("org_id", env.Event.OrgID),
				zap.Error(err))
			continue
		}
		c.commit(ctx, m)
	}

	if preAck {
		c.drain()
	}
}

// startWorkers runs the pool on its own context, detached from the fetch
// loop's: canceling the fetch context stops intake, but already-queued
// envelopes must still complete during the drain window. The pool context is
// canceled only when the drain budget runs out.
func (c *IntakeConsumer) startWorkers() {
	workCtx, cancel := context.WithCancel(context.Background())
	c.workCancel = cancel
	c.queue = make(chan *types.Envelope, c.cfg.QueueSize)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for env := range c.queue {
				if err := c.handle(workCtx, env); err != nil {
					metrics.ProcessingErrorsTotal.Inc()
					c.log.Error("event processing failed",
						zap.String("event_id", env.Event.ID.String()),
						zap.String("org_id", env.Event.OrgID),
						zap.Error(err))
				}
			}
		}()
	}
}

func (c *IntakeConsumer) drain() {
	defer c.workCancel()
	close(c.queue)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.DrainTimeout):
		c.log.Warn("drain timeout reached, abandoning in-flight events",
			zap.Duration("timeout", c.cfg.DrainTimeout))
		c.workCancel()
		<-done
	}
}

// handle runs the dedup gate and the router for one envelope. Reinjected
// envelopes were already accepted once and skip the gate.
func (c *IntakeConsumer) handle(ctx context.Context, env *types.Envelope) error {
	if env.ReinjectionCount == 0 {
		fresh, err := c.gate.IsNew(&env.Event)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}
	return c.processor.Process(ctx, env)
}

// parse decodes an intake message. Fresh events arrive as bare Event JSON;
// reinjected ones carry the counter header and arrive as full envelopes.
func (c *IntakeConsumer) parse(m kafka.Message) (*types.Envelope, bool) {
	c.countMessageID(m)

	if raw := kafka.HeaderValue(m, redelivery.ReinjectionCountHeader); raw != "" {
		var env types.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			metrics.EventsRejectedTotal.Inc()
			c.log.Error("unparseable reinjected envelope", zap.Error(err))
			return nil, false
		}
		// The header's presence alone marks the envelope as reinjected; a
		// garbled value must not send a retry back through the dedup gate,
		// where it would be dropped as a duplicate.
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			n = 1
		}
		if env.ReinjectionCount < n {
			env.ReinjectionCount = n
		}
		return &env, true
	}

	var event types.Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		metrics.EventsRejectedTotal.Inc()
		c.log.Error("unparseable intake message", zap.Error(err))
		return nil, false
	}
	if event.ID == uuid.Nil || event.OrgID == "" {
		metrics.EventsRejectedTotal.Inc()
		c.log.Error("intake message missing id or org id")
		return nil, false
	}
	return &types.Envelope{Event: event}, true
}

func (c *IntakeConsumer) countMessageID(m kafka.Message) {
	raw := kafka.HeaderValue(m, MessageIDHeader)
	if raw == "" {
		return
	}
	if _, err := uuid.Parse(raw); err != nil {
		metrics.MessageIDTotal.WithLabelValues("invalid").Inc()
		return
	}
	metrics.MessageIDTotal.WithLabelValues("valid").Inc()
}

func (c *IntakeConsumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.source.Commit(ctx, m); err != nil {
		c.log.Error("offset commit failed", zap.Error(err))
	}
}
