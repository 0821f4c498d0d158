package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/signalmesh/hermes/metrics"
)

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MaxBytes: 10e6, // 10MB
		}),
	}
}

type Message = kafka.Message

// Fetch returns the next message without committing its offset; pair it with
// Commit so the caller controls the acknowledgment discipline.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		metrics.KafkaSubscriberFailureTotal.WithLabelValues(c.reader.Config().Topic).Inc()
		return Message{}, err
	}
	return m, nil
}

func (c *Consumer) Commit(ctx context.Context, msgs ...Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// HeaderValue returns the first value of the named header, or "".
func HeaderValue(m Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
