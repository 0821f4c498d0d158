package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/signalmesh/hermes/metrics"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

type Header = kafka.Header

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...Header) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	})
	if err != nil {
		metrics.KafkaPublisherFailure.WithLabelValues(topic).Inc()
		return err
	}
	metrics.KafkaPublisherSuccess.WithLabelValues(topic).Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
