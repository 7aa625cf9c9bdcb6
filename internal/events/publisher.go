package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhruv-2604/social-echelon-sub002/internal/client"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

// ViolationPublisher streams violation records to Kafka, keyed by subject so
// one caller's denials land on one partition in order.
type ViolationPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

var _ ratelimit.ViolationPublisher = (*ViolationPublisher)(nil)

func NewViolationPublisher(producer *client.KafkaProducer, topic string) *ViolationPublisher {
	return &ViolationPublisher{producer: producer, topic: topic}
}

func (p *ViolationPublisher) Publish(ctx context.Context, v ratelimit.Violation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal violation event: %w", err)
	}
	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(v.Subject), payload); err != nil {
		return fmt.Errorf("failed to publish violation event: %w", err)
	}
	return nil
}
