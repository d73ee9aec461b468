package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"chatcore/internal/domain"
)

// Publisher is satisfied by the Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// KafkaSink publishes notification records keyed by recipient, so one user's
// notifications stay ordered within a partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Create(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	headers := map[string]string{
		"type":     n.Type,
		"category": string(n.Category),
	}
	if err := s.publisher.Publish(ctx, s.topic, strconv.FormatInt(n.UserID, 10), payload, headers); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// MultiSink hands each notification to every sink and joins their errors.
type MultiSink []domain.NotificationSink

func (m MultiSink) Create(ctx context.Context, n *domain.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Create(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
