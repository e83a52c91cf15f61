package repository

import (
	"context"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	pkgkafka "FinPeer/pkg/kafka"
)

// KafkaEventPublisher publishes snapshot events keyed by bucket so that all
// events of one bucket land on one partition in order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ drepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishSnapshotUpdated(ctx context.Context, ev *models.SnapshotUpdated) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Bucket.String()), ev)
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }
