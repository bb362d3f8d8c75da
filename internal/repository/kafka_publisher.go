package repository

import (
	"context"
	"encoding/binary"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/domain/repository"
	pkgkafka "BriefMaker/pkg/kafka"
)

// KafkaBriefPublisher implements BriefPublisher for Kafka. The key is the
// window id, big-endian, so a compacted topic keeps one record per window.
type KafkaBriefPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBriefPublisher(producer *pkgkafka.Producer, topic string) *KafkaBriefPublisher {
	return &KafkaBriefPublisher{producer: producer, topic: topic}
}

func (p *KafkaBriefPublisher) PublishBrief(ctx context.Context, b models.Brief) error {
	return p.producer.Publish(ctx, p.topic, BriefKey(b.ID), b.Bytes)
}

// Close is a no-op; the producer is shared and closed by the app.
func (p *KafkaBriefPublisher) Close() error {
	return nil
}

func BriefKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

var _ repository.BriefPublisher = (*KafkaBriefPublisher)(nil)
