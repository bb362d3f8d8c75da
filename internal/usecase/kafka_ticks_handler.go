package usecase

import (
	"context"
	"errors"
	"time"

	"BriefMaker/internal/domain/models"
	domrepo "BriefMaker/internal/domain/repository"
	pkgkafka "BriefMaker/pkg/kafka"
)

// TickSubmitter accepts raw tick batches.
type TickSubmitter interface {
	Submit(ctx context.Context, raw []byte) error
}

// TickBatchHandler consumes raw tick batches from Kafka and submits them to
// the pipeline.
type TickBatchHandler struct {
	topic     string
	submitter TickSubmitter
	metrics   domrepo.Metrics
}

func NewTickBatchHandler(topic string, submitter TickSubmitter, metrics domrepo.Metrics) *TickBatchHandler {
	return &TickBatchHandler{topic: topic, submitter: submitter, metrics: metrics}
}

func (h *TickBatchHandler) Topic() string { return h.topic }

// Handle submits one batch. Out of sequence events are dropped without a
// retry. Malformed batches go straight to the DLQ; other errors go back to
// the consumer for retry.
func (h *TickBatchHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	err := h.submitter.Submit(ctx, b)
	h.metrics.RecordLatency("submit_seconds", time.Since(start).Seconds())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSequenceViolation):
		return nil
	case errors.Is(err, models.ErrBatchTooShort):
		h.metrics.RecordError("consumer_submit")
		return pkgkafka.Permanent(err)
	default:
		h.metrics.RecordError("consumer_submit")
		return err
	}
}

// ObserveConsume is a pkgkafka.TimingObserver that records consumer lag and
// handling time.
func (h *TickBatchHandler) ObserveConsume(_ string, lag, took time.Duration, _ error) {
	h.metrics.RecordLatency("consume_lag_seconds", lag.Seconds())
	h.metrics.RecordLatency("consume_seconds", took.Seconds())
}

var _ pkgkafka.MessageHandler = (*TickBatchHandler)(nil)
