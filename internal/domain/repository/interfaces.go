package repository

import (
	"context"
	"errors"
	"time"

	"BriefMaker/internal/domain/models"
)

// ErrNoBriefs is returned by lookups on an empty brief table.
var ErrNoBriefs = errors.New("no briefs stored")

// BriefStorage persists finalized briefs. Inserting an id that already exists
// is ignored.
type BriefStorage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Insert(ctx context.Context, b models.Brief) error
	InsertBatch(ctx context.Context, briefs []models.Brief) error
	QueryLatest(ctx context.Context) (models.Brief, error)
	// QueryBefore returns the newest brief with id < before, or the oldest
	// brief when none is older.
	QueryBefore(ctx context.Context, before uint32) (models.Brief, error)
	QueryRange(ctx context.Context, from, to uint32, limit int) ([]models.Brief, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// MomentSource replays raw tick batches in capture order.
type MomentSource interface {
	MomentsSince(ctx context.Context, from time.Time, limit int) ([]models.StreamMoment, error)
}

// BriefPublisher fans committed briefs out to downstream consumers.
type BriefPublisher interface {
	PublishBrief(ctx context.Context, b models.Brief) error
	Close() error
}

// BriefCache keeps the most recent brief for cheap reads.
type BriefCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Metrics interface {
	RecordTicks(kind string, n int)
	RecordDropped(reason string, n int)
	RecordWindow(outcome string)
	RecordGapSeconds(n int)
	RecordSequenceViolation(kind string)
	RecordReplayProgress(at time.Time)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
