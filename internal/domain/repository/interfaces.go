package repository

import (
	"context"
	"time"

	"Watchdog/internal/domain/models"
)

// SnapshotStream is an upstream source of market snapshots.
type SnapshotStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketInputs, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// DeliveryPublisher forwards routed alerts to a downstream channel.
type DeliveryPublisher interface {
	Publish(ctx context.Context, d models.AlertDelivery) error
	Close() error
}

// SynthesisStore keeps the most recent synthesis per symbol.
type SynthesisStore interface {
	Save(ctx context.Context, s models.Synthesis) error
	Get(ctx context.Context, symbol string) (models.Synthesis, error)
}

type Metrics interface {
	RecordScan(detector, symbol string, d time.Duration)
	RecordRecords(detector, symbol string, n int)
	RecordAlert(status string, priority string)
	SetPressureScore(symbol string, score float64)
	SetQueueDepth(n int)
	RecordError(kind string)
}
