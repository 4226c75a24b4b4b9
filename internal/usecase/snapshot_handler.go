package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	mid "Watchdog/internal/middleware"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/logger"
)

// SnapshotProcessor is the ingest step a decoded snapshot is handed to.
type SnapshotProcessor interface {
	Process(ctx context.Context, in models.MarketInputs) error
}

// SnapshotHandler consumes JSON MarketInputs records from Kafka. A record may
// hold one snapshot or an array of them.
type SnapshotHandler struct {
	topic   string
	proc    SnapshotProcessor
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewSnapshotHandler(topic string, proc SnapshotProcessor, metrics domrepo.Metrics, log *logger.Logger) *SnapshotHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SnapshotHandler{topic: topic, proc: proc, metrics: metrics, log: log.With("snapshot_handler")}
}

func (h *SnapshotHandler) Topic() string { return h.topic }

func (h *SnapshotHandler) Handle(ctx context.Context, b []byte) error {
	batch, err := decodeSnapshots(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}

	var errs []error
	for _, in := range batch {
		err := h.proc.Process(ctx, in)
		switch {
		case err == nil:
			h.metrics.RecordRecords("ingest", in.Symbol, 1)
		case errors.Is(err, mid.ErrInvalidSnapshot):
			h.log.Warn("snapshot rejected",
				logger.String("symbol", in.Symbol),
				logger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
				logger.Error(err),
			)
			if len(batch) == 1 {
				return pkgkafka.Permanent(err)
			}
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func decodeSnapshots(b []byte) ([]models.MarketInputs, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, errors.New("empty snapshot record")
	}
	if trimmed[0] == '[' {
		var batch []models.MarketInputs
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode snapshot batch: %w", err)
		}
		return batch, nil
	}
	var in models.MarketInputs
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return []models.MarketInputs{in}, nil
}

var _ pkgkafka.MessageHandler = (*SnapshotHandler)(nil)
