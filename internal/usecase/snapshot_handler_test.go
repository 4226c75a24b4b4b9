package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Watchdog/internal/domain/models"
	mid "Watchdog/internal/middleware"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/metrics"
)

type stubProcessor struct {
	got []models.MarketInputs
	err error
}

func (p *stubProcessor) Process(_ context.Context, in models.MarketInputs) error {
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, in)
	return nil
}

func TestSnapshotHandlerDecodesSingleAndBatch(t *testing.T) {
	proc := &stubProcessor{}
	h := NewSnapshotHandler("watchdog.snapshots", proc, metrics.NewNop(), nil)
	assert.Equal(t, "watchdog.snapshots", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"BTC","currentPrice":64000,"whaleIntel":{"accumulationScore":80}}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(` [{"symbol":"ETH","currentPrice":3200},{"symbol":"SOL","currentPrice":150}]`)))

	require.Len(t, proc.got, 3)
	assert.Equal(t, "BTC", proc.got[0].Symbol)
	require.NotNil(t, proc.got[0].WhaleIntel)
	assert.Equal(t, 80.0, proc.got[0].WhaleIntel.AccumulationScore)
	assert.Equal(t, "SOL", proc.got[2].Symbol)
}

func TestSnapshotHandlerBadPayloadIsPermanent(t *testing.T) {
	h := NewSnapshotHandler("t", &stubProcessor{}, metrics.NewNop(), nil)

	err := h.Handle(context.Background(), []byte(`{"symbol":`))
	require.Error(t, err)
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(context.Background(), []byte("  "))
	assert.True(t, pkgkafka.IsPermanent(err))
}

func TestSnapshotHandlerInvalidSnapshot(t *testing.T) {
	invalid := &stubProcessor{err: mid.ErrInvalidSnapshot}
	h := NewSnapshotHandler("t", invalid, metrics.NewNop(), nil)

	err := h.Handle(context.Background(), []byte(`{"currentPrice":1}`))
	assert.True(t, pkgkafka.IsPermanent(err))

	// invalid entries inside a batch are skipped
	assert.NoError(t, h.Handle(context.Background(), []byte(`[{"currentPrice":1},{"currentPrice":2}]`)))
}

func TestSnapshotHandlerSinkErrorIsRetryable(t *testing.T) {
	h := NewSnapshotHandler("t", &stubProcessor{err: errors.New("down")}, metrics.NewNop(), nil)
	err := h.Handle(context.Background(), []byte(`{"symbol":"BTC"}`))
	require.Error(t, err)
	assert.False(t, pkgkafka.IsPermanent(err))
}

func TestSnapshotHandlerThroughPipeline(t *testing.T) {
	w := newTestWatchdog(newMemStore())
	pipe := mid.NewSnapshotPipeline(w, mid.WithMaxRPS(0, 0))
	h := NewSnapshotHandler("t", pipe, metrics.NewNop(), nil)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"BTC","currentPrice":64000}`)))
	latest, ok := w.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, 64000.0, latest.CurrentPrice)

	err := h.Handle(context.Background(), []byte(`{"symbol":"BTC","currentPrice":-5}`))
	assert.True(t, pkgkafka.IsPermanent(err))
}
