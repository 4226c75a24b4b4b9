package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/cache"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/metrics"
)

func TestSynthesisStoreRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	store := NewCacheSynthesisStore(mc, time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, "BTC")
	assert.ErrorIs(t, err, models.ErrNoData)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	syn := models.Synthesis{ID: "syn-1", Symbol: "BTC", ThreatLevel: models.ThreatHigh, PressureScore: 72, ScannedAt: at}
	require.NoError(t, store.Save(ctx, syn))

	got, err := store.Get(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "syn-1", got.ID)
	assert.Equal(t, models.ThreatHigh, got.ThreatLevel)
	assert.Equal(t, 72.0, got.PressureScore)
	assert.True(t, got.ScannedAt.Equal(at))

	assert.Error(t, store.Save(ctx, models.Synthesis{}))
}

type capturedMessage struct {
	topic   string
	key     string
	value   any
	headers []pkgkafka.Header
}

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []capturedMessage
	err    error
	closed bool
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value any, headers ...pkgkafka.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, capturedMessage{topic: topic, key: string(key), value: value, headers: headers})
	return nil
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProducer) sent() []capturedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedMessage(nil), p.msgs...)
}

func delivery(id string) models.AlertDelivery {
	return models.AlertDelivery{
		Alert:         models.WatchdogAlert{ID: id, Title: "Buy-side pressure building on BTC", Priority: models.PriorityHigh},
		ShouldSpeak:   true,
		ShouldDisplay: true,
		ShouldNotify:  true,
	}
}

func TestDeliveryPublisherPublishesKeyedWithTrace(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaDeliveryPublisher(prod, "watchdog.alerts", 4, metrics.NewNop(), nil)

	pub.OnAlert(delivery("alert_1"))
	pub.OnAlert(delivery("alert_2"))
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	msgs := prod.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "watchdog.alerts", msgs[0].topic)
	assert.Equal(t, "alert_1", msgs[0].key)
	require.Len(t, msgs[0].headers, 1)
	assert.Equal(t, pkgkafka.HeaderTraceID, msgs[0].headers[0].Key)
	_, err := uuid.Parse(msgs[0].headers[0].Value)
	assert.NoError(t, err)
	assert.NotEqual(t, msgs[0].headers[0].Value, msgs[1].headers[0].Value)

	b, err := json.Marshal(msgs[1].value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"alert_2"`)
	assert.True(t, prod.closed)

	// after close deliveries are ignored
	pub.OnAlert(delivery("alert_3"))
	assert.Len(t, prod.sent(), 2)
}

func TestDeliveryPublisherWrapsErrors(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	pub := NewKafkaDeliveryPublisher(prod, "watchdog.alerts", 1, metrics.NewNop(), nil)
	defer pub.Close()

	err := pub.Publish(context.Background(), delivery("alert_9"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert_9")
}
