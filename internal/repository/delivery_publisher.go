package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/logger"
)

// AlertProducer is the subset of pkg/kafka.Producer the publisher needs.
type AlertProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value any, headers ...pkgkafka.Header) error
	Close() error
}

// KafkaDeliveryPublisher forwards routed alerts to a Kafka topic. As a router
// listener it enqueues without blocking and publishes from its own goroutine.
type KafkaDeliveryPublisher struct {
	producer AlertProducer
	topic    string
	timeout  time.Duration
	metrics  domrepo.Metrics
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
	ch     chan models.AlertDelivery
	wg     sync.WaitGroup
}

// NewKafkaDeliveryPublisher starts the publishing goroutine. Close stops it.
func NewKafkaDeliveryPublisher(p AlertProducer, topic string, buffer int, metrics domrepo.Metrics, log *logger.Logger) *KafkaDeliveryPublisher {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logger.NewNop()
	}
	k := &KafkaDeliveryPublisher{
		producer: p,
		topic:    topic,
		timeout:  5 * time.Second,
		metrics:  metrics,
		log:      log.With("delivery_publisher"),
		ch:       make(chan models.AlertDelivery, buffer),
	}
	k.wg.Add(1)
	go k.loop()
	return k
}

func (k *KafkaDeliveryPublisher) loop() {
	defer k.wg.Done()
	for d := range k.ch {
		ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		_ = k.Publish(ctx, d)
		cancel()
	}
}

// Publish writes d synchronously, keyed by alert ID with a fresh trace_id header.
func (k *KafkaDeliveryPublisher) Publish(ctx context.Context, d models.AlertDelivery) error {
	traceID := uuid.NewString()
	err := k.producer.Publish(ctx, k.topic, []byte(d.Alert.ID), d, pkgkafka.Header{Key: pkgkafka.HeaderTraceID, Value: traceID})
	if err != nil {
		k.metrics.RecordError("delivery_publish")
		k.log.Error("alert delivery failed",
			logger.String("alert_id", d.Alert.ID),
			logger.String("trace_id", traceID),
			logger.Error(err),
		)
		return fmt.Errorf("publish alert %s: %w", d.Alert.ID, err)
	}
	k.log.Debug("alert delivered", logger.String("alert_id", d.Alert.ID), logger.String("trace_id", traceID))
	return nil
}

// OnAlert enqueues d. When the buffer is full the delivery is dropped.
func (k *KafkaDeliveryPublisher) OnAlert(d models.AlertDelivery) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	select {
	case k.ch <- d:
	default:
		k.metrics.RecordError("delivery_dropped")
		k.log.Warn("delivery buffer full, alert dropped", logger.String("alert_id", d.Alert.ID))
	}
}

// Close drains queued deliveries and closes the producer.
func (k *KafkaDeliveryPublisher) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.ch)
	k.mu.Unlock()

	k.wg.Wait()
	return k.producer.Close()
}

var _ domrepo.DeliveryPublisher = (*KafkaDeliveryPublisher)(nil)
