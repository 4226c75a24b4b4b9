package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"Watchdog/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

var (
	// ErrNoHandlers is returned by Start when nothing was registered.
	ErrNoHandlers = errors.New("kafka: no handlers registered")
	// ErrConsumerStarted is returned when handlers are registered after Start.
	ErrConsumerStarted = errors.New("kafka: consumer already started")
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The message goes straight to the DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type partitionKey struct {
	topic     string
	partition int
}

type message struct {
	topic string
	data  []byte
	km    kafka.Message
}

// Consumer fans messages from per-topic readers into a worker pool.
// Messages from one partition are handled one at a time.
type Consumer struct {
	cfg     *ConsumerConfig
	log     *logger.Logger
	metrics *consumerMetrics
	hook    ConsumerHook

	mu        sync.Mutex
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	partLocks map[partitionKey]*sync.Mutex
	started   bool

	dlq       messageWriter
	newReader func(topic string) messageReader

	msgChan  chan *message
	readCtx  context.Context
	stopRead context.CancelFunc
	workCtx  context.Context
	stopWork context.CancelFunc
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
	randMu   sync.Mutex
	rnd      *rand.Rand
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "watchdog",
		StartOffset: "latest",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	readCtx, stopRead := context.WithCancel(context.Background())
	workCtx, stopWork := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		log:       cfg.Logger.With("kafka_consumer"),
		metrics:   newConsumerMetrics(cfg.Registerer),
		hook:      NoopHook{},
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		partLocks: make(map[partitionKey]*sync.Mutex),
		msgChan:   make(chan *message, cfg.BufferSize),
		readCtx:   readCtx,
		stopRead:  stopRead,
		workCtx:   workCtx,
		stopWork:  stopWork,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.newReader = c.kafkaReader

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	return c, nil
}

func (c *Consumer) kafkaReader(topic string) messageReader {
	start := kafka.LastOffset
	if c.cfg.StartOffset == "earliest" {
		start = kafka.FirstOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		Topic:       topic,
		GroupID:     c.cfg.GroupID,
		MinBytes:    c.cfg.MinBytes,
		MaxBytes:    c.cfg.MaxBytes,
		StartOffset: start,
	})
}

// SetHook sets a hook implementation for lifecycle events.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a message handler for its topic. A second handler
// for the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrConsumerStarted
	}
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return nil
	}
	c.handlers[topic] = handler
	return nil
}

// Start creates a reader per registered topic and starts the worker pool.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrConsumerStarted
	}
	if len(c.handlers) == 0 {
		return ErrNoHandlers
	}
	c.started = true

	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.readLoop(topic, reader)
	}

	c.log.Info("consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops reading, drains queued messages and closes readers.
// If ctx expires first, in-flight handlers see a cancelled context.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		c.stopRead()
		c.readWG.Wait()
		close(c.msgChan)

		stopErr = waitGroup(ctx, &c.workWG)
		c.stopWork()

		c.mu.Lock()
		defer c.mu.Unlock()
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("consumer stopped")
		}
	})

	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) readLoop(topic string, reader messageReader) {
	defer c.readWG.Done()

	for {
		km, err := reader.FetchMessage(c.readCtx)
		if err != nil {
			if c.readCtx.Err() != nil {
				return
			}
			c.log.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, 1)):
				continue
			case <-c.readCtx.Done():
				return
			}
		}

		select {
		case c.msgChan <- &message{topic: topic, data: km.Value, km: km}:
			c.metrics.queue.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.readCtx.Done():
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()

	for msg := range c.msgChan {
		c.metrics.queue.WithLabelValues(msg.topic).Set(float64(len(c.msgChan)))
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	attempts, err := c.process(handler, msg)
	result := "ok"
	if err != nil {
		result = "error"
		safeOnError(c.hook, c.workCtx, msg.topic, msg.km, msg.data, err)
		c.log.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err),
		)
		if c.deadLetter(msg, err) {
			result = "dlq"
		}
	}
	c.metrics.handled.WithLabelValues(msg.topic, result).Inc()
	c.metrics.latency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())

	// commit after DLQ too so a poison message does not loop forever
	if err == nil || c.dlq != nil {
		if reader := c.reader(msg.topic); reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
}

func (c *Consumer) process(handler MessageHandler, msg *message) (int, error) {
	attempts := 0
	for {
		attempts++
		err := c.invoke(handler, msg)
		if err == nil || attempts > c.cfg.RetryMax || IsPermanent(err) {
			return attempts, err
		}
		var herr *HookError
		if errors.As(err, &herr) {
			return attempts, err
		}
		select {
		case <-time.After(c.backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.workCtx.Done():
			return attempts, err
		}
	}
}

func (c *Consumer) invoke(handler MessageHandler, msg *message) (err error) {
	hctx, hmsg, hdata, err := safeBefore(c.hook, c.workCtx, msg.topic, msg.km, msg.data)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
		safeAfter(c.hook, hctx, msg.topic, hmsg, hdata, err)
	}()
	return handler.Handle(hctx, hdata)
}

func (c *Consumer) deadLetter(msg *message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(msg.topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, msg.km.Headers...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.data,
		Time:    time.Now(),
		Headers: headers,
	}); err != nil {
		c.log.Error("dlq write failed", logger.String("dlq_topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	c.metrics.deadLetter.WithLabelValues(msg.topic).Inc()
	return true
}

func (c *Consumer) commitWithRetry(reader messageReader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(c.backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed", logger.Int("attempts", max), logger.Error(err))
	return err
}

func (c *Consumer) reader(topic string) messageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readers[topic]
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// backoff doubles from min per attempt, capped at max, minus up to 50% jitter.
func (c *Consumer) backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	c.randMu.Lock()
	jitter := time.Duration(c.rnd.Int63n(half))
	c.randMu.Unlock()
	return exp - jitter
}
