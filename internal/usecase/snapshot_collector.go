package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	drepo "Watchdog/internal/domain/repository"
	mid "Watchdog/internal/middleware"
	"Watchdog/pkg/logger"
)

// SnapshotCollector pumps snapshots from a stream through the ingest pipeline,
// reconnecting when the stream fails.
type SnapshotCollector struct {
	stream  drepo.SnapshotStream
	pipe    *mid.SnapshotPipeline
	metrics drepo.Metrics
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotCollector creates a new SnapshotCollector instance.
func NewSnapshotCollector(stream drepo.SnapshotStream, pipe *mid.SnapshotPipeline, metrics drepo.Metrics, log *logger.Logger) *SnapshotCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &SnapshotCollector{stream: stream, pipe: pipe, metrics: metrics, log: log.With("collector")}
}

// IsConnected returns true if the snapshot stream is connected.
func (c *SnapshotCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and begins consuming in the background.
func (c *SnapshotCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return nil
	}
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.pipe.Start(runCtx)
	go c.run(runCtx, c.done)
	return nil
}

func (c *SnapshotCollector) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		snaps, errs := c.stream.Read(ctx)
		if err := c.consume(ctx, snaps, errs); err == nil || ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		for {
			err := c.stream.Reconnect(ctx)
			if err == nil {
				c.log.Info("stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("reconnect failed", logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

var errStreamClosed = errors.New("stream closed")

// consume returns nil when ctx ends and the stream error otherwise.
func (c *SnapshotCollector) consume(ctx context.Context, snaps <-chan *models.MarketInputs, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				if snaps == nil {
					return errStreamClosed
				}
				continue
			}
			c.log.Warn("stream failed", logger.Error(err))
			return err
		case in, ok := <-snaps:
			if !ok {
				snaps = nil
				if errs == nil {
					return errStreamClosed
				}
				continue
			}
			if in == nil {
				continue
			}
			if err := c.pipe.Process(ctx, *in); err != nil {
				c.log.Debug("snapshot not ingested", logger.String("symbol", in.Symbol), logger.Error(err))
			}
		}
	}
}

// Shutdown stops consuming, stops the pipeline and closes the stream.
func (c *SnapshotCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	c.pipe.Stop()
	return c.stream.Close()
}
