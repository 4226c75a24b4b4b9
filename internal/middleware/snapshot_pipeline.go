package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	"Watchdog/internal/service/ratelimit"
	"Watchdog/pkg/logger"
	"Watchdog/pkg/metrics"
	"Watchdog/pkg/util"
)

// ErrInvalidSnapshot wraps every validation failure from Process.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Sink receives snapshots that passed the pipeline.
type Sink interface {
	Ingest(in models.MarketInputs) error
}

// SnapshotPipeline sits between the upstream feeds and the watchdog.
// It validates, throttles per symbol, optionally transforms, and buffers
// snapshots the sink rejected so they can be retried.
type SnapshotPipeline struct {
	sink      Sink
	metrics   domrepo.Metrics
	log       *logger.Logger
	limiter   *ratelimit.Limiter
	maxRPS    float64
	burst     int
	bufSize   int
	transform func(models.MarketInputs) models.MarketInputs
	now       func() time.Time

	bufCh   chan models.MarketInputs
	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type PipelineOption func(*SnapshotPipeline)

// WithMaxRPS sets the accepted snapshots per second per symbol. 0 disables throttling.
func WithMaxRPS(rps float64, burst int) PipelineOption {
	return func(p *SnapshotPipeline) {
		p.maxRPS = rps
		p.burst = burst
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites snapshots before throttling.
func WithTransform(fn func(models.MarketInputs) models.MarketInputs) PipelineOption {
	return func(p *SnapshotPipeline) { p.transform = fn }
}

func WithPipelineMetrics(m domrepo.Metrics) PipelineOption {
	return func(p *SnapshotPipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *SnapshotPipeline) {
		if l != nil {
			p.log = l.With("ingest")
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *SnapshotPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewSnapshotPipeline creates a pipeline feeding sink.
func NewSnapshotPipeline(sink Sink, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		sink:    sink,
		metrics: metrics.NewNop(),
		log:     logger.NewNop(),
		maxRPS:  5,
		burst:   5,
		bufSize: 256,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = ratelimit.New(p.maxRPS, p.burst)
	p.bufCh = make(chan models.MarketInputs, p.bufSize)
	return p
}

// Start launches the retry loop for buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.retryLoop(ctx, p.stopCh)
}

// Stop stops the retry loop. Snapshots still buffered stay queued.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *SnapshotPipeline) retryLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case in := <-p.bufCh:
			if err := p.sink.Ingest(in); err != nil {
				p.metrics.RecordError("ingest_retry")
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case p.bufCh <- in:
				default:
					p.metrics.RecordError("ingest_buffer_drop")
					p.log.Warn("retry buffer full, snapshot dropped", logger.String("symbol", in.Symbol))
				}
				select {
				case <-time.After(backoff):
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
				continue
			}
			backoff = 50 * time.Millisecond
		}
	}
}

// Buffered returns the number of snapshots waiting for retry.
func (p *SnapshotPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards in. Throttled snapshots are
// dropped and return nil. A sink failure buffers the snapshot and returns the error.
func (p *SnapshotPipeline) Process(_ context.Context, in models.MarketInputs) error {
	if err := validateSnapshot(in); err != nil {
		p.metrics.RecordError("ingest_validate")
		return err
	}
	if p.transform != nil {
		in = p.transform(in)
		if err := validateSnapshot(in); err != nil {
			p.metrics.RecordError("ingest_transform_invalid")
			return err
		}
	}
	if !p.limiter.AllowAt(in.Symbol, p.now()) {
		p.metrics.RecordError("ingest_throttle")
		p.log.Debug("snapshot throttled", logger.String("symbol", in.Symbol))
		return nil
	}

	if err := p.sink.Ingest(in); err != nil {
		p.metrics.RecordError("ingest_sink")
		select {
		case p.bufCh <- in:
		default:
			p.metrics.RecordError("ingest_buffer_full")
		}
		return fmt.Errorf("ingest %s: %w", in.Symbol, err)
	}
	return nil
}

func validateSnapshot(in models.MarketInputs) error {
	if in.Symbol == "" {
		return fmt.Errorf("%w: symbol empty", ErrInvalidSnapshot)
	}
	if err := util.ValidateStruct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}
