package pressure

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
	"Watchdog/pkg/logger"
)

// Scanner fuses whale, liquidity, cluster and entity-risk snapshots into a
// single pressure score per scan. Safe for concurrent use.
type Scanner struct {
	mu      sync.RWMutex
	cfg     Config
	history []models.PressureReading
	now     func() time.Time
	log     *logger.Logger

	loopMu  sync.Mutex
	stopCh  chan struct{}
	running bool
}

type Option func(*Scanner)

func WithConfig(cfg Config) Option {
	return func(s *Scanner) { s.cfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		cfg: DefaultConfig(),
		now: time.Now,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan computes one reading and appends it to the history. Absent snapshot
// sections are skipped; with nothing present the reading is 50/neutral.
func (s *Scanner) Scan(in models.MarketInputs) models.PressureReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cfg := s.cfg
	accel := s.riskAcceleration(&in, now)

	buy, sell := buyAndSell(&in, cfg.Weights)
	subs := []subScore{
		buy,
		sell,
		whale(&in, cfg.Weights),
		cluster(&in, cfg.Weights),
		liquidity(&in, cfg.Weights, cfg.LowDepth),
		risk(&in, cfg.Weights, accel),
	}

	reading := models.PressureReading{
		ID:               models.NextID("pressure"),
		Symbol:           in.Symbol,
		Score:            neutralScore,
		Direction:        models.DirectionNeutral,
		SubScores:        make(map[string]float64, len(subs)),
		RiskAcceleration: accel,
		Timestamp:        now,
	}
	for _, sub := range subs {
		reading.SubScores[sub.name] = sub.score
	}

	var weighted, weightSum, vote float64
	anyPresent := false
	for _, sub := range subs {
		if !sub.present {
			continue
		}
		anyPresent = true
		weighted += sub.weight * sub.score
		weightSum += sub.weight
		vote += sub.weight * (sub.score / 100) * sub.direction
	}
	if anyPresent && weightSum > 0 {
		reading.Score = features.Clamp100(weighted / weightSum)
		vote /= weightSum
		if in.PriceChange24h != nil {
			vote += 0.05 * features.Sign(*in.PriceChange24h)
		}
		switch {
		case vote >= cfg.DirectionThreshold:
			reading.Direction = models.DirectionUp
		case vote <= -cfg.DirectionThreshold:
			reading.Direction = models.DirectionDown
		}
	}

	reading.Drivers = drivers(subs, cfg.DriverThreshold)
	reading.ContributingEntities = entities(&in, cfg.MaxEntities)

	s.history = append(s.history, reading)
	if over := len(s.history) - cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	return reading
}

// riskAcceleration prefers the upstream delta; otherwise it is the
// least-squares slope of score per second over the last few readings, scaled by 10.
func (s *Scanner) riskAcceleration(in *models.MarketInputs, now time.Time) float64 {
	if in.EntityRisk != nil && in.EntityRisk.RiskDelta != nil {
		return *in.EntityRisk.RiskDelta
	}
	n := s.cfg.AccelerationWindow
	if len(s.history) < 2 {
		return 0
	}
	if n > len(s.history) {
		n = len(s.history)
	}
	window := s.history[len(s.history)-n:]
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, r := range window {
		xs[i] = r.Timestamp.Sub(window[0].Timestamp).Seconds()
		ys[i] = r.Score
	}
	return features.Slope(xs, ys) * 10
}

func drivers(subs []subScore, threshold float64) []string {
	hot := make([]subScore, 0, len(subs))
	for _, sub := range subs {
		if sub.present && sub.score >= threshold {
			hot = append(hot, sub)
		}
	}
	sort.SliceStable(hot, func(i, j int) bool { return hot[i].score > hot[j].score })
	out := make([]string, 0, len(hot))
	for _, sub := range hot {
		out = append(out, fmt.Sprintf("%s at %.0f", factorLabels[sub.name], sub.score))
	}
	return out
}

func entities(in *models.MarketInputs, limit int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	add := func(ids []string) {
		for _, id := range ids {
			if id == "" || len(out) >= limit {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if in.WhaleIntel != nil {
		add(in.WhaleIntel.ActiveWhales)
	}
	if in.EntityRisk != nil {
		add(in.EntityRisk.HighRiskEntities)
	}
	if in.Clusters != nil {
		add(in.Clusters.ClusterIDs)
	}
	return out
}

// Latest returns the most recent reading.
func (s *Scanner) Latest() (models.PressureReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return models.PressureReading{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns up to limit most recent readings, oldest first.
// A non-positive limit returns everything.
func (s *Scanner) History(limit int) []models.PressureReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(s.history) {
		start = len(s.history) - limit
	}
	out := make([]models.PressureReading, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// AverageScore is the mean score of the last n readings, 50 with no history.
func (s *Scanner) AverageScore(n int) float64 {
	h := s.History(n)
	if len(h) == 0 {
		return neutralScore
	}
	scores := make([]float64, len(h))
	for i, r := range h {
		scores[i] = r.Score
	}
	return features.Mean(scores)
}

func (s *Scanner) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig validates and applies a patch. On error the old config stays.
func (s *Scanner) UpdateConfig(p ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// StartContinuous calls produce, scans, and hands the reading to consume
// every interval until StopContinuous. A running loop is stopped first.
func (s *Scanner) StartContinuous(interval time.Duration, produce func() models.MarketInputs, consume func(models.PressureReading)) {
	if interval <= 0 || produce == nil {
		return
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		close(s.stopCh)
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.running = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				reading := s.Scan(produce())
				select {
				case <-stopCh:
					return
				default:
				}
				if consume != nil {
					consume(reading)
				}
			}
		}
	}()
	s.log.Debug("continuous pressure scan started", logger.Duration("interval", interval))
}

// StopContinuous stops the loop. Stopping an idle scanner is a no-op.
func (s *Scanner) StopContinuous() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.log.Debug("continuous pressure scan stopped")
}

func (s *Scanner) IsRunning() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.running
}
