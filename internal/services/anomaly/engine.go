package anomaly

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
	"Watchdog/pkg/logger"
)

// Engine compares each tracked metric with its rolling baseline and reports
// deviations as anomalies. Safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	baselines *features.Set
	active    []models.Anomaly
	history   []models.Anomaly
	now       func() time.Time
	log       *logger.Logger
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg: DefaultConfig(),
		now: time.Now,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.baselines = features.NewSet(e.cfg.BaselineWindow)
	return e
}

type candidate struct {
	rule  rule
	typ   models.AnomalyType
	value float64
	base  float64
	dev   float64
}

// Detect updates the baselines with the metrics present in the snapshot and
// returns the anomalies newly accepted by this call.
func (e *Engine) Detect(in models.MarketInputs) []models.Anomaly {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.pruneLocked(now)

	var cands []candidate
	for _, r := range rules {
		v, ok := r.value(&in)
		if !ok {
			continue
		}
		b := e.baselines.Get(r.metric)
		if b.Len() >= e.cfg.MinBaselineSamples {
			base := b.Mean()
			dev := features.DeviationPct(v, base)
			if math.Abs(dev) > e.cfg.threshold(r.metric, r.threshold) {
				typ := r.up
				if dev < 0 {
					typ = r.down
				}
				if typ != "" {
					cands = append(cands, candidate{rule: r, typ: typ, value: v, base: base, dev: dev})
				}
			}
		}
		b.Add(v)
	}

	out := make([]models.Anomaly, 0, len(cands))
	for _, c := range cands {
		conf := features.Confidence(c.dev)
		if conf < e.cfg.MinConfidence {
			continue
		}
		a := e.build(&in, c, conf, now)
		if e.acceptLocked(a, now) {
			out = append(out, a)
		}
	}
	if len(out) > 0 {
		e.log.Debug("anomalies detected", logger.String("symbol", in.Symbol), logger.Int("count", len(out)))
	}
	return out
}

func (e *Engine) build(in *models.MarketInputs, c candidate, conf float64, now time.Time) models.Anomaly {
	sev := e.severity(c.dev)
	radius := c.rule.radius
	if sev == models.SeverityCritical && radius == models.ImpactSector {
		radius = models.ImpactMarketWide
	}
	tpl := templates[c.typ]
	var ents []string
	if c.rule.entities != nil {
		ents = append(ents, c.rule.entities(in)...)
	}
	return models.Anomaly{
		ID:               models.NextID("anomaly"),
		Symbol:           in.Symbol,
		Type:             c.typ,
		Source:           c.rule.source,
		Severity:         sev,
		Confidence:       conf,
		Title:            tpl.title,
		Description:      fmt.Sprintf("%s moved %+.1f%% from its baseline %.4g to %.4g", c.rule.metric, c.dev, c.base, c.value),
		TriggerMetric:    c.rule.metric,
		TriggerValue:     c.value,
		BaselineValue:    c.base,
		DeviationPct:     c.dev,
		ImpactRadius:     radius,
		AffectedEntities: ents,
		SuggestedAction:  tpl.action,
		Lifetime:         models.NewLifetime(now, e.cfg.TTL),
	}
}

func (e *Engine) severity(dev float64) models.Severity {
	d := math.Abs(dev)
	t := e.cfg.Severity
	switch {
	case d >= t.Critical:
		return models.SeverityCritical
	case d >= t.High:
		return models.SeverityHigh
	case d >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// acceptLocked applies the (type, source) dedup rule: inside the window a
// newer anomaly replaces the stored one only when strictly more severe.
func (e *Engine) acceptLocked(a models.Anomaly, now time.Time) bool {
	key := a.DedupKey()
	for i, old := range e.active {
		if old.DedupKey() != key || now.Sub(old.CreatedAt) >= e.cfg.DedupWindow {
			continue
		}
		if a.Severity.Rank() <= old.Severity.Rank() {
			return false
		}
		e.active = append(e.active[:i], e.active[i+1:]...)
		break
	}
	e.active = append(e.active, a)
	if over := len(e.active) - e.cfg.MaxActive; over > 0 {
		e.active = append(e.active[:0], e.active[over:]...)
	}
	e.history = append(e.history, a)
	if over := len(e.history) - e.cfg.MaxHistory; over > 0 {
		e.history = append(e.history[:0], e.history[over:]...)
	}
	return true
}

func (e *Engine) pruneLocked(now time.Time) {
	kept := e.active[:0]
	for _, a := range e.active {
		if !a.IsExpired(now) {
			kept = append(kept, a)
		}
	}
	e.active = kept
}

func (e *Engine) filter(keep func(models.Anomaly) bool) []models.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	out := make([]models.Anomaly, 0, len(e.active))
	for _, a := range e.active {
		if a.IsExpired(now) || !keep(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Active returns all non-expired anomalies, oldest first.
func (e *Engine) Active() []models.Anomaly {
	return e.filter(func(models.Anomaly) bool { return true })
}

func (e *Engine) BySeverity(s models.Severity) []models.Anomaly {
	return e.filter(func(a models.Anomaly) bool { return a.Severity == s })
}

func (e *Engine) ByType(t models.AnomalyType) []models.Anomaly {
	return e.filter(func(a models.Anomaly) bool { return a.Type == t })
}

func (e *Engine) BySource(s models.AnomalySource) []models.Anomaly {
	return e.filter(func(a models.Anomaly) bool { return a.Source == s })
}

func (e *Engine) Critical() []models.Anomaly {
	return e.BySeverity(models.SeverityCritical)
}

// History returns up to limit most recent accepted anomalies, including
// expired ones. A non-positive limit returns everything.
func (e *Engine) History(limit int) []models.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(e.history) {
		start = len(e.history) - limit
	}
	out := make([]models.Anomaly, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}

// BaselineStat describes one tracked metric's rolling baseline.
type BaselineStat struct {
	Metric  string  `json:"metric"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdDev"`
	Samples int     `json:"samples"`
}

// BaselineSnapshot lists the current baselines sorted by metric name.
func (e *Engine) BaselineSnapshot() []BaselineStat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := e.baselines.Keys()
	sort.Strings(keys)
	out := make([]BaselineStat, 0, len(keys))
	for _, k := range keys {
		b := e.baselines.Get(k)
		out = append(out, BaselineStat{Metric: k, Mean: b.Mean(), StdDev: b.StdDev(), Samples: b.Len()})
	}
	return out
}

// Reset clears baselines, active anomalies and history.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baselines.Reset()
	e.active = nil
	e.history = nil
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) UpdateConfig(p ConfigPatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return err
	}
	e.cfg = next
	return nil
}
