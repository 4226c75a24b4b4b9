package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	"Watchdog/internal/services/anomaly"
	"Watchdog/internal/services/fragility"
	"Watchdog/internal/services/manipulation"
	"Watchdog/internal/services/narrator"
	"Watchdog/internal/services/pressure"
	"Watchdog/internal/services/router"
	"Watchdog/pkg/logger"
	"Watchdog/pkg/metrics"
)

var ErrSymbolRequired = errors.New("symbol is required")

// Settings controls how detector output becomes alerts.
type Settings struct {
	ScanInterval            time.Duration
	PressureAlertScore      float64
	AnomalyMinSeverity      models.Severity
	ManipulationMinSeverity models.Severity
	NarrativeLength         narrator.Length
	NarrativeMaxLength      int
}

func DefaultSettings() Settings {
	return Settings{
		ScanInterval:            5 * time.Second,
		PressureAlertScore:      70,
		AnomalyMinSeverity:      models.SeverityHigh,
		ManipulationMinSeverity: models.SeverityMedium,
		NarrativeLength:         narrator.LengthStandard,
		NarrativeMaxLength:      400,
	}
}

// DetectorConfigs seeds every per-symbol detector set.
type DetectorConfigs struct {
	Pressure     pressure.Config
	Anomaly      anomaly.Config
	Fragility    fragility.Config
	Manipulation manipulation.Config
}

func DefaultDetectorConfigs() DetectorConfigs {
	return DetectorConfigs{
		Pressure:     pressure.DefaultConfig(),
		Anomaly:      anomaly.DefaultConfig(),
		Fragility:    fragility.DefaultConfig(),
		Manipulation: manipulation.DefaultConfig(),
	}
}

// DetectorSet is the detector state owned for one symbol.
type DetectorSet struct {
	Pressure     *pressure.Scanner
	Anomaly      *anomaly.Engine
	Fragility    *fragility.Detector
	Manipulation *manipulation.Detector

	scanMu sync.Mutex
	latest *models.MarketInputs
}

// Watchdog owns per-symbol detectors and the shared router, runs scans and
// keeps the latest synthesis for each symbol.
type Watchdog struct {
	mu        sync.RWMutex
	sets      map[string]*DetectorSet
	syntheses map[string]models.Synthesis
	symbols   []string

	settings  Settings
	detectors DetectorConfigs
	router    *router.Router
	narrator  *narrator.Narrator
	store     domrepo.SynthesisStore
	metrics   domrepo.Metrics
	log       *logger.Logger
	baseLog   *logger.Logger
	now       func() time.Time

	runMu   sync.Mutex
	cron    *cron.Cron
	started bool
}

type Option func(*Watchdog)

func WithSymbols(symbols ...string) Option {
	return func(w *Watchdog) { w.symbols = append(w.symbols, symbols...) }
}

func WithSettings(s Settings) Option {
	return func(w *Watchdog) { w.settings = s }
}

func WithDetectorConfigs(c DetectorConfigs) Option {
	return func(w *Watchdog) { w.detectors = c }
}

func WithRouter(r *router.Router) Option {
	return func(w *Watchdog) {
		if r != nil {
			w.router = r
		}
	}
}

func WithNarrator(n *narrator.Narrator) Option {
	return func(w *Watchdog) {
		if n != nil {
			w.narrator = n
		}
	}
}

func WithSynthesisStore(s domrepo.SynthesisStore) Option {
	return func(w *Watchdog) { w.store = s }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(w *Watchdog) {
		if m != nil {
			w.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(w *Watchdog) {
		if l != nil {
			w.baseLog = l
			w.log = l.With("watchdog")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWatchdog(opts ...Option) *Watchdog {
	w := &Watchdog{
		sets:      make(map[string]*DetectorSet),
		syntheses: make(map[string]models.Synthesis),
		settings:  DefaultSettings(),
		detectors: DefaultDetectorConfigs(),
		metrics:   metrics.NewNop(),
		log:       logger.NewNop(),
		baseLog:   logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.router == nil {
		w.router = router.New(router.WithClock(w.now), router.WithLogger(w.baseLog), router.WithMetrics(w.metrics))
	}
	if w.narrator == nil {
		w.narrator = narrator.New(narrator.WithClock(w.now))
	}
	for _, s := range w.symbols {
		w.detectorSet(s)
	}
	return w
}

func (w *Watchdog) Router() *router.Router { return w.router }

func (w *Watchdog) Narrator() *narrator.Narrator { return w.narrator }

// Detectors returns the detector set for symbol, if one exists.
func (w *Watchdog) Detectors(symbol string) (*DetectorSet, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sets[symbol]
	return s, ok
}

// Symbols lists every symbol with a detector set, sorted.
func (w *Watchdog) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.sets))
	for s := range w.sets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (w *Watchdog) detectorSet(symbol string) *DetectorSet {
	w.mu.RLock()
	s, ok := w.sets[symbol]
	w.mu.RUnlock()
	if ok {
		return s
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sets[symbol]; ok {
		return s
	}
	l := w.baseLog
	s = &DetectorSet{
		Pressure:     pressure.NewScanner(pressure.WithConfig(w.detectors.Pressure), pressure.WithClock(w.now), pressure.WithLogger(l.With("pressure"))),
		Anomaly:      anomaly.NewEngine(anomaly.WithConfig(w.detectors.Anomaly), anomaly.WithClock(w.now), anomaly.WithLogger(l.With("anomaly"))),
		Fragility:    fragility.NewDetector(fragility.WithConfig(w.detectors.Fragility), fragility.WithClock(w.now), fragility.WithLogger(l.With("fragility"))),
		Manipulation: manipulation.NewDetector(manipulation.WithConfig(w.detectors.Manipulation), manipulation.WithClock(w.now), manipulation.WithLogger(l.With("manipulation"))),
	}
	w.sets[symbol] = s
	w.log.Debug("detector set created", logger.String("symbol", symbol))
	return s
}

// Ingest stores in as the latest snapshot for its symbol. Sections absent
// from in keep their previous value.
func (w *Watchdog) Ingest(in models.MarketInputs) error {
	if in.Symbol == "" {
		return ErrSymbolRequired
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = w.now()
	}
	s := w.detectorSet(in.Symbol)
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if s.latest == nil {
		s.latest = &in
		return nil
	}
	merged := s.latest.Merge(in)
	s.latest = &merged
	return nil
}

// Latest returns the merged snapshot for symbol.
func (w *Watchdog) Latest(symbol string) (models.MarketInputs, bool) {
	s, ok := w.Detectors(symbol)
	if !ok {
		return models.MarketInputs{}, false
	}
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if s.latest == nil {
		return models.MarketInputs{}, false
	}
	return *s.latest, true
}

// Scan runs every detector on the latest ingested snapshot for symbol.
func (w *Watchdog) Scan(ctx context.Context, symbol string) (models.Synthesis, error) {
	in, ok := w.Latest(symbol)
	if !ok {
		return models.Synthesis{}, fmt.Errorf("%w: %s", models.ErrNoData, symbol)
	}
	return w.ScanInputs(ctx, in)
}

// ScanInputs runs every detector on in, routes the resulting alerts and
// records the synthesis.
func (w *Watchdog) ScanInputs(ctx context.Context, in models.MarketInputs) (models.Synthesis, error) {
	if in.Symbol == "" {
		return models.Synthesis{}, ErrSymbolRequired
	}
	if err := ctx.Err(); err != nil {
		return models.Synthesis{}, err
	}
	s := w.detectorSet(in.Symbol)
	s.scanMu.Lock()
	res := w.runDetectors(s, in)
	s.scanMu.Unlock()

	candidates := w.candidates(in.Symbol, res)
	syn := w.synthesize(in.Symbol, res)
	top := -1.0
	for _, c := range candidates {
		in := w.narrate(c)
		if in.Severity > top {
			top = in.Severity
			syn.TopNarrative = in.Narrative
			syn.SpeakableNarrative = in.Speakable
		}
		if r := w.router.Route(in); r.Status == models.RouteRouted {
			syn.AlertsRouted++
		}
	}

	w.mu.Lock()
	w.syntheses[in.Symbol] = syn
	w.mu.Unlock()
	if w.store != nil {
		if err := w.store.Save(ctx, syn); err != nil {
			w.metrics.RecordError("synthesis_store")
			w.log.Warn("synthesis save failed", logger.String("symbol", in.Symbol), logger.Error(err))
		}
	}
	w.log.Debug("scan complete",
		logger.String("symbol", in.Symbol),
		logger.String("threat", string(syn.ThreatLevel)),
		logger.Float64("pressure", syn.PressureScore),
		logger.Int("anomalies", syn.AnomalyCount),
		logger.Int("manipulation", syn.ManipulationCount),
		logger.Int("routed", syn.AlertsRouted),
	)
	return syn, nil
}

type scanResult struct {
	pressure     models.PressureReading
	anomalies    []models.Anomaly
	fragility    models.FragilityAlert
	manipulation []models.ManipulationSignal
}

func (w *Watchdog) runDetectors(s *DetectorSet, in models.MarketInputs) scanResult {
	var res scanResult
	sym := in.Symbol

	start := time.Now()
	res.pressure = s.Pressure.Scan(in)
	w.metrics.RecordScan("pressure", sym, time.Since(start))
	w.metrics.SetPressureScore(sym, res.pressure.Score)

	start = time.Now()
	res.anomalies = s.Anomaly.Detect(in)
	w.metrics.RecordScan("anomaly", sym, time.Since(start))
	w.metrics.RecordRecords("anomaly", sym, len(res.anomalies))

	start = time.Now()
	res.fragility = s.Fragility.Scan(in)
	w.metrics.RecordScan("fragility", sym, time.Since(start))
	w.metrics.RecordRecords("fragility", sym, len(res.fragility.Zones))

	start = time.Now()
	res.manipulation = s.Manipulation.Detect(in)
	w.metrics.RecordScan("manipulation", sym, time.Since(start))
	w.metrics.RecordRecords("manipulation", sym, len(res.manipulation))
	return res
}

func (w *Watchdog) synthesize(symbol string, res scanResult) models.Synthesis {
	syn := models.Synthesis{
		ID:                uuid.NewString(),
		Symbol:            symbol,
		PressureScore:     res.pressure.Score,
		PressureDirection: res.pressure.Direction,
		AnomalyCount:      len(res.anomalies),
		FragilityScore:    res.fragility.OverallScore,
		Vulnerability:     res.fragility.MarketVulnerability,
		ManipulationCount: len(res.manipulation),
		ScannedAt:         w.now(),
	}
	for _, a := range res.anomalies {
		if a.Severity == models.SeverityCritical {
			syn.CriticalAnomalies++
		}
	}
	syn.ThreatLevel = threatLevel(res)
	return syn
}

// threatLevel takes the worst reading across detectors.
func threatLevel(res scanResult) models.ThreatLevel {
	level := 0
	raise := func(l int) {
		if l > level {
			level = l
		}
	}
	switch p := res.pressure.Score; {
	case p >= 85:
		raise(3)
	case p >= 70:
		raise(2)
	case p >= 60:
		raise(1)
	}
	for _, a := range res.anomalies {
		raise(a.Severity.Rank() - 1)
	}
	switch res.fragility.MarketVulnerability {
	case models.VulnerabilityCritical:
		raise(3)
	case models.VulnerabilityFragile:
		raise(1)
	}
	for _, m := range res.manipulation {
		raise(m.Severity.Rank() - 1)
	}
	return []models.ThreatLevel{models.ThreatCalm, models.ThreatElevated, models.ThreatHigh, models.ThreatCritical}[level]
}

// ScanAll scans every symbol that has ingested data. Symbols without data
// are skipped.
func (w *Watchdog) ScanAll(ctx context.Context) int {
	scanned := 0
	for _, sym := range w.Symbols() {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.Scan(ctx, sym); err != nil {
			if !errors.Is(err, models.ErrNoData) {
				w.log.Warn("scan failed", logger.String("symbol", sym), logger.Error(err))
			}
			continue
		}
		scanned++
	}
	return scanned
}

// Synthesis returns the latest synthesis for symbol, falling back to the
// shared store. models.ErrNoData means no scan has produced one yet.
func (w *Watchdog) Synthesis(ctx context.Context, symbol string) (models.Synthesis, error) {
	w.mu.RLock()
	syn, ok := w.syntheses[symbol]
	w.mu.RUnlock()
	if ok {
		return syn, nil
	}
	if w.store != nil {
		syn, err := w.store.Get(ctx, symbol)
		if err == nil {
			return syn, nil
		}
		if !errors.Is(err, models.ErrNoData) {
			return models.Synthesis{}, err
		}
	}
	return models.Synthesis{}, fmt.Errorf("%w: %s", models.ErrNoData, symbol)
}

// Start schedules ScanAll every ScanInterval and starts the router queue
// processor. Calling Start twice is a no-op.
func (w *Watchdog) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.started {
		return nil
	}
	interval := w.settings.ScanInterval
	if interval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", interval)
	}
	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() { w.ScanAll(ctx) }); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	c.Start()
	w.cron = c
	w.router.StartQueueProcessor()
	w.started = true
	w.log.Info("watchdog started",
		logger.Duration("interval", interval),
		logger.Strings("symbols", w.Symbols()),
	)
	return nil
}

// Stop halts the schedule, waiting for a running scan, and the queue processor.
func (w *Watchdog) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if !w.started {
		return
	}
	<-w.cron.Stop().Done()
	w.router.StopQueueProcessor()
	w.started = false
	w.log.Info("watchdog stopped")
}

func (w *Watchdog) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.started
}
