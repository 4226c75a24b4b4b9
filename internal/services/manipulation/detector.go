package manipulation

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
	"Watchdog/pkg/logger"
)

var texts = map[models.ManipulationType]struct{ title, narrative, action string }{
	models.ManipSpoofing:          {"Spoofing detected", "Large orders are being placed and pulled before they trade, faking depth.", "Ignore the displayed walls; size positions off actual fills."},
	models.ManipLayering:          {"Layering detected", "One participant is stacking orders across several levels and pulling them.", "Do not chase the stacked side; expect the orders to vanish."},
	models.ManipWashTrading:       {"Wash trading detected", "Related accounts are trading with each other to inflate volume.", "Discount reported volume when judging liquidity."},
	models.ManipPumpGroup:         {"Coordinated pump", "A burst of volume is driving price up far above normal activity.", "Avoid buying the spike; pumps usually retrace."},
	models.ManipDumpGroup:         {"Coordinated dump", "A burst of selling volume is driving price down hard.", "Hold off on catching the knife until selling exhausts."},
	models.ManipStopHunt:          {"Stop hunt", "Price was pushed through a stop-loss cluster and snapped back.", "Move stops away from obvious cluster levels."},
	models.ManipMomentumIgnition:  {"Momentum ignition", "A single aggressor fired a burst of orders to start a move.", "Wait for independent follow-through before joining."},
	models.ManipQuoteStuffing:     {"Quote stuffing", "Order traffic is flooding the book with quotes that are cancelled at once.", "Expect stale quotes and delayed fills."},
	models.ManipPaintingTheTape:   {"Painting the tape", "Uniform small prints from few accounts are walking price in one direction.", "Treat the trend as staged until larger players confirm it."},
	models.ManipCoordinatedAttack: {"Coordinated manipulation", "The same entities show up behind several manipulation patterns at once.", "Reduce exposure; coordinated actors are working this market."},
}

// Detector scores manipulation archetypes on each snapshot. Safe for
// concurrent use.
type Detector struct {
	mu      sync.RWMutex
	cfg     Config
	volume  *features.Baseline
	active  []models.ManipulationSignal
	history []models.ManipulationSignal
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*Detector)

func WithConfig(cfg Config) Option {
	return func(d *Detector) { d.cfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		cfg:    DefaultConfig(),
		volume: features.NewBaseline(features.DefaultWindow),
		now:    time.Now,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs every heuristic and returns the signals that clear the
// probability floor, plus a coordinated-attack composite when entities overlap.
func (d *Detector) Detect(in models.MarketInputs) []models.ManipulationSignal {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneLocked(now)

	var found []*finding
	for _, h := range []func(*models.MarketInputs) *finding{
		d.spoofing,
		d.layering,
		d.washTrading,
		d.pumpOrDump,
		d.stopHunt,
		d.momentumIgnition,
		d.quoteStuffing,
		d.paintingTheTape,
	} {
		if f := h(&in); f != nil && f.probability >= d.cfg.MinProbability {
			found = append(found, f)
		}
	}
	if f := coordinated(found); f != nil && f.probability >= d.cfg.MinProbability {
		found = append(found, f)
	}

	out := make([]models.ManipulationSignal, 0, len(found))
	for _, f := range found {
		sig := d.signal(in.Symbol, f, now)
		d.storeLocked(sig)
		out = append(out, sig)
	}
	if len(out) > 0 {
		d.log.Debug("manipulation signals", logger.String("symbol", in.Symbol), logger.Int("count", len(out)))
	}
	return out
}

// coordinated builds the composite signal for entities attributed by at least
// two distinct archetypes in the same scan.
func coordinated(found []*finding) *finding {
	if len(found) < 2 {
		return nil
	}
	seenBy := make(map[string]map[models.ManipulationType]bool)
	for _, f := range found {
		for _, m := range f.manipulators {
			if seenBy[m.ID] == nil {
				seenBy[m.ID] = make(map[models.ManipulationType]bool)
			}
			seenBy[m.ID][f.typ] = true
		}
	}
	var shared []string
	types := make(map[models.ManipulationType]bool)
	for id, ts := range seenBy {
		if len(ts) < 2 {
			continue
		}
		shared = append(shared, id)
		for t := range ts {
			types[t] = true
		}
	}
	if len(shared) == 0 {
		return nil
	}
	sort.Strings(shared)
	maxP, conf := 0.0, 0.0
	for _, f := range found {
		if types[f.typ] {
			if f.probability > maxP {
				maxP = f.probability
			}
			conf += f.confidence
		}
	}
	conf /= float64(len(types))
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, string(t))
	}
	sort.Strings(names)
	mans := make([]models.Manipulator, 0, len(shared))
	for _, id := range shared {
		mans = append(mans, models.Manipulator{
			ID:            id,
			InferredType:  "coordinator",
			Confidence:    conf,
			ActivityScore: features.Clamp100(float64(len(seenBy[id])) * 25),
		})
	}
	return &finding{
		typ:          models.ManipCoordinatedAttack,
		probability:  clamp01(maxP + 0.1),
		confidence:   conf,
		impact:       models.ImpactSevere,
		manipulators: mans,
		technical:    fmt.Sprintf("%d entit(ies) behind %s", len(shared), strings.Join(names, ", ")),
	}
}

func severity(probability float64, impact models.ImpactTier) models.Severity {
	v := probability * float64(impact)
	switch {
	case v >= 3:
		return models.SeverityCritical
	case v >= 2:
		return models.SeverityHigh
	case v >= 1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ClusterID derives a stable identifier from a set of entity ids.
func ClusterID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := fnv.New32a()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("mc_%08x", h.Sum32())
}

func (d *Detector) signal(symbol string, f *finding, now time.Time) models.ManipulationSignal {
	txt := texts[f.typ]
	sig := models.ManipulationSignal{
		ID:              models.NextID("manip"),
		Symbol:          symbol,
		Type:            f.typ,
		Severity:        severity(f.probability, f.impact),
		Probability:     f.probability,
		Confidence:      f.confidence,
		Manipulators:    f.manipulators,
		Title:           txt.title,
		Narrative:       txt.narrative,
		Technical:       f.technical,
		SuggestedAction: txt.action,
		PriceRange:      f.priceRange,
		Impact:          f.impact,
		Lifetime:        models.NewLifetime(now, d.cfg.TTL),
	}
	sig.ClusterID = ClusterID(sig.EntityIDs())
	return sig
}

func (d *Detector) storeLocked(sig models.ManipulationSignal) {
	d.active = append(d.active, sig)
	if over := len(d.active) - d.cfg.MaxActive; over > 0 {
		d.active = append(d.active[:0], d.active[over:]...)
	}
	d.history = append(d.history, sig)
	if over := len(d.history) - d.cfg.MaxHistory; over > 0 {
		d.history = append(d.history[:0], d.history[over:]...)
	}
}

func (d *Detector) pruneLocked(now time.Time) {
	kept := d.active[:0]
	for _, s := range d.active {
		if !s.IsExpired(now) {
			kept = append(kept, s)
		}
	}
	d.active = kept
}

func (d *Detector) filter(keep func(models.ManipulationSignal) bool) []models.ManipulationSignal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	now := d.now()
	out := make([]models.ManipulationSignal, 0, len(d.active))
	for _, s := range d.active {
		if !s.IsExpired(now) && keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (d *Detector) Active() []models.ManipulationSignal {
	return d.filter(func(models.ManipulationSignal) bool { return true })
}

func (d *Detector) ByType(t models.ManipulationType) []models.ManipulationSignal {
	return d.filter(func(s models.ManipulationSignal) bool { return s.Type == t })
}

func (d *Detector) BySeverity(sev models.Severity) []models.ManipulationSignal {
	return d.filter(func(s models.ManipulationSignal) bool { return s.Severity == sev })
}

// ByEntity returns active signals attributing the given entity.
func (d *Detector) ByEntity(id string) []models.ManipulationSignal {
	return d.filter(func(s models.ManipulationSignal) bool {
		for _, m := range s.Manipulators {
			if m.ID == id {
				return true
			}
		}
		return false
	})
}

func (d *Detector) Critical() []models.ManipulationSignal {
	return d.BySeverity(models.SeverityCritical)
}

func (d *Detector) History(limit int) []models.ManipulationSignal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(d.history) {
		start = len(d.history) - limit
	}
	out := make([]models.ManipulationSignal, len(d.history)-start)
	copy(out, d.history[start:])
	return out
}

func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Detector) UpdateConfig(p ConfigPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return err
	}
	d.cfg = next
	return nil
}
