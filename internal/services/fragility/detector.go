package fragility

import (
	"fmt"
	"math"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
	"Watchdog/pkg/logger"
)

var typeWeights = map[models.ZoneType]float64{
	models.ZoneThinPocket:        10,
	models.ZoneOrderImbalance:    15,
	models.ZoneLiquidityGap:      15,
	models.ZoneLiquidationVacuum: 20,
	models.ZoneStopCluster:       15,
	models.ZoneSpoofLiquidity:    10,
	models.ZoneWashTrading:       5,
}

var zoneText = map[models.ZoneType]struct{ title, risk string }{
	models.ZoneThinPocket:        {"Thin liquidity pocket", "Price can slip through this level on modest size."},
	models.ZoneOrderImbalance:    {"Order book imbalance", "The thin side can give way quickly under pressure."},
	models.ZoneLiquidityGap:      {"Liquidity gap", "Price may jump across the gap without fills in between."},
	models.ZoneLiquidationVacuum: {"Liquidation vacuum", "Forced liquidations here could cascade."},
	models.ZoneStopCluster:       {"Stop-loss cluster", "Triggered stops can accelerate a move through this level."},
	models.ZoneSpoofLiquidity:    {"Suspicious resting liquidity", "This size may be pulled before it trades."},
	models.ZoneWashTrading:       {"Wash-trading footprint", "Reported volume may overstate real liquidity."},
}

// Detector scans the order book and auxiliary hints for structural weak
// points. Safe for concurrent use.
type Detector struct {
	mu     sync.RWMutex
	cfg    Config
	zones  []models.FragilityZone
	alerts []models.FragilityAlert
	now    func() time.Time
	log    *logger.Logger
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
		cfg: DefaultConfig(),
		now: time.Now,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Scan runs every sub-scan and returns the aggregate alert. Without a price
// reference the alert is empty and stable.
func (d *Detector) Scan(in models.MarketInputs) models.FragilityAlert {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cfg := d.cfg
	var drafts []zoneDraft
	if ref := in.ReferencePrice(); ref > 0 {
		sc := &scanCtx{cfg: cfg, in: &in, ref: ref, book: in.OrderBook}
		drafts = append(drafts, sc.thinPockets()...)
		drafts = append(drafts, sc.imbalance()...)
		drafts = append(drafts, sc.liquidityGaps()...)
		drafts = append(drafts, sc.liquidationVacuums()...)
		drafts = append(drafts, sc.stopClusters()...)
		drafts = append(drafts, sc.spoofLiquidity()...)
		drafts = append(drafts, sc.washTrading()...)
		zones := make([]models.FragilityZone, 0, len(drafts))
		for _, dr := range drafts {
			zones = append(zones, d.zone(in.Symbol, sc, dr, now))
		}
		d.storeLocked(zones, now)
		alert := d.aggregate(in.Symbol, zones, now)
		d.pushAlertLocked(alert)
		return alert
	}
	alert := d.aggregate(in.Symbol, nil, now)
	d.pushAlertLocked(alert)
	return alert
}

func (d *Detector) zone(symbol string, sc *scanCtx, dr zoneDraft, now time.Time) models.FragilityZone {
	rng := models.PriceRange{Low: dr.low, High: dr.high}
	dist := sc.distancePct(rng.Mid())
	score := d.score(dr, dist)
	txt := zoneText[dr.typ]
	return models.FragilityZone{
		ID:                 models.NextID("zone"),
		Symbol:             symbol,
		Type:               dr.typ,
		Severity:           d.severity(score, dist),
		PriceRange:         rng,
		DistancePct:        dist,
		LiquidityDepth:     dr.depth,
		EstimatedSlippage:  dr.slippage,
		VulnerabilityScore: score,
		Side:               dr.side,
		Title:              txt.title,
		Description:        dr.detail,
		Risk:               txt.risk,
		Lifetime:           models.NewLifetime(now, d.cfg.ZoneTTL),
	}
}

// score is 50 + type weight + proximity bonus + depth penalty + slippage bonus.
func (d *Detector) score(dr zoneDraft, dist float64) float64 {
	s := 50 + typeWeights[dr.typ]
	switch {
	case dist <= 0.5:
		s += 20
	case dist <= 1:
		s += 15
	case dist <= 2:
		s += 10
	case dist <= 5:
		s += 5
	}
	t := d.cfg.ThinThreshold
	switch {
	case dr.depth < t:
		s += 10
	case dr.depth < 5*t:
		s += 5
	default:
		s -= 5
	}
	s += math.Min(15, dr.slippage*5)
	return features.Clamp100(s)
}

func (d *Detector) severity(score, dist float64) models.Severity {
	adj := score
	switch {
	case dist <= 1:
		adj *= 1.3
	case dist <= 2:
		adj *= 1.1
	}
	switch {
	case adj >= d.cfg.CriticalScore:
		return models.SeverityCritical
	case adj >= d.cfg.HighScore:
		return models.SeverityHigh
	case adj >= d.cfg.MediumScore:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (d *Detector) aggregate(symbol string, zones []models.FragilityZone, now time.Time) models.FragilityAlert {
	alert := models.FragilityAlert{
		ID:                  models.NextID("fragility"),
		Symbol:              symbol,
		Zones:               zones,
		MarketVulnerability: models.VulnerabilityStable,
		Lifetime:            models.NewLifetime(now, d.cfg.ZoneTTL),
	}
	if alert.Zones == nil {
		alert.Zones = []models.FragilityZone{}
	}
	high := 0
	scores := make([]float64, 0, len(zones))
	for i := range zones {
		z := &zones[i]
		scores = append(scores, z.VulnerabilityScore)
		switch z.Severity {
		case models.SeverityCritical:
			alert.CriticalZoneCount++
			if alert.NearestCritical == nil || z.DistancePct < alert.NearestCritical.DistancePct {
				nearest := *z
				alert.NearestCritical = &nearest
			}
		case models.SeverityHigh:
			high++
		}
	}
	alert.OverallScore = features.Mean(scores)
	switch {
	case alert.CriticalZoneCount > 0 || alert.OverallScore > 70:
		alert.MarketVulnerability = models.VulnerabilityCritical
	case high > 2 || alert.OverallScore > 50:
		alert.MarketVulnerability = models.VulnerabilityFragile
	}
	alert.Summary = summarize(alert)
	return alert
}

func summarize(a models.FragilityAlert) string {
	if len(a.Zones) == 0 {
		return "No structural weak points detected. Liquidity looks stable."
	}
	s := fmt.Sprintf("%d fragile zone(s) detected, %d critical, average vulnerability %.0f. Market is %s.",
		len(a.Zones), a.CriticalZoneCount, a.OverallScore, a.MarketVulnerability)
	if n := a.NearestCritical; n != nil {
		s += fmt.Sprintf(" Nearest critical: %s at %.6g, %.2f%% away.", n.Title, n.PriceRange.Mid(), n.DistancePct)
	}
	return s
}

func (d *Detector) storeLocked(zones []models.FragilityZone, now time.Time) {
	kept := d.zones[:0]
	for _, z := range d.zones {
		if !z.IsExpired(now) {
			kept = append(kept, z)
		}
	}
	d.zones = append(kept, zones...)
	if over := len(d.zones) - d.cfg.MaxZones; over > 0 {
		d.zones = append(d.zones[:0], d.zones[over:]...)
	}
}

func (d *Detector) pushAlertLocked(a models.FragilityAlert) {
	d.alerts = append(d.alerts, a)
	if over := len(d.alerts) - d.cfg.MaxAlerts; over > 0 {
		d.alerts = append(d.alerts[:0], d.alerts[over:]...)
	}
	if a.MarketVulnerability != models.VulnerabilityStable {
		d.log.Debug("fragility detected",
			logger.String("symbol", a.Symbol),
			logger.String("vulnerability", string(a.MarketVulnerability)),
			logger.Int("zones", len(a.Zones)))
	}
}

func (d *Detector) filter(keep func(models.FragilityZone) bool) []models.FragilityZone {
	d.mu.RLock()
	defer d.mu.RUnlock()
	now := d.now()
	out := make([]models.FragilityZone, 0, len(d.zones))
	for _, z := range d.zones {
		if !z.IsExpired(now) && keep(z) {
			out = append(out, z)
		}
	}
	return out
}

func (d *Detector) ActiveZones() []models.FragilityZone {
	return d.filter(func(models.FragilityZone) bool { return true })
}

func (d *Detector) ZonesByType(t models.ZoneType) []models.FragilityZone {
	return d.filter(func(z models.FragilityZone) bool { return z.Type == t })
}

func (d *Detector) ZonesBySeverity(s models.Severity) []models.FragilityZone {
	return d.filter(func(z models.FragilityZone) bool { return z.Severity == s })
}

func (d *Detector) CriticalZones() []models.FragilityZone {
	return d.ZonesBySeverity(models.SeverityCritical)
}

// LatestAlert returns the newest aggregate alert if it has not expired.
func (d *Detector) LatestAlert() (models.FragilityAlert, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.alerts) == 0 {
		return models.FragilityAlert{}, false
	}
	a := d.alerts[len(d.alerts)-1]
	if a.IsExpired(d.now()) {
		return models.FragilityAlert{}, false
	}
	return a, true
}

func (d *Detector) AlertHistory(limit int) []models.FragilityAlert {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(d.alerts) {
		start = len(d.alerts) - limit
	}
	out := make([]models.FragilityAlert, len(d.alerts)-start)
	copy(out, d.alerts[start:])
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
