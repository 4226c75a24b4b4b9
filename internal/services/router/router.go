package router

import (
	"fmt"
	"math"
	"sync"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/domain/repository"
	"Watchdog/pkg/logger"
	"Watchdog/pkg/metrics"
)

// Listener receives every routed alert. Calls are synchronous and made
// outside the router lock.
type Listener interface {
	OnAlert(d models.AlertDelivery)
}

type ListenerFunc func(d models.AlertDelivery)

func (f ListenerFunc) OnAlert(d models.AlertDelivery) { f(d) }

type queuedAlert struct {
	alert    models.IncomingAlert
	queuedAt time.Time
}

type listenerEntry struct {
	id string
	l  Listener
}

// Router turns incoming alerts into deliveries, applying dedup, throttling and
// a catch-up queue for severe alerts.
type Router struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time
	log *logger.Logger
	m   repository.Metrics

	recent    map[string]struct{}
	active    []*models.WatchdogAlert
	history   []*models.WatchdogAlert
	queue     []queuedAlert
	listeners []listenerEntry

	lastRouted time.Time
	hourStart  time.Time
	hourCount  int

	received, routed, deduplicated, throttled, queued int

	loopMu  sync.Mutex
	stopCh  chan struct{}
	running bool
}

type Option func(*Router)

func WithConfig(cfg Config) Option {
	return func(r *Router) { r.cfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l.With("router")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.m = m
		}
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		cfg:    DefaultConfig(),
		now:    time.Now,
		log:    logger.NewNop(),
		m:      metrics.NewNop(),
		recent: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func dedupKey(in models.IncomingAlert) string {
	return fmt.Sprintf("%s|%s|%d", in.Source, in.Title, int(math.Floor(in.Severity/10)))
}

// Route runs one alert through dedup, throttle and delivery.
func (r *Router) Route(in models.IncomingAlert) models.RouteResult {
	r.mu.Lock()
	now := r.now()
	r.received++

	key := dedupKey(in)
	if _, seen := r.recent[key]; seen {
		r.deduplicated++
		r.mu.Unlock()
		r.m.RecordAlert(string(models.RouteDeduplicated), "")
		return models.RouteResult{Status: models.RouteDeduplicated}
	}

	if r.throttledLocked(now) {
		r.throttled++
		if in.Severity >= r.cfg.HighPriorityThreshold {
			r.rememberLocked(key)
			r.enqueueLocked(in, now)
			depth := len(r.queue)
			r.mu.Unlock()
			r.m.RecordAlert(string(models.RouteQueued), string(models.PriorityHigh))
			r.m.SetQueueDepth(depth)
			return models.RouteResult{Status: models.RouteQueued}
		}
		r.mu.Unlock()
		r.m.RecordAlert(string(models.RouteDropped), string(r.cfg.priority(in.Severity)))
		return models.RouteResult{Status: models.RouteDropped}
	}

	r.rememberLocked(key)
	d, listeners := r.deliverLocked(in, now)
	r.mu.Unlock()
	r.fanOut(d, listeners)
	return models.RouteResult{Status: models.RouteRouted, Delivery: &d}
}

// rememberLocked records a routed or queued alert's dedup key. A full set is
// cleared first so the newest key survives. Dropped alerts are never recorded.
func (r *Router) rememberLocked(key string) {
	if len(r.recent) >= r.cfg.DedupSetLimit {
		r.recent = make(map[string]struct{})
	}
	r.recent[key] = struct{}{}
}

// throttledLocked reports whether routing now would break the interval or
// hourly cap. The hour window restarts at the first alert after it lapses.
func (r *Router) throttledLocked(now time.Time) bool {
	if !r.hourStart.IsZero() && now.Sub(r.hourStart) >= time.Hour {
		r.hourStart = time.Time{}
		r.hourCount = 0
	}
	if !r.lastRouted.IsZero() && now.Sub(r.lastRouted) < r.cfg.MinAlertInterval {
		return true
	}
	return r.hourCount >= r.cfg.MaxAlertsPerHour
}

func (r *Router) enqueueLocked(in models.IncomingAlert, now time.Time) {
	r.queue = append(r.queue, queuedAlert{alert: in, queuedAt: now})
	if over := len(r.queue) - r.cfg.MaxQueueSize; over > 0 {
		r.queue = append(r.queue[:0], r.queue[over:]...)
	}
	r.queued++
}

func (r *Router) deliverLocked(in models.IncomingAlert, now time.Time) (models.AlertDelivery, []listenerEntry) {
	priority := r.cfg.priority(in.Severity)
	alert := &models.WatchdogAlert{
		ID:              models.NextID("alert"),
		Source:          in.Source,
		Symbol:          in.Symbol,
		Type:            in.Type,
		Priority:        priority,
		Color:           colorFor(priority),
		Category:        categoryFor(in),
		Title:           in.Title,
		Message:         in.Message,
		Narrative:       in.Narrative,
		Speakable:       in.Speakable,
		SuggestedAction: in.SuggestedAction,
		Confidence:      in.Confidence,
		Severity:        in.Severity,
		Metadata:        in.Metadata,
		Lifetime:        models.NewLifetime(now, r.cfg.ttl(priority)),
	}

	r.active = append(r.active, alert)
	if over := len(r.active) - r.cfg.MaxActiveAlerts; over > 0 {
		r.active = append(r.active[:0], r.active[over:]...)
	}
	r.history = append(r.history, alert)
	if over := len(r.history) - r.cfg.MaxHistory; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}

	if r.hourStart.IsZero() {
		r.hourStart = now
	}
	r.hourCount++
	r.lastRouted = now
	r.routed++

	d := models.AlertDelivery{
		Alert:         *alert,
		ShouldDisplay: true,
		ShouldNotify:  priority != models.PriorityLow,
	}
	switch priority {
	case models.PriorityHigh:
		d.ShouldSpeak = true
	case models.PriorityMedium:
		d.ShouldSpeak = in.Severity >= r.cfg.MediumSpeakThreshold
		d.DelayMs = r.cfg.MediumDelay.Milliseconds()
	default:
		d.DelayMs = r.cfg.LowDelay.Milliseconds()
	}
	if !r.cfg.VoiceEnabled {
		d.ShouldSpeak = false
	}

	listeners := make([]listenerEntry, len(r.listeners))
	copy(listeners, r.listeners)
	return d, listeners
}

func (r *Router) fanOut(d models.AlertDelivery, listeners []listenerEntry) {
	r.m.RecordAlert(string(models.RouteRouted), string(d.Alert.Priority))
	r.log.Info("alert routed",
		logger.String("id", d.Alert.ID),
		logger.String("priority", string(d.Alert.Priority)),
		logger.String("title", d.Alert.Title),
		logger.Float64("severity", d.Alert.Severity),
	)
	for _, e := range listeners {
		r.notify(e, d)
	}
}

func (r *Router) notify(e listenerEntry, d models.AlertDelivery) {
	defer func() {
		if rec := recover(); rec != nil {
			r.m.RecordError("listener")
			r.log.Error("alert listener failed",
				logger.String("listener", e.id),
				logger.String("alert", d.Alert.ID),
				logger.Any("panic", rec),
			)
		}
	}()
	e.l.OnAlert(d)
}

// Subscribe registers l and returns an id usable with Unsubscribe.
func (r *Router) Subscribe(l Listener) string {
	id := models.NextID("listener")
	r.mu.Lock()
	r.listeners = append(r.listeners, listenerEntry{id: id, l: l})
	r.mu.Unlock()
	return id
}

func (r *Router) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.listeners {
		if e.id == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// ProcessQueueOnce drops expired queue entries and, when not throttled,
// routes the oldest remaining one.
func (r *Router) ProcessQueueOnce() (models.RouteResult, bool) {
	r.mu.Lock()
	now := r.now()
	kept := r.queue[:0]
	for _, q := range r.queue {
		if now.Sub(q.queuedAt) < r.cfg.QueuedAlertTTL {
			kept = append(kept, q)
		}
	}
	r.queue = kept
	if len(r.queue) == 0 || r.throttledLocked(now) {
		depth := len(r.queue)
		r.mu.Unlock()
		r.m.SetQueueDepth(depth)
		return models.RouteResult{}, false
	}
	next := r.queue[0]
	r.queue = append(r.queue[:0], r.queue[1:]...)
	depth := len(r.queue)
	d, listeners := r.deliverLocked(next.alert, now)
	r.mu.Unlock()

	r.m.SetQueueDepth(depth)
	r.fanOut(d, listeners)
	return models.RouteResult{Status: models.RouteRouted, Delivery: &d}, true
}

// StartQueueProcessor runs ProcessQueueOnce every MinAlertInterval. Calling
// it while running is a no-op.
func (r *Router) StartQueueProcessor() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.running {
		return
	}
	interval := r.Config().MinAlertInterval
	if interval <= 0 {
		interval = time.Second
	}
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.running = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				r.ProcessQueueOnce()
			}
		}
	}()
	r.log.Debug("queue processor started", logger.Duration("interval", interval))
}

func (r *Router) StopQueueProcessor() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if !r.running {
		return
	}
	close(r.stopCh)
	r.running = false
	r.log.Debug("queue processor stopped")
}

func (r *Router) QueueProcessorRunning() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.running
}

func (r *Router) selectActive(keep func(*models.WatchdogAlert) bool) []models.WatchdogAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]models.WatchdogAlert, 0, len(r.active))
	for _, a := range r.active {
		if a.IsExpired(now) || (keep != nil && !keep(a)) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

func (r *Router) ActiveAlerts() []models.WatchdogAlert {
	return r.selectActive(nil)
}

func (r *Router) ByPriority(p models.Priority) []models.WatchdogAlert {
	return r.selectActive(func(a *models.WatchdogAlert) bool { return a.Priority == p })
}

func (r *Router) ByCategory(c models.Category) []models.WatchdogAlert {
	return r.selectActive(func(a *models.WatchdogAlert) bool { return a.Category == c })
}

func (r *Router) Unacknowledged() []models.WatchdogAlert {
	return r.selectActive(func(a *models.WatchdogAlert) bool { return !a.Acknowledged })
}

func (r *Router) HighPriority() []models.WatchdogAlert {
	return r.ByPriority(models.PriorityHigh)
}

// History returns up to limit routed alerts, newest first. limit <= 0 means all.
func (r *Router) History(limit int) []models.WatchdogAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.WatchdogAlert, 0, n)
	for i := len(r.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *r.history[i])
	}
	return out
}

// QueuedAlerts returns unexpired queued alerts in FIFO order.
func (r *Router) QueuedAlerts() []models.IncomingAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]models.IncomingAlert, 0, len(r.queue))
	for _, q := range r.queue {
		if now.Sub(q.queuedAt) < r.cfg.QueuedAlertTTL {
			out = append(out, q.alert)
		}
	}
	return out
}

func (r *Router) update(id string, fn func(*models.WatchdogAlert)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, a := range r.active {
		if a.ID == id && !a.IsExpired(now) {
			fn(a)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrAlertNotFound, id)
}

func (r *Router) Acknowledge(id string) error {
	return r.update(id, func(a *models.WatchdogAlert) { a.Acknowledged = true })
}

func (r *Router) MarkSpoken(id string) error {
	return r.update(id, func(a *models.WatchdogAlert) { a.Spoken = true })
}

func (r *Router) MarkDisplayed(id string) error {
	return r.update(id, func(a *models.WatchdogAlert) { a.Displayed = true })
}

// Dismiss removes an alert from the active set; history keeps it.
func (r *Router) Dismiss(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.active {
		if a.ID == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrAlertNotFound, id)
}

// DismissAll clears the active set and returns how many alerts it held.
func (r *Router) DismissAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.active)
	r.active = nil
	return n
}

func (r *Router) Stats() models.RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	st := models.RouterStats{
		TotalReceived:     r.received,
		TotalRouted:       r.routed,
		TotalDeduplicated: r.deduplicated,
		TotalThrottled:    r.throttled,
		TotalQueued:       r.queued,
		QueueDepth:        len(r.queue),
		ByPriority:        make(map[models.Priority]int),
		ByCategory:        make(map[models.Category]int),
	}
	if !r.hourStart.IsZero() && now.Sub(r.hourStart) < time.Hour {
		st.AlertsThisHour = r.hourCount
	}
	for _, a := range r.active {
		if a.IsExpired(now) {
			continue
		}
		st.ActiveCount++
		if !a.Acknowledged {
			st.UnacknowledgedCount++
		}
		st.ByPriority[a.Priority]++
		st.ByCategory[a.Category]++
	}
	return st
}

func (r *Router) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// UpdateConfig applies p if the result validates. A running queue processor
// keeps its tick interval until restarted.
func (r *Router) UpdateConfig(p ConfigPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return err
	}
	r.cfg = next
	return nil
}
