package router

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Watchdog/internal/domain/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newRouter(clk *fakeClock, opts ...Option) *Router {
	return New(append([]Option{WithClock(clk.Now)}, opts...)...)
}

func alert(title string, severity float64) models.IncomingAlert {
	return models.IncomingAlert{
		Source:     models.AlertSourceAnomaly,
		Symbol:     "BTC",
		Title:      title,
		Message:    "test alert",
		Severity:   severity,
		Confidence: 0.8,
	}
}

func TestDuplicateAlertRoutedOnce(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	first := r.Route(alert("Whale surge", 82))
	clk.Advance(time.Minute)
	second := r.Route(alert("Whale surge", 88))

	assert.Equal(t, models.RouteRouted, first.Status)
	assert.Equal(t, models.RouteDeduplicated, second.Status)
	assert.Len(t, r.ActiveAlerts(), 1)
	assert.Equal(t, 1, r.Stats().TotalDeduplicated)

	clk.Advance(time.Minute)
	other := r.Route(alert("Whale surge", 91))
	assert.Equal(t, models.RouteRouted, other.Status, "different severity bucket is not a duplicate")
}

func TestDroppedAlertIsNotRememberedForDedup(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	require.Equal(t, models.RouteRouted, r.Route(alert("a", 40)).Status)
	clk.Advance(5 * time.Second)
	require.Equal(t, models.RouteDropped, r.Route(alert("b", 40)).Status)

	clk.Advance(2 * time.Hour)
	res := r.Route(alert("b", 40))
	assert.Equal(t, models.RouteRouted, res.Status)
	require.NotNil(t, res.Delivery)
	assert.Equal(t, "b", res.Delivery.Alert.Title)
	assert.Equal(t, 0, r.Stats().TotalDeduplicated)
}

func TestDedupSetClearKeepsNewestKey(t *testing.T) {
	clk := newClock()
	cfg := DefaultConfig()
	cfg.DedupSetLimit = 2
	cfg.MinAlertInterval = 0
	cfg.MaxAlertsPerHour = 100
	r := newRouter(clk, WithConfig(cfg))

	require.Equal(t, models.RouteRouted, r.Route(alert("a", 40)).Status)
	require.Equal(t, models.RouteRouted, r.Route(alert("b", 40)).Status)
	require.Equal(t, models.RouteRouted, r.Route(alert("c", 40)).Status)

	assert.Equal(t, models.RouteDeduplicated, r.Route(alert("c", 40)).Status)
	assert.Equal(t, models.RouteRouted, r.Route(alert("a", 40)).Status, "older keys are forgotten after the clear")
}

func TestHourlyCapQueuesSevereAlerts(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	var statuses []models.RouteStatus
	for i := 0; i < 11; i++ {
		res := r.Route(alert(fmt.Sprintf("alert %d", i), 95))
		statuses = append(statuses, res.Status)
		clk.Advance(10 * time.Second)
	}

	routed := 0
	for _, s := range statuses[:10] {
		if s == models.RouteRouted {
			routed++
		}
	}
	assert.Equal(t, 10, routed)
	assert.Equal(t, models.RouteQueued, statuses[10])

	queued := r.QueuedAlerts()
	require.Len(t, queued, 1)
	assert.Equal(t, "alert 10", queued[0].Title)

	st := r.Stats()
	assert.Equal(t, 10, st.TotalRouted)
	assert.Equal(t, 1, st.TotalThrottled)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 10, st.AlertsThisHour)
}

func TestIntervalThrottleDropsMildAlerts(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	require.Equal(t, models.RouteRouted, r.Route(alert("a", 60)).Status)
	clk.Advance(5 * time.Second)
	assert.Equal(t, models.RouteDropped, r.Route(alert("b", 60)).Status)
	assert.Equal(t, models.RouteQueued, r.Route(alert("c", 80)).Status)
	assert.Empty(t, r.QueuedAlerts()[1:])
	assert.Equal(t, 2, r.Stats().TotalThrottled)
}

func TestPriorityBreakpoints(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, models.PriorityLow, cfg.priority(49.9))
	assert.Equal(t, models.PriorityMedium, cfg.priority(50))
	assert.Equal(t, models.PriorityMedium, cfg.priority(74))
	assert.Equal(t, models.PriorityHigh, cfg.priority(75))

	prev := models.PriorityLow
	rank := map[models.Priority]int{models.PriorityLow: 0, models.PriorityMedium: 1, models.PriorityHigh: 2}
	for s := 0.0; s <= 100; s += 0.5 {
		p := cfg.priority(s)
		assert.GreaterOrEqual(t, rank[p], rank[prev])
		prev = p
	}
}

func TestDeliveryFlags(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)
	cases := []struct {
		severity float64
		speak    bool
		notify   bool
		delay    int64
		color    models.Color
	}{
		{90, true, true, 0, models.ColorRed},
		{65, true, true, 500, models.ColorYellow},
		{55, false, true, 500, models.ColorYellow},
		{20, false, false, 1000, models.ColorBlue},
	}
	for i, tc := range cases {
		res := r.Route(alert(fmt.Sprintf("flags %d", i), tc.severity))
		require.Equal(t, models.RouteRouted, res.Status)
		d := res.Delivery
		assert.Equal(t, tc.speak, d.ShouldSpeak, "severity %v", tc.severity)
		assert.Equal(t, tc.notify, d.ShouldNotify, "severity %v", tc.severity)
		assert.True(t, d.ShouldDisplay)
		assert.Equal(t, tc.delay, d.DelayMs)
		assert.Equal(t, tc.color, d.Alert.Color)
		clk.Advance(10 * time.Second)
	}
}

func TestVoiceDisabledNeverSpeaks(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)
	off := false
	require.NoError(t, r.UpdateConfig(ConfigPatch{VoiceEnabled: &off}))
	res := r.Route(alert("loud", 99))
	assert.False(t, res.Delivery.ShouldSpeak)
}

func TestAlertTTLByPriority(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)
	r.Route(alert("high", 90))
	clk.Advance(10 * time.Second)
	r.Route(alert("low", 10))

	clk.Advance(5*time.Minute - time.Millisecond)
	assert.Len(t, r.ActiveAlerts(), 2)

	clk.Advance(time.Millisecond)
	active := r.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "high", active[0].Title)

	clk.Advance(10 * time.Minute)
	assert.Empty(t, r.ActiveAlerts())
	assert.Len(t, r.History(0), 2)
}

func TestActiveCapEvictsOldest(t *testing.T) {
	clk := newClock()
	max := 3
	r := newRouter(clk)
	require.NoError(t, r.UpdateConfig(ConfigPatch{MaxActiveAlerts: &max}))

	for i := 0; i < 4; i++ {
		r.Route(alert(fmt.Sprintf("a%d", i), 40))
		clk.Advance(10 * time.Second)
	}
	active := r.ActiveAlerts()
	require.Len(t, active, 3)
	assert.Equal(t, "a1", active[0].Title)
	assert.Equal(t, "a3", active[2].Title)

	hist := r.History(0)
	require.Len(t, hist, 4)
	assert.Equal(t, "a3", hist[0].Title)
}

func TestQueueFlushAndExpiry(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	r.Route(alert("first", 95))
	assert.Equal(t, models.RouteQueued, r.Route(alert("second", 95)).Status)
	assert.Equal(t, models.RouteQueued, r.Route(alert("third", 95)).Status)

	_, ok := r.ProcessQueueOnce()
	assert.False(t, ok, "still inside the interval")

	clk.Advance(10 * time.Second)
	res, ok := r.ProcessQueueOnce()
	require.True(t, ok)
	assert.Equal(t, "second", res.Delivery.Alert.Title)

	clk.Advance(5 * time.Minute)
	_, ok = r.ProcessQueueOnce()
	assert.False(t, ok)
	assert.Empty(t, r.QueuedAlerts())
}

func TestQueueCapDropsOldest(t *testing.T) {
	clk := newClock()
	size := 2
	r := newRouter(clk)
	require.NoError(t, r.UpdateConfig(ConfigPatch{MaxQueueSize: &size}))

	r.Route(alert("routed", 95))
	for _, title := range []string{"q1", "q2", "q3"} {
		r.Route(alert(title, 95))
	}
	queued := r.QueuedAlerts()
	require.Len(t, queued, 2)
	assert.Equal(t, "q2", queued[0].Title)
	assert.Equal(t, "q3", queued[1].Title)
}

func TestListenerPanicDoesNotBlockOthers(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)

	var got []string
	r.Subscribe(ListenerFunc(func(models.AlertDelivery) { panic("boom") }))
	id := r.Subscribe(ListenerFunc(func(d models.AlertDelivery) { got = append(got, d.Alert.Title) }))

	res := r.Route(alert("fanout", 80))
	assert.Equal(t, models.RouteRouted, res.Status)
	assert.Equal(t, []string{"fanout"}, got)

	r.Unsubscribe(id)
	clk.Advance(10 * time.Second)
	r.Route(alert("after", 80))
	assert.Equal(t, []string{"fanout"}, got)
}

func TestCommands(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)
	id := r.Route(alert("cmd", 80)).Delivery.Alert.ID

	require.NoError(t, r.Acknowledge(id))
	require.NoError(t, r.MarkSpoken(id))
	require.NoError(t, r.MarkDisplayed(id))
	a := r.ActiveAlerts()[0]
	assert.True(t, a.Acknowledged && a.Spoken && a.Displayed)
	assert.Empty(t, r.Unacknowledged())
	assert.Len(t, r.HighPriority(), 1)
	assert.Len(t, r.ByCategory(models.CategoryAnomaly), 1)

	require.NoError(t, r.Dismiss(id))
	assert.Empty(t, r.ActiveAlerts())
	assert.True(t, errors.Is(r.Dismiss(id), models.ErrAlertNotFound))
	assert.True(t, errors.Is(r.Acknowledge("missing"), models.ErrAlertNotFound))

	clk.Advance(10 * time.Second)
	r.Route(alert("x", 40))
	clk.Advance(10 * time.Second)
	r.Route(alert("y", 40))
	assert.Equal(t, 2, r.DismissAll())
	assert.Empty(t, r.ActiveAlerts())
}

func TestCommandsRejectExpiredAlerts(t *testing.T) {
	clk := newClock()
	r := newRouter(clk)
	id := r.Route(alert("stale", 10)).Delivery.Alert.ID

	clk.Advance(5 * time.Minute)
	require.Empty(t, r.ActiveAlerts())
	assert.True(t, errors.Is(r.Acknowledge(id), models.ErrAlertNotFound))
	assert.True(t, errors.Is(r.MarkSpoken(id), models.ErrAlertNotFound))
	assert.True(t, errors.Is(r.MarkDisplayed(id), models.ErrAlertNotFound))
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	r := New()
	bad := 0
	err := r.UpdateConfig(ConfigPatch{MaxAlertsPerHour: &bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
	assert.Equal(t, 10, r.Config().MaxAlertsPerHour)

	low := 90.0
	err = r.UpdateConfig(ConfigPatch{MediumPriorityThreshold: &low})
	assert.Error(t, err, "medium above high")
}

func TestQueueProcessorStartStopIdempotent(t *testing.T) {
	r := New()
	r.StartQueueProcessor()
	r.StartQueueProcessor()
	assert.True(t, r.QueueProcessorRunning())
	r.StopQueueProcessor()
	r.StopQueueProcessor()
	assert.False(t, r.QueueProcessorRunning())
}
