package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Watchdog/internal/domain/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine(opts ...Option) (*Engine, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewEngine(append([]Option{WithClock(clk.Now)}, opts...)...), clk
}

func seed(t *testing.T, e *Engine, clk *fakeClock, in models.MarketInputs, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.Empty(t, e.Detect(in))
		clk.Advance(time.Second)
	}
}

func TestNoAnomalyBeforeBaselineFills(t *testing.T) {
	e, clk := newEngine()
	for i := 0; i < 4; i++ {
		assert.Empty(t, e.Detect(models.MarketInputs{Volume24h: 1000}))
		clk.Advance(time.Second)
	}
	assert.Empty(t, e.Detect(models.MarketInputs{Volume24h: 1000}))
	got := e.Detect(models.MarketInputs{Volume24h: 3000})
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, models.AnomalyVolumeSpike, a.Type)
	assert.Equal(t, models.SourceVolume, a.Source)
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.InDelta(t, 0.95, a.Confidence, 1e-9)
	assert.InDelta(t, 200.0, a.DeviationPct, 1e-9)
	assert.Equal(t, 1000.0, a.BaselineValue)
}

func TestDuplicateWithinWindowIsDropped(t *testing.T) {
	e, clk := newEngine()
	seed(t, e, clk, models.MarketInputs{Volume24h: 1000}, 5)

	require.Len(t, e.Detect(models.MarketInputs{Volume24h: 3000}), 1)
	clk.Advance(time.Second)
	assert.Empty(t, e.Detect(models.MarketInputs{Volume24h: 3000}))
	assert.Len(t, e.Active(), 1)
}

func TestMoreSevereDuplicateReplaces(t *testing.T) {
	e, clk := newEngine()
	seed(t, e, clk, models.MarketInputs{CurrentPrice: 100}, 5)

	first := e.Detect(models.MarketInputs{CurrentPrice: 140})
	require.Len(t, first, 1)
	assert.Equal(t, models.SeverityMedium, first[0].Severity)

	clk.Advance(time.Second)
	second := e.Detect(models.MarketInputs{CurrentPrice: 200})
	require.Len(t, second, 1)
	assert.Equal(t, models.SeverityCritical, second[0].Severity)

	active := e.ByType(models.AnomalyPriceSpike)
	require.Len(t, active, 1)
	assert.Equal(t, second[0].ID, active[0].ID)
	assert.Len(t, e.History(0), 2)
	assert.Len(t, e.Critical(), 1)
}

func TestLowConfidenceIsDiscarded(t *testing.T) {
	e, clk := newEngine()
	seed(t, e, clk, models.MarketInputs{CurrentPrice: 100}, 5)
	assert.Empty(t, e.Detect(models.MarketInputs{CurrentPrice: 112}))
}

func TestNegativeDeviationUsesDownType(t *testing.T) {
	e, clk := newEngine()
	book := func(size float64) *models.OrderBook {
		return &models.OrderBook{
			Bids: []models.BookLevel{{Price: 99.9, Size: size}},
			Asks: []models.BookLevel{{Price: 100.1, Size: size}},
		}
	}
	seed(t, e, clk, models.MarketInputs{OrderBook: book(1000)}, 5)

	got := e.Detect(models.MarketInputs{OrderBook: book(100)})
	types := make([]models.AnomalyType, 0, len(got))
	for _, a := range got {
		types = append(types, a.Type)
		assert.Equal(t, models.SourceLiquidity, a.Source)
	}
	assert.ElementsMatch(t, []models.AnomalyType{models.AnomalyLiquidityDrain, models.AnomalyDepthCollapse}, types)
	assert.Len(t, e.BySource(models.SourceLiquidity), 2)
}

func TestAnomalyExpiresAfterTTL(t *testing.T) {
	e, clk := newEngine()
	seed(t, e, clk, models.MarketInputs{Volume24h: 1000}, 5)
	require.Len(t, e.Detect(models.MarketInputs{Volume24h: 5000}), 1)

	clk.Advance(5*time.Minute - time.Millisecond)
	assert.Len(t, e.Active(), 1)
	clk.Advance(time.Millisecond)
	assert.Empty(t, e.Active())
	assert.Len(t, e.History(10), 1)
}

func TestActiveCapEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActive = 2
	e, clk := newEngine(WithConfig(cfg))
	seed(t, e, clk, models.MarketInputs{
		Volume24h:    1000,
		CurrentPrice: 100,
		OrderFlow:    &models.OrderFlowStats{CancelRate: 0.2},
	}, 5)

	vol := e.Detect(models.MarketInputs{Volume24h: 4000})
	require.Len(t, vol, 1)
	clk.Advance(time.Second)
	require.Len(t, e.Detect(models.MarketInputs{CurrentPrice: 200}), 1)
	clk.Advance(time.Second)
	require.Len(t, e.Detect(models.MarketInputs{OrderFlow: &models.OrderFlowStats{CancelRate: 0.9}}), 1)

	active := e.Active()
	require.Len(t, active, 2)
	for _, a := range active {
		assert.NotEqual(t, vol[0].ID, a.ID)
	}
	assert.Equal(t, models.AnomalyCancelStorm, active[1].Type)
}

func TestNeutralInputsNeverPanic(t *testing.T) {
	e, _ := newEngine()
	for i := 0; i < 10; i++ {
		assert.Empty(t, e.Detect(models.MarketInputs{CurrentPrice: 50}))
	}
	assert.Empty(t, e.Detect(models.MarketInputs{}))
}

func TestBaselineSnapshotAndReset(t *testing.T) {
	e, clk := newEngine()
	seed(t, e, clk, models.MarketInputs{Volume24h: 10, CurrentPrice: 2}, 3)
	snap := e.BaselineSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "price.current", snap[0].Metric)
	assert.Equal(t, 3, snap[0].Samples)
	assert.Equal(t, 10.0, snap[1].Mean)

	e.Reset()
	assert.Empty(t, e.BaselineSnapshot())
}

func TestUpdateConfigValidates(t *testing.T) {
	e, _ := newEngine()
	bad := -1.0
	require.ErrorIs(t, e.UpdateConfig(ConfigPatch{MinConfidence: &bad}), models.ErrInvalidConfig)
	require.ErrorIs(t, e.UpdateConfig(ConfigPatch{Thresholds: map[string]float64{"nope": 5}}), models.ErrInvalidConfig)

	require.NoError(t, e.UpdateConfig(ConfigPatch{Thresholds: map[string]float64{"price.current": 5}}))
	assert.Equal(t, 5.0, e.Config().Thresholds["price.current"])
	assert.Equal(t, 100.0, e.Config().Thresholds["volume.24h"])
}
