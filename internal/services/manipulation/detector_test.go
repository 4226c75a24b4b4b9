package manipulation

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

func newDetector(opts ...Option) (*Detector, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewDetector(append([]Option{WithClock(clk.Now)}, opts...)...), clk
}

func only(t *testing.T, sigs []models.ManipulationSignal) models.ManipulationSignal {
	t.Helper()
	require.Len(t, sigs, 1)
	return sigs[0]
}

func pulls(entity string, prices ...float64) []models.BookDelta {
	out := make([]models.BookDelta, 0, len(prices))
	for _, p := range prices {
		out = append(out, models.BookDelta{Price: p, SizeChange: -100, Side: models.SideBuy, EntityID: entity})
	}
	return out
}

func TestSpoofingNeedsCancelsAndChurn(t *testing.T) {
	d, _ := newDetector()
	sig := only(t, d.Detect(models.MarketInputs{
		Symbol:     "BTC",
		OrderFlow:  &models.OrderFlowStats{CancelRate: 0.9, AvgOrderLifetimeMs: 200, OrderToTradeRatio: 30, TotalOrders: 500},
		BookDeltas: pulls("e1", 99, 98),
	}))
	assert.Equal(t, models.ManipSpoofing, sig.Type)
	assert.InDelta(t, 0.833, sig.Probability, 0.001)
	assert.Equal(t, models.ImpactModerate, sig.Impact)
	assert.Equal(t, models.SeverityMedium, sig.Severity)
	assert.Equal(t, []string{"e1"}, sig.EntityIDs())
	assert.Equal(t, ClusterID([]string{"e1"}), sig.ClusterID)
	require.NotNil(t, sig.PriceRange)
	assert.Equal(t, models.PriceRange{Low: 98, High: 99}, *sig.PriceRange)

	quiet, _ := newDetector()
	assert.Empty(t, quiet.Detect(models.MarketInputs{
		OrderFlow: &models.OrderFlowStats{CancelRate: 0.9, AvgOrderLifetimeMs: 2000, OrderToTradeRatio: 5},
	}))
}

func TestWashTradingBetweenRelatedEntities(t *testing.T) {
	d, _ := newDetector()
	sig := only(t, d.Detect(models.MarketInputs{
		Trades: []models.Trade{
			{Price: 100, Volume: 100, Maker: "A", Taker: "B", Side: models.SideBuy},
			{Price: 100, Volume: 100, Maker: "B", Taker: "A", Side: models.SideSell},
			{Price: 100, Volume: 50, Maker: "C", Taker: "D", Side: models.SideBuy},
		},
	}))
	assert.Equal(t, models.ManipWashTrading, sig.Type)
	assert.InDelta(t, 0.86, sig.Probability, 1e-9)
	assert.Equal(t, []string{"A", "B"}, sig.EntityIDs())
}

func flatTrades(vol float64) []models.Trade {
	return []models.Trade{{Price: 100, Volume: vol / 2}, {Price: 100, Volume: vol / 2}}
}

func TestPumpAndDumpNeedVolumeAndPrice(t *testing.T) {
	d, _ := newDetector()
	for i := 0; i < 3; i++ {
		assert.Empty(t, d.Detect(models.MarketInputs{Trades: flatTrades(100)}))
	}

	// Volume alone is not enough.
	assert.Empty(t, d.Detect(models.MarketInputs{Trades: []models.Trade{
		{Price: 100, Volume: 250, Side: models.SideBuy, Taker: "p1"},
		{Price: 101, Volume: 250, Side: models.SideBuy, Taker: "p2"},
	}}))

	sig := only(t, d.Detect(models.MarketInputs{Trades: []models.Trade{
		{Price: 100, Volume: 300, Side: models.SideBuy, Taker: "p1"},
		{Price: 108, Volume: 300, Side: models.SideBuy, Taker: "p2"},
	}}))
	assert.Equal(t, models.ManipPumpGroup, sig.Type)
	assert.Equal(t, models.ImpactSignificant, sig.Impact)
	assert.ElementsMatch(t, []string{"p1", "p2"}, sig.EntityIDs())

	dump, _ := newDetector()
	for i := 0; i < 3; i++ {
		dump.Detect(models.MarketInputs{Trades: flatTrades(100)})
	}
	sig = only(t, dump.Detect(models.MarketInputs{Trades: []models.Trade{
		{Price: 100, Volume: 500, Side: models.SideSell, Taker: "s1"},
		{Price: 88, Volume: 500, Side: models.SideSell, Taker: "s1"},
	}}))
	assert.Equal(t, models.ManipDumpGroup, sig.Type)
	assert.Equal(t, models.ImpactSevere, sig.Impact)
}

func TestStopHuntWickAndReversal(t *testing.T) {
	d, _ := newDetector()
	sig := only(t, d.Detect(models.MarketInputs{
		StopClusters: []models.StopLossCluster{{Price: 95, Strength: 80}},
		Trades: []models.Trade{
			{Price: 100, Volume: 1, Side: models.SideBuy, Taker: "z"},
			{Price: 97, Volume: 5, Side: models.SideSell, Taker: "h1"},
			{Price: 94.5, Volume: 5, Side: models.SideSell, Taker: "h1"},
			{Price: 96, Volume: 1, Side: models.SideBuy, Taker: "x"},
			{Price: 99, Volume: 1, Side: models.SideBuy, Taker: "y"},
		},
	}))
	assert.Equal(t, models.ManipStopHunt, sig.Type)
	assert.Equal(t, models.SeverityHigh, sig.Severity)
	assert.Equal(t, []string{"h1"}, sig.EntityIDs())
	assert.Equal(t, models.PriceRange{Low: 94.5, High: 95}, *sig.PriceRange)
}

func TestMomentumIgnitionSingleAggressor(t *testing.T) {
	d, _ := newDetector()
	var trades []models.Trade
	for i := 0; i < 6; i++ {
		trades = append(trades, models.Trade{Price: 100 + 0.25*float64(i), Volume: 10, Side: models.SideBuy, Taker: "m1"})
	}
	trades = append(trades, models.Trade{Price: 101.5, Volume: 5, Side: models.SideBuy, Taker: "z"})
	sig := only(t, d.Detect(models.MarketInputs{Trades: trades}))
	assert.Equal(t, models.ManipMomentumIgnition, sig.Type)
	assert.Equal(t, []string{"m1"}, sig.EntityIDs())
	assert.Equal(t, models.SeverityMedium, sig.Severity)
}

func TestQuoteStuffing(t *testing.T) {
	d, _ := newDetector()
	sig := only(t, d.Detect(models.MarketInputs{
		OrderFlow: &models.OrderFlowStats{OrdersPerSecond: 800, CancelRate: 0.95, TotalOrders: 1000},
	}))
	assert.Equal(t, models.ManipQuoteStuffing, sig.Type)
	assert.InDelta(t, 0.85, sig.Probability, 1e-9)
	assert.Equal(t, models.ImpactModerate, sig.Impact)
}

func TestPaintingTheTape(t *testing.T) {
	d, _ := newDetector()
	var trades []models.Trade
	for i := 0; i < 12; i++ {
		trades = append(trades, models.Trade{Price: 100 + 0.01*float64(i), Volume: 1, Side: models.SideBuy, Taker: "t1"})
	}
	sig := only(t, d.Detect(models.MarketInputs{Trades: trades}))
	assert.Equal(t, models.ManipPaintingTheTape, sig.Type)
	assert.Equal(t, models.SeverityLow, sig.Severity)
	assert.InDelta(t, 0.8, sig.Probability, 1e-9)
}

func layeringDeltas(entity string) []models.BookDelta {
	var out []models.BookDelta
	for _, p := range []float64{99, 98, 97, 96} {
		out = append(out, models.BookDelta{Price: p, SizeChange: 500, Side: models.SideBuy, EntityID: entity})
	}
	for _, p := range []float64{99, 98, 97} {
		out = append(out, models.BookDelta{Price: p, SizeChange: -500, Side: models.SideBuy, EntityID: entity})
	}
	return out
}

func TestLayering(t *testing.T) {
	d, _ := newDetector()
	sig := only(t, d.Detect(models.MarketInputs{BookDeltas: layeringDeltas("L1")}))
	assert.Equal(t, models.ManipLayering, sig.Type)
	assert.InDelta(t, 0.6, sig.Probability, 1e-9)
	assert.Equal(t, []string{"L1"}, sig.EntityIDs())
}

func TestCoordinatedAttackComposite(t *testing.T) {
	d, _ := newDetector()
	sigs := d.Detect(models.MarketInputs{
		OrderFlow:  &models.OrderFlowStats{CancelRate: 0.9, AvgOrderLifetimeMs: 200, TotalOrders: 200},
		BookDeltas: layeringDeltas("X"),
	})
	require.Len(t, sigs, 3)
	last := sigs[2]
	assert.Equal(t, models.ManipCoordinatedAttack, last.Type)
	assert.Equal(t, models.SeverityCritical, last.Severity)
	assert.Equal(t, []string{"X"}, last.EntityIDs())
	assert.Len(t, d.ByEntity("X"), 3)
	assert.Len(t, d.Critical(), 1)
}

func TestProbabilityFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProbability = 0.9
	d, _ := newDetector(WithConfig(cfg))
	assert.Empty(t, d.Detect(models.MarketInputs{
		OrderFlow: &models.OrderFlowStats{CancelRate: 0.9, AvgOrderLifetimeMs: 200, OrderToTradeRatio: 30},
	}))
}

func TestNeutralInputs(t *testing.T) {
	d, _ := newDetector()
	assert.Empty(t, d.Detect(models.MarketInputs{CurrentPrice: 100}))
	assert.Empty(t, d.Active())
}

func TestExpiryAndCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActive = 2
	d, clk := newDetector(WithConfig(cfg))
	in := models.MarketInputs{OrderFlow: &models.OrderFlowStats{OrdersPerSecond: 800, CancelRate: 0.95}}

	first := only(t, d.Detect(in))
	clk.Advance(time.Second)
	d.Detect(in)
	clk.Advance(time.Second)
	d.Detect(in)

	active := d.Active()
	require.Len(t, active, 2)
	assert.NotEqual(t, first.ID, active[0].ID)
	assert.Len(t, d.History(0), 3)
	assert.Len(t, d.ByType(models.ManipQuoteStuffing), 2)

	clk.Advance(5 * time.Minute)
	assert.Empty(t, d.Active())
}

func TestClusterIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, ClusterID([]string{"b", "a"}), ClusterID([]string{"a", "b"}))
	assert.NotEqual(t, ClusterID([]string{"a"}), ClusterID([]string{"a", "b"}))
	assert.Empty(t, ClusterID(nil))
}

func TestUpdateConfig(t *testing.T) {
	d, _ := newDetector()
	bad := 1.5
	require.ErrorIs(t, d.UpdateConfig(ConfigPatch{MinProbability: &bad}), models.ErrInvalidConfig)
	ok := 0.5
	require.NoError(t, d.UpdateConfig(ConfigPatch{MinProbability: &ok}))
	assert.Equal(t, 0.5, d.Config().MinProbability)
}
