package fragility

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

func thinBook() *models.OrderBook {
	return &models.OrderBook{
		Bids: []models.BookLevel{{Price: 100, Size: 5}, {Price: 99.8, Size: 1000}},
		Asks: []models.BookLevel{{Price: 100.1, Size: 1000}},
	}
}

func TestSingleThinLevelProducesOneZone(t *testing.T) {
	d, _ := newDetector()
	alert := d.Scan(models.MarketInputs{Symbol: "ETH", CurrentPrice: 100.05, OrderBook: thinBook()})

	require.Len(t, alert.Zones, 1)
	z := alert.Zones[0]
	assert.Equal(t, models.ZoneThinPocket, z.Type)
	assert.True(t, z.Severity.AtLeast(models.SeverityMedium))
	assert.Equal(t, models.SideBuy, z.Side)
	assert.Equal(t, 5.0, z.LiquidityDepth)
	assert.Equal(t, models.PriceRange{Low: 99.8, High: 100}, z.PriceRange)
	assert.InDelta(t, 91, z.VulnerabilityScore, 0.5)
	assert.Equal(t, models.VulnerabilityCritical, alert.MarketVulnerability)
	require.NotNil(t, alert.NearestCritical)
	assert.Equal(t, z.ID, alert.NearestCritical.ID)
	assert.Contains(t, alert.Summary, "Thin liquidity pocket")
}

func TestGapOnlyCountsForNearThinLevels(t *testing.T) {
	thinPockets := func(a models.FragilityAlert) []models.FragilityZone {
		var out []models.FragilityZone
		for _, z := range a.Zones {
			if z.Type == models.ZoneThinPocket {
				out = append(out, z)
			}
		}
		return out
	}
	asks := []models.BookLevel{{Price: 100.1, Size: 1000}, {Price: 100.2, Size: 150}}

	d, _ := newDetector()
	alert := d.Scan(models.MarketInputs{CurrentPrice: 100.05, OrderBook: &models.OrderBook{
		Bids: []models.BookLevel{{Price: 100, Size: 150}, {Price: 99.7, Size: 1000}},
		Asks: asks,
	}})
	zones := thinPockets(alert)
	require.Len(t, zones, 1)
	assert.Equal(t, 150.0, zones[0].LiquidityDepth)
	assert.Equal(t, models.PriceRange{Low: 99.7, High: 100}, zones[0].PriceRange)

	d, _ = newDetector()
	alert = d.Scan(models.MarketInputs{CurrentPrice: 100.05, OrderBook: &models.OrderBook{
		Bids: []models.BookLevel{{Price: 100, Size: 1000}, {Price: 99.7, Size: 1000}},
		Asks: asks,
	}})
	assert.Empty(t, thinPockets(alert))
}

func TestPriceOnlyIsStable(t *testing.T) {
	d, _ := newDetector()
	alert := d.Scan(models.MarketInputs{CurrentPrice: 100})
	assert.Empty(t, alert.Zones)
	assert.Equal(t, models.VulnerabilityStable, alert.MarketVulnerability)
	assert.Equal(t, 0.0, alert.OverallScore)

	alert = d.Scan(models.MarketInputs{})
	assert.Empty(t, alert.Zones)
}

func TestGlobalImbalanceFlagsWeakSide(t *testing.T) {
	d, _ := newDetector()
	alert := d.Scan(models.MarketInputs{
		CurrentPrice: 100.1,
		OrderBook: &models.OrderBook{
			Bids: []models.BookLevel{{Price: 100, Size: 3000}},
			Asks: []models.BookLevel{{Price: 100.2, Size: 1000}},
		},
	})
	require.Len(t, alert.Zones, 1)
	assert.Equal(t, models.ZoneOrderImbalance, alert.Zones[0].Type)
	assert.Equal(t, models.SideSell, alert.Zones[0].Side)
	assert.Contains(t, alert.Zones[0].Description, "3.0:1")
}

func TestLocalImbalanceWindow(t *testing.T) {
	levels := func(start, step, size float64) []models.BookLevel {
		out := make([]models.BookLevel, 10)
		for i := range out {
			out[i] = models.BookLevel{Price: start + step*float64(i), Size: size}
		}
		return out
	}
	bids := levels(99.99, -0.01, 400)
	asks := levels(100.01, 0.01, 400)
	for i := 0; i < 5; i++ {
		bids[i].Size = 2000
		asks[5+i].Size = 2000
	}
	d, _ := newDetector()
	zones := d.Scan(models.MarketInputs{CurrentPrice: 100, OrderBook: &models.OrderBook{Bids: bids, Asks: asks}}).Zones
	var imb []models.FragilityZone
	for _, z := range zones {
		if z.Type == models.ZoneOrderImbalance {
			imb = append(imb, z)
		}
	}
	require.Len(t, imb, 1)
	assert.Equal(t, models.SideSell, imb[0].Side)
	assert.Contains(t, imb[0].Description, "levels 1-5")
}

func TestLiquidationBucketing(t *testing.T) {
	d, _ := newDetector()
	d.Scan(models.MarketInputs{
		CurrentPrice: 1000,
		Liquidations: []models.LiquidationHint{
			{Price: 981, Volume: 600, Side: models.SideSell},
			{Price: 979, Volume: 600, Side: models.SideSell},
			{Price: 1010, Volume: 500, Side: models.SideBuy},
			{Price: 1200, Volume: 5000, Side: models.SideBuy},
		},
	})
	zones := d.ZonesByType(models.ZoneLiquidationVacuum)
	require.Len(t, zones, 1)
	assert.Equal(t, models.PriceRange{Low: 975, High: 985}, zones[0].PriceRange)
	assert.InDelta(t, 2.0, zones[0].DistancePct, 1e-9)
	assert.Contains(t, zones[0].Description, "980")
}

func TestStopClustersRespectStrength(t *testing.T) {
	d, _ := newDetector()
	d.Scan(models.MarketInputs{
		CurrentPrice: 1000,
		StopClusters: []models.StopLossCluster{
			{Price: 990, Strength: 80},
			{Price: 995, Strength: 30},
			{Price: 700, Strength: 95},
		},
	})
	zones := d.ZonesByType(models.ZoneStopCluster)
	require.Len(t, zones, 1)
	assert.Equal(t, models.SideSell, zones[0].Side)
}

func TestSpoofAndWashHeuristics(t *testing.T) {
	d, _ := newDetector()
	d.Scan(models.MarketInputs{
		CurrentPrice: 100.05,
		OrderBook: &models.OrderBook{
			Bids: []models.BookLevel{{Price: 100, Size: 200}, {Price: 99.9, Size: 200}, {Price: 98.5, Size: 5000}},
			Asks: []models.BookLevel{{Price: 100.1, Size: 200}, {Price: 100.2, Size: 200}, {Price: 100.3, Size: 200}},
		},
	})
	spoof := d.ZonesByType(models.ZoneSpoofLiquidity)
	require.Len(t, spoof, 1)
	assert.Equal(t, 98.5, spoof[0].PriceRange.Low)
	assert.NotEmpty(t, d.ZonesByType(models.ZoneLiquidityGap))

	w, _ := newDetector()
	w.Scan(models.MarketInputs{
		CurrentPrice: 1000.1,
		Volume24h:    5000,
		OrderBook: &models.OrderBook{
			Bids: []models.BookLevel{{Price: 1000, Size: 50}},
			Asks: []models.BookLevel{{Price: 1000.2, Size: 50}},
		},
	})
	assert.Len(t, w.ZonesByType(models.ZoneWashTrading), 1)
}

func TestZonesExpireAndEvictOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxZones = 2
	d, clk := newDetector(WithConfig(cfg))

	first := d.Scan(models.MarketInputs{CurrentPrice: 100.05, OrderBook: thinBook()}).Zones[0]
	clk.Advance(time.Second)
	d.Scan(models.MarketInputs{CurrentPrice: 100.05, OrderBook: thinBook()})
	clk.Advance(time.Second)
	d.Scan(models.MarketInputs{CurrentPrice: 100.05, OrderBook: thinBook()})

	active := d.ActiveZones()
	require.Len(t, active, 2)
	for _, z := range active {
		assert.NotEqual(t, first.ID, z.ID)
	}

	clk.Advance(2*time.Minute - time.Second)
	assert.Len(t, d.ActiveZones(), 1)
	_, ok := d.LatestAlert()
	assert.True(t, ok)

	clk.Advance(time.Second)
	assert.Empty(t, d.ActiveZones())
	assert.Empty(t, d.CriticalZones())
	_, ok = d.LatestAlert()
	assert.False(t, ok)
	assert.Len(t, d.AlertHistory(0), 3)
}

func TestAggregateClassification(t *testing.T) {
	d, _ := newDetector()
	zone := func(sev models.Severity, score float64) models.FragilityZone {
		return models.FragilityZone{Severity: sev, VulnerabilityScore: score}
	}
	three := []models.FragilityZone{
		zone(models.SeverityHigh, 45), zone(models.SeverityHigh, 45), zone(models.SeverityHigh, 45),
	}
	assert.Equal(t, models.VulnerabilityFragile, d.aggregate("X", three, time.Now()).MarketVulnerability)
	assert.Equal(t, models.VulnerabilityFragile, d.aggregate("X", []models.FragilityZone{zone(models.SeverityMedium, 55)}, time.Now()).MarketVulnerability)
	assert.Equal(t, models.VulnerabilityCritical, d.aggregate("X", []models.FragilityZone{zone(models.SeverityMedium, 75)}, time.Now()).MarketVulnerability)
	assert.Equal(t, models.VulnerabilityStable, d.aggregate("X", []models.FragilityZone{zone(models.SeverityLow, 30)}, time.Now()).MarketVulnerability)
}

func TestUpdateConfigRejectsBadRatio(t *testing.T) {
	d, _ := newDetector()
	bad := 0.5
	require.ErrorIs(t, d.UpdateConfig(ConfigPatch{GlobalImbalanceRatio: &bad}), models.ErrInvalidConfig)
	thin := 10.0
	require.NoError(t, d.UpdateConfig(ConfigPatch{ThinThreshold: &thin}))
	assert.Equal(t, 10.0, d.Config().ThinThreshold)
}
