package anomaly

import (
	"math"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
)

// rule extracts one metric from a snapshot. up and down name the anomaly
// reported for a positive or negative deviation; empty means ignore.
type rule struct {
	metric    string
	source    models.AnomalySource
	threshold float64
	up        models.AnomalyType
	down      models.AnomalyType
	radius    models.ImpactRadius
	value     func(in *models.MarketInputs) (float64, bool)
	entities  func(in *models.MarketInputs) []string
}

var rules = []rule{
	{
		metric: "whale.inflow", source: models.SourceWhale, threshold: 150,
		up: models.AnomalyWhaleSurge, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.WhaleIntel == nil {
				return 0, false
			}
			return math.Max(0, in.WhaleIntel.NetFlow), true
		},
		entities: whales,
	},
	{
		metric: "whale.outflow", source: models.SourceWhale, threshold: 150,
		up: models.AnomalyWhaleExodus, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.WhaleIntel == nil {
				return 0, false
			}
			return math.Max(0, -in.WhaleIntel.NetFlow), true
		},
		entities: whales,
	},
	{
		metric: "whale.large_transactions", source: models.SourceWhale, threshold: 100,
		up: models.AnomalyWhaleSurge, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.WhaleIntel == nil {
				return 0, false
			}
			return float64(in.WhaleIntel.LargeTransactions), true
		},
		entities: whales,
	},
	{
		metric: "liquidity.total_depth", source: models.SourceLiquidity, threshold: 40,
		down: models.AnomalyLiquidityDrain, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderBook == nil {
				return 0, false
			}
			return in.OrderBook.TotalDepth(), true
		},
	},
	{
		metric: "liquidity.spread_bps", source: models.SourceLiquidity, threshold: 100,
		up: models.AnomalySpreadBlowout, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderBook == nil {
				return 0, false
			}
			mid := in.OrderBook.MidPrice()
			if mid <= 0 {
				return 0, false
			}
			return in.OrderBook.SpreadValue() / mid * 10000, true
		},
	},
	{
		metric: "liquidity.top_depth", source: models.SourceLiquidity, threshold: 50,
		down: models.AnomalyDepthCollapse, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderBook == nil {
				return 0, false
			}
			return topDepth(in.OrderBook.Bids, 5) + topDepth(in.OrderBook.Asks, 5), true
		},
	},
	{
		metric: "cluster.tightness", source: models.SourceCluster, threshold: 40,
		up: models.AnomalyClusterFormation, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.Clusters == nil {
				return 0, false
			}
			return in.Clusters.Tightness, true
		},
		entities: clusterIDs,
	},
	{
		metric: "cluster.count", source: models.SourceCluster, threshold: 50,
		up: models.AnomalyClusterFormation, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.Clusters == nil {
				return 0, false
			}
			return float64(in.Clusters.ClusterCount), true
		},
		entities: clusterIDs,
	},
	{
		metric: "cluster.coordination", source: models.SourceCluster, threshold: 40,
		up: models.AnomalyCoordinationSpike, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.Clusters == nil {
				return 0, false
			}
			return in.Clusters.CoordinationScore, true
		},
		entities: clusterIDs,
	},
	{
		metric: "entity_risk.avg_risk", source: models.SourceEntityRisk, threshold: 30,
		up: models.AnomalyRiskEscalation, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.EntityRisk == nil {
				return 0, false
			}
			return in.EntityRisk.AvgRiskScore, true
		},
		entities: highRisk,
	},
	{
		metric: "entity_risk.high_risk_count", source: models.SourceEntityRisk, threshold: 50,
		up: models.AnomalyHighRiskInflux, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.EntityRisk == nil {
				return 0, false
			}
			return float64(len(in.EntityRisk.HighRiskEntities) + in.EntityRisk.NewHighRiskCount), true
		},
		entities: highRisk,
	},
	{
		metric: "volume.24h", source: models.SourceVolume, threshold: 100,
		up: models.AnomalyVolumeSpike, down: models.AnomalyVolumeDrought, radius: models.ImpactMarketWide,
		value: func(in *models.MarketInputs) (float64, bool) {
			return in.Volume24h, in.Volume24h > 0
		},
	},
	{
		metric: "volume.tape", source: models.SourceVolume, threshold: 100,
		up: models.AnomalyVolumeSpike, down: models.AnomalyVolumeDrought, radius: models.ImpactSector,
		value: func(in *models.MarketInputs) (float64, bool) {
			if len(in.Trades) == 0 {
				return 0, false
			}
			total := 0.0
			for _, t := range in.Trades {
				total += t.Volume
			}
			return total, true
		},
	},
	{
		metric: "price.current", source: models.SourcePrice, threshold: 10,
		up: models.AnomalyPriceSpike, down: models.AnomalyPriceCrash, radius: models.ImpactMarketWide,
		value: func(in *models.MarketInputs) (float64, bool) {
			p := in.ReferencePrice()
			return p, p > 0
		},
	},
	{
		metric: "price.volatility", source: models.SourcePrice, threshold: 100,
		up: models.AnomalyVolatilitySpike, radius: models.ImpactMarketWide,
		value: func(in *models.MarketInputs) (float64, bool) {
			if len(in.Trades) < 3 {
				return 0, false
			}
			prices := make([]float64, len(in.Trades))
			for i, t := range in.Trades {
				prices[i] = t.Price
			}
			return features.Volatility(prices), true
		},
	},
	{
		metric: "order_flow.cancel_rate", source: models.SourceOrderFlow, threshold: 50,
		up: models.AnomalyCancelStorm, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderFlow == nil {
				return 0, false
			}
			return in.OrderFlow.CancelRate, true
		},
	},
	{
		metric: "order_flow.orders_per_second", source: models.SourceOrderFlow, threshold: 100,
		up: models.AnomalyOrderFlowSurge, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderFlow == nil {
				return 0, false
			}
			return in.OrderFlow.OrdersPerSecond, true
		},
	},
	{
		metric: "order_flow.order_to_trade", source: models.SourceOrderFlow, threshold: 100,
		up: models.AnomalyOrderFlowSurge, radius: models.ImpactLocal,
		value: func(in *models.MarketInputs) (float64, bool) {
			if in.OrderFlow == nil {
				return 0, false
			}
			return in.OrderFlow.OrderToTradeRatio, true
		},
	},
}

var ruleByMetric = func() map[string]rule {
	m := make(map[string]rule, len(rules))
	for _, r := range rules {
		m[r.metric] = r
	}
	return m
}()

func topDepth(levels []models.BookLevel, n int) float64 {
	total := 0.0
	for i, l := range levels {
		if i >= n {
			break
		}
		total += l.Size
	}
	return total
}

func whales(in *models.MarketInputs) []string {
	if in.WhaleIntel == nil {
		return nil
	}
	return in.WhaleIntel.ActiveWhales
}

func clusterIDs(in *models.MarketInputs) []string {
	if in.Clusters == nil {
		return nil
	}
	return in.Clusters.ClusterIDs
}

func highRisk(in *models.MarketInputs) []string {
	if in.EntityRisk == nil {
		return nil
	}
	return in.EntityRisk.HighRiskEntities
}

type template struct {
	title  string
	action string
}

var templates = map[models.AnomalyType]template{
	models.AnomalyWhaleSurge:        {"Whale inflow surge", "Watch for follow-through as large holders accumulate."},
	models.AnomalyWhaleExodus:       {"Whale exodus", "Tighten stops; large holders are moving funds out."},
	models.AnomalyLiquidityDrain:    {"Liquidity draining", "Reduce order size; the book can no longer absorb large fills."},
	models.AnomalySpreadBlowout:     {"Spread blowout", "Use limit orders; market orders will pay a wide spread."},
	models.AnomalyDepthCollapse:     {"Top-of-book depth collapse", "Expect sharp moves on small orders."},
	models.AnomalyClusterFormation:  {"Wallet cluster forming", "Monitor the cluster for coordinated entries."},
	models.AnomalyCoordinationSpike: {"Coordination spike", "Coordinated activity detected; avoid chasing the move."},
	models.AnomalyRiskEscalation:    {"Entity risk escalating", "Review exposure to high-risk counterparties."},
	models.AnomalyHighRiskInflux:    {"High-risk entity influx", "New high-risk entities are active; stay defensive."},
	models.AnomalyVolumeSpike:       {"Volume spike", "Confirm the move with price before acting."},
	models.AnomalyVolumeDrought:     {"Volume drought", "Thin participation; breakouts are less reliable."},
	models.AnomalyPriceSpike:        {"Price spike", "Avoid buying into the spike without confirmation."},
	models.AnomalyPriceCrash:        {"Price crash", "Check stops and margin; volatility is elevated."},
	models.AnomalyVolatilitySpike:   {"Volatility spike", "Widen stops or reduce size."},
	models.AnomalyCancelStorm:       {"Order cancel storm", "Displayed liquidity may be fake; trust fills, not quotes."},
	models.AnomalyOrderFlowSurge:    {"Order flow surge", "Order traffic is abnormal; expect erratic quotes."},
}
