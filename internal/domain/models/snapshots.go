package models

import "time"

// Side is the aggressor or resting side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// WhaleIntel is a whale-flow snapshot.
type WhaleIntel struct {
	NetFlow           float64  `json:"netFlow"`
	AccumulationScore float64  `json:"accumulationScore" validate:"gte=0,lte=100"`
	DistributionScore float64  `json:"distributionScore" validate:"gte=0,lte=100"`
	LargeTransactions int      `json:"largeTransactions" validate:"gte=0"`
	ActiveWhales      []string `json:"activeWhales,omitempty"`
	TotalVolume       float64  `json:"totalVolume,omitempty"`
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price float64 `json:"price" validate:"gte=0"`
	Size  float64 `json:"size" validate:"gte=0"`
}

// OrderBook is an order-book snapshot. Bids are sorted best (highest) first,
// asks best (lowest) first.
type OrderBook struct {
	Bids           []BookLevel `json:"bids" validate:"dive"`
	Asks           []BookLevel `json:"asks" validate:"dive"`
	Spread         float64     `json:"spread,omitempty"`
	ImbalanceRatio float64     `json:"imbalanceRatio,omitempty"`
	TotalBidDepth  float64     `json:"totalBidDepth,omitempty"`
	TotalAskDepth  float64     `json:"totalAskDepth,omitempty"`
}

// BidDepth returns the total bid depth, summing levels when not supplied.
func (b *OrderBook) BidDepth() float64 {
	if b.TotalBidDepth > 0 {
		return b.TotalBidDepth
	}
	return sumSizes(b.Bids)
}

// AskDepth returns the total ask depth, summing levels when not supplied.
func (b *OrderBook) AskDepth() float64 {
	if b.TotalAskDepth > 0 {
		return b.TotalAskDepth
	}
	return sumSizes(b.Asks)
}

// TotalDepth is the combined depth of both sides.
func (b *OrderBook) TotalDepth() float64 { return b.BidDepth() + b.AskDepth() }

// MidPrice returns the mid of the best levels, or 0 when a side is empty.
func (b *OrderBook) MidPrice() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// SpreadValue returns the supplied spread or the best-level spread.
func (b *OrderBook) SpreadValue() float64 {
	if b.Spread > 0 {
		return b.Spread
	}
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price - b.Bids[0].Price
}

// Imbalance returns bid depth over ask depth (supplied ratio wins).
func (b *OrderBook) Imbalance() float64 {
	if b.ImbalanceRatio > 0 {
		return b.ImbalanceRatio
	}
	ask := b.AskDepth()
	if ask == 0 {
		return 0
	}
	return b.BidDepth() / ask
}

func sumSizes(levels []BookLevel) float64 {
	total := 0.0
	for _, l := range levels {
		total += l.Size
	}
	return total
}

// ClusterSnapshot describes wallet/entity constellations.
type ClusterSnapshot struct {
	ClusterCount      int      `json:"clusterCount" validate:"gte=0"`
	AvgClusterSize    float64  `json:"avgClusterSize"`
	Tightness         float64  `json:"tightness" validate:"gte=0,lte=100"`
	CoordinationScore float64  `json:"coordinationScore" validate:"gte=0,lte=100"`
	ClusterIDs        []string `json:"clusterIds,omitempty"`
}

// EntityRiskSnapshot aggregates risk scores across tracked entities.
// RiskDelta is optional; nil means the upstream did not compute it.
type EntityRiskSnapshot struct {
	AvgRiskScore     float64  `json:"avgRiskScore" validate:"gte=0,lte=100"`
	HighRiskEntities []string `json:"highRiskEntities,omitempty"`
	NewHighRiskCount int      `json:"newHighRiskCount" validate:"gte=0"`
	RiskDelta        *float64 `json:"riskDelta,omitempty"`
}

// Trade is one print on the trade tape.
type Trade struct {
	ID        string    `json:"id,omitempty"`
	Side      Side      `json:"side" validate:"omitempty,oneof=buy sell"`
	Price     float64   `json:"price" validate:"gte=0"`
	Volume    float64   `json:"volume" validate:"gte=0"`
	Maker     string    `json:"maker,omitempty"`
	Taker     string    `json:"taker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderFlowStats summarises order lifecycle statistics over a recent window.
type OrderFlowStats struct {
	CancelRate         float64 `json:"cancelRate" validate:"gte=0,lte=1"`
	OrderToTradeRatio  float64 `json:"orderToTradeRatio" validate:"gte=0"`
	AvgOrderLifetimeMs float64 `json:"avgOrderLifetimeMs" validate:"gte=0"`
	TotalOrders        int     `json:"totalOrders" validate:"gte=0"`
	OrdersPerSecond    float64 `json:"ordersPerSecond" validate:"gte=0"`
	LargeOrderCount    int     `json:"largeOrderCount" validate:"gte=0"`
}

// BookDelta is an incremental size change at one price level.
type BookDelta struct {
	Price      float64   `json:"price"`
	SizeChange float64   `json:"sizeChange"`
	Side       Side      `json:"side" validate:"omitempty,oneof=buy sell"`
	EntityID   string    `json:"entityId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// StopLossCluster is an externally estimated concentration of stop orders.
type StopLossCluster struct {
	Price    float64 `json:"price"`
	Strength float64 `json:"strength" validate:"gte=0,lte=100"`
	Volume   float64 `json:"volume"`
	Side     Side    `json:"side" validate:"omitempty,oneof=buy sell"`
}

// LiquidationHint is an estimated liquidation price for a leveraged position.
type LiquidationHint struct {
	Price    float64 `json:"price"`
	Volume   float64 `json:"volume"`
	Side     Side    `json:"side" validate:"omitempty,oneof=buy sell"`
	EntityID string  `json:"entityId,omitempty"`
}

// MarketInputs is the snapshot bundle handed to every detector on a scan tick.
// Every section is optional; an absent section skips the dependent analysis.
type MarketInputs struct {
	Symbol         string              `json:"symbol"`
	CurrentPrice   float64             `json:"currentPrice" validate:"gte=0"`
	PriceChange24h *float64            `json:"priceChange24h,omitempty"`
	Volume24h      float64             `json:"volume24h,omitempty" validate:"gte=0"`
	Timestamp      time.Time           `json:"timestamp"`
	WhaleIntel     *WhaleIntel         `json:"whaleIntel,omitempty"`
	OrderBook      *OrderBook          `json:"orderBook,omitempty"`
	Clusters       *ClusterSnapshot    `json:"clusters,omitempty"`
	EntityRisk     *EntityRiskSnapshot `json:"entityRisk,omitempty"`
	OrderFlow      *OrderFlowStats     `json:"orderFlow,omitempty"`
	Trades         []Trade             `json:"trades,omitempty" validate:"dive"`
	BookDeltas     []BookDelta         `json:"bookDeltas,omitempty" validate:"dive"`
	StopClusters   []StopLossCluster   `json:"stopClusters,omitempty" validate:"dive"`
	Liquidations   []LiquidationHint   `json:"liquidations,omitempty" validate:"dive"`
}

// Merge overlays the sections present in next onto a copy of m. Scalars from
// next win when non-zero.
func (m MarketInputs) Merge(next MarketInputs) MarketInputs {
	out := m
	if next.Symbol != "" {
		out.Symbol = next.Symbol
	}
	if next.CurrentPrice > 0 {
		out.CurrentPrice = next.CurrentPrice
	}
	if next.PriceChange24h != nil {
		out.PriceChange24h = next.PriceChange24h
	}
	if next.Volume24h > 0 {
		out.Volume24h = next.Volume24h
	}
	if !next.Timestamp.IsZero() {
		out.Timestamp = next.Timestamp
	}
	if next.WhaleIntel != nil {
		out.WhaleIntel = next.WhaleIntel
	}
	if next.OrderBook != nil {
		out.OrderBook = next.OrderBook
	}
	if next.Clusters != nil {
		out.Clusters = next.Clusters
	}
	if next.EntityRisk != nil {
		out.EntityRisk = next.EntityRisk
	}
	if next.OrderFlow != nil {
		out.OrderFlow = next.OrderFlow
	}
	if next.Trades != nil {
		out.Trades = next.Trades
	}
	if next.BookDeltas != nil {
		out.BookDeltas = next.BookDeltas
	}
	if next.StopClusters != nil {
		out.StopClusters = next.StopClusters
	}
	if next.Liquidations != nil {
		out.Liquidations = next.Liquidations
	}
	return out
}

// ReferencePrice is the current price, falling back to the book mid.
func (m *MarketInputs) ReferencePrice() float64 {
	if m.CurrentPrice > 0 {
		return m.CurrentPrice
	}
	if m.OrderBook != nil {
		return m.OrderBook.MidPrice()
	}
	return 0
}
