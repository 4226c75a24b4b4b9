package models

// ZoneType enumerates structural weak points in the order book.
type ZoneType string

const (
	ZoneThinPocket        ZoneType = "thin_pocket"
	ZoneOrderImbalance    ZoneType = "order_imbalance"
	ZoneLiquidityGap      ZoneType = "liquidity_gap"
	ZoneLiquidationVacuum ZoneType = "liquidation_vacuum"
	ZoneStopCluster       ZoneType = "stop_cluster"
	ZoneSpoofLiquidity    ZoneType = "spoof_liquidity"
	ZoneWashTrading       ZoneType = "wash_trading"
)

// PriceRange is an inclusive [Low, High] price interval.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Mid returns the midpoint of the range.
func (r PriceRange) Mid() float64 { return (r.Low + r.High) / 2 }

// FragilityZone is one detected structural weak point.
type FragilityZone struct {
	ID                 string     `json:"id"`
	Symbol             string     `json:"symbol"`
	Type               ZoneType   `json:"type"`
	Severity           Severity   `json:"severity"`
	PriceRange         PriceRange `json:"priceRange"`
	DistancePct        float64    `json:"distanceFromPricePercent"`
	LiquidityDepth     float64    `json:"liquidityDepth"`
	EstimatedSlippage  float64    `json:"estimatedSlippagePercent"`
	VulnerabilityScore float64    `json:"vulnerabilityScore"`
	Side               Side       `json:"side,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Risk               string     `json:"risk"`
	Lifetime
}

// MarketVulnerability is the three-level aggregate classification of a scan.
type MarketVulnerability string

const (
	VulnerabilityStable   MarketVulnerability = "stable"
	VulnerabilityFragile  MarketVulnerability = "fragile"
	VulnerabilityCritical MarketVulnerability = "critical"
)

// FragilityAlert aggregates one scan's zones.
type FragilityAlert struct {
	ID                  string              `json:"id"`
	Symbol              string              `json:"symbol"`
	Zones               []FragilityZone     `json:"zones"`
	OverallScore        float64             `json:"overallFragilityScore"`
	CriticalZoneCount   int                 `json:"criticalZoneCount"`
	NearestCritical     *FragilityZone      `json:"nearestCriticalZone,omitempty"`
	MarketVulnerability MarketVulnerability `json:"marketVulnerability"`
	Summary             string              `json:"summary"`
	Lifetime
}
