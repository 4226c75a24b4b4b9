package models

// AnomalyType enumerates the kinds of baseline deviation the engine reports.
type AnomalyType string

const (
	AnomalyWhaleSurge        AnomalyType = "whale_surge"
	AnomalyWhaleExodus       AnomalyType = "whale_exodus"
	AnomalyLiquidityDrain    AnomalyType = "liquidity_drain"
	AnomalySpreadBlowout     AnomalyType = "spread_blowout"
	AnomalyDepthCollapse     AnomalyType = "depth_collapse"
	AnomalyClusterFormation  AnomalyType = "cluster_formation"
	AnomalyCoordinationSpike AnomalyType = "coordination_spike"
	AnomalyRiskEscalation    AnomalyType = "risk_escalation"
	AnomalyHighRiskInflux    AnomalyType = "high_risk_influx"
	AnomalyVolumeSpike       AnomalyType = "volume_spike"
	AnomalyVolumeDrought     AnomalyType = "volume_drought"
	AnomalyPriceSpike        AnomalyType = "price_spike"
	AnomalyPriceCrash        AnomalyType = "price_crash"
	AnomalyVolatilitySpike   AnomalyType = "volatility_spike"
	AnomalyCancelStorm       AnomalyType = "cancel_storm"
	AnomalyOrderFlowSurge    AnomalyType = "order_flow_surge"
)

// AnomalySource names the snapshot family an anomaly was derived from.
type AnomalySource string

const (
	SourceWhale      AnomalySource = "whale"
	SourceLiquidity  AnomalySource = "liquidity"
	SourceCluster    AnomalySource = "cluster"
	SourceEntityRisk AnomalySource = "entity_risk"
	SourceVolume     AnomalySource = "volume"
	SourcePrice      AnomalySource = "price"
	SourceOrderFlow  AnomalySource = "order_flow"
)

// ImpactRadius is how far an anomaly's consequences are expected to reach.
type ImpactRadius string

const (
	ImpactLocal      ImpactRadius = "local"
	ImpactSector     ImpactRadius = "sector"
	ImpactMarketWide ImpactRadius = "market_wide"
)

// Anomaly is a metric that deviated from its rolling baseline.
type Anomaly struct {
	ID               string        `json:"id"`
	Symbol           string        `json:"symbol"`
	Type             AnomalyType   `json:"type"`
	Source           AnomalySource `json:"source"`
	Severity         Severity      `json:"severity"`
	Confidence       float64       `json:"confidence"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	TriggerMetric    string        `json:"triggerMetric"`
	TriggerValue     float64       `json:"triggerValue"`
	BaselineValue    float64       `json:"baselineValue"`
	DeviationPct     float64       `json:"deviationPercent"`
	ImpactRadius     ImpactRadius  `json:"impactRadius"`
	AffectedEntities []string      `json:"affectedEntities,omitempty"`
	SuggestedAction  string        `json:"suggestedAction,omitempty"`
	Lifetime
}

// DedupKey identifies anomalies that describe the same condition.
func (a Anomaly) DedupKey() string { return string(a.Type) + "|" + string(a.Source) }
