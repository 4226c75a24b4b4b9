package fragility

import (
	"fmt"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/util"
)

type Config struct {
	// ThinThreshold is the level size below which liquidity counts as thin.
	ThinThreshold float64 `json:"thinThreshold" yaml:"thin_threshold" validate:"gt=0"`
	// ThinGapPct flags a level as thin when the gap to the next level exceeds it
	// and the level is below twice ThinThreshold.
	ThinGapPct           float64 `json:"thinGapPct" yaml:"thin_gap_pct" validate:"gt=0"`
	GlobalImbalanceRatio float64 `json:"globalImbalanceRatio" yaml:"global_imbalance_ratio" validate:"gt=1"`
	LocalImbalanceRatio  float64 `json:"localImbalanceRatio" yaml:"local_imbalance_ratio" validate:"gt=1"`
	LocalWindow          int     `json:"localWindow" yaml:"local_window" validate:"gte=1,lte=50"`
	// LiquidityGapPct is the adjacent-level gap, as a percentage of price, that counts as a hole.
	LiquidityGapPct      float64 `json:"liquidityGapPct" yaml:"liquidity_gap_pct" validate:"gt=0"`
	LiquidationBucket    float64 `json:"liquidationBucket" yaml:"liquidation_bucket" validate:"gt=0"`
	LiquidationMinVolume float64 `json:"liquidationMinVolume" yaml:"liquidation_min_volume" validate:"gte=0"`
	ScanRangePct         float64 `json:"scanRangePct" yaml:"scan_range_pct" validate:"gt=0,lte=100"`
	StopClusterStrength  float64 `json:"stopClusterStrength" yaml:"stop_cluster_strength" validate:"gte=0,lte=100"`
	SpoofDepthShare      float64 `json:"spoofDepthShare" yaml:"spoof_depth_share" validate:"gt=0,lte=1"`
	SpoofMinDistancePct  float64 `json:"spoofMinDistancePct" yaml:"spoof_min_distance_pct" validate:"gte=0"`
	WashSpreadBps        float64 `json:"washSpreadBps" yaml:"wash_spread_bps" validate:"gte=0"`
	WashVolumeDepthRatio float64 `json:"washVolumeDepthRatio" yaml:"wash_volume_depth_ratio" validate:"gt=0"`
	// ReferenceOrderSize is the clip used to estimate slippage through a zone.
	ReferenceOrderSize float64       `json:"referenceOrderSize" yaml:"reference_order_size" validate:"gt=0"`
	CriticalScore      float64       `json:"criticalScore" yaml:"critical_score" validate:"gtfield=HighScore"`
	HighScore          float64       `json:"highScore" yaml:"high_score" validate:"gtfield=MediumScore"`
	MediumScore        float64       `json:"mediumScore" yaml:"medium_score" validate:"gte=0"`
	MaxZones           int           `json:"maxZones" yaml:"max_zones" validate:"gte=1"`
	ZoneTTL            time.Duration `json:"zoneTtl" yaml:"zone_ttl" validate:"gt=0"`
	MaxAlerts          int           `json:"maxAlerts" yaml:"max_alerts" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		ThinThreshold:        100,
		ThinGapPct:           0.1,
		GlobalImbalanceRatio: 2,
		LocalImbalanceRatio:  3,
		LocalWindow:          5,
		LiquidityGapPct:      0.5,
		LiquidationBucket:    10,
		LiquidationMinVolume: 1000,
		ScanRangePct:         5,
		StopClusterStrength:  60,
		SpoofDepthShare:      0.3,
		SpoofMinDistancePct:  1,
		WashSpreadBps:        5,
		WashVolumeDepthRatio: 10,
		ReferenceOrderSize:   500,
		CriticalScore:        80,
		HighScore:            60,
		MediumScore:          40,
		MaxZones:             50,
		ZoneTTL:              2 * time.Minute,
		MaxAlerts:            50,
	}
}

// ConfigPatch lists the runtime-overridable fields.
type ConfigPatch struct {
	ThinThreshold        *float64 `json:"thinThreshold,omitempty"`
	ThinGapPct           *float64 `json:"thinGapPct,omitempty"`
	GlobalImbalanceRatio *float64 `json:"globalImbalanceRatio,omitempty"`
	LocalImbalanceRatio  *float64 `json:"localImbalanceRatio,omitempty"`
	LiquidityGapPct      *float64 `json:"liquidityGapPct,omitempty"`
	LiquidationMinVolume *float64 `json:"liquidationMinVolume,omitempty"`
	ScanRangePct         *float64 `json:"scanRangePct,omitempty"`
	StopClusterStrength  *float64 `json:"stopClusterStrength,omitempty"`
	MaxZones             *int     `json:"maxZones,omitempty"`
}

func (c Config) Apply(p ConfigPatch) Config {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&c.ThinThreshold, p.ThinThreshold)
	setF(&c.ThinGapPct, p.ThinGapPct)
	setF(&c.GlobalImbalanceRatio, p.GlobalImbalanceRatio)
	setF(&c.LocalImbalanceRatio, p.LocalImbalanceRatio)
	setF(&c.LiquidityGapPct, p.LiquidityGapPct)
	setF(&c.LiquidationMinVolume, p.LiquidationMinVolume)
	setF(&c.ScanRangePct, p.ScanRangePct)
	setF(&c.StopClusterStrength, p.StopClusterStrength)
	if p.MaxZones != nil {
		c.MaxZones = *p.MaxZones
	}
	return c
}

func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: fragility: %v", models.ErrInvalidConfig, err)
	}
	return nil
}
