package pressure

import (
	"fmt"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/util"
)

// Weights sets how much each sub-score contributes to the final score.
type Weights struct {
	BuyPressure        float64 `json:"buyPressure" yaml:"buy_pressure" validate:"gte=0"`
	SellPressure       float64 `json:"sellPressure" yaml:"sell_pressure" validate:"gte=0"`
	WhalePressure      float64 `json:"whalePressure" yaml:"whale_pressure" validate:"gte=0"`
	ClusterTightening  float64 `json:"clusterTightening" yaml:"cluster_tightening" validate:"gte=0"`
	LiquidityFragility float64 `json:"liquidityFragility" yaml:"liquidity_fragility" validate:"gte=0"`
	RiskAcceleration   float64 `json:"riskAcceleration" yaml:"risk_acceleration" validate:"gte=0"`
}

func (w Weights) sum() float64 {
	return w.BuyPressure + w.SellPressure + w.WhalePressure + w.ClusterTightening + w.LiquidityFragility + w.RiskAcceleration
}

type Config struct {
	Weights Weights `json:"weights" yaml:"weights"`
	// HistorySize caps the rolling reading history.
	HistorySize int `json:"historySize" yaml:"history_size" validate:"gte=1,lte=10000"`
	// AccelerationWindow is how many recent readings the fallback slope uses.
	AccelerationWindow int `json:"accelerationWindow" yaml:"acceleration_window" validate:"gte=2,lte=100"`
	// DriverThreshold is the sub-score at or above which a factor is listed as a driver.
	DriverThreshold float64 `json:"driverThreshold" yaml:"driver_threshold" validate:"gte=0,lte=100"`
	// DirectionThreshold is the minimum absolute vote for up/down.
	DirectionThreshold float64 `json:"directionThreshold" yaml:"direction_threshold" validate:"gte=0,lte=1"`
	// LowDepth is the total book depth below which the book counts as thin.
	LowDepth    float64 `json:"lowDepth" yaml:"low_depth" validate:"gte=0"`
	MaxEntities int     `json:"maxEntities" yaml:"max_entities" validate:"gte=0,lte=1000"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			BuyPressure:        0.20,
			SellPressure:       0.20,
			WhalePressure:      0.20,
			ClusterTightening:  0.15,
			LiquidityFragility: 0.15,
			RiskAcceleration:   0.10,
		},
		HistorySize:        100,
		AccelerationWindow: 5,
		DriverThreshold:    65,
		DirectionThreshold: 0.05,
		LowDepth:           1000,
		MaxEntities:        20,
	}
}

// ConfigPatch lists the fields that may be changed at runtime. Nil fields keep
// their current value.
type ConfigPatch struct {
	Weights            *Weights `json:"weights,omitempty"`
	HistorySize        *int     `json:"historySize,omitempty"`
	DriverThreshold    *float64 `json:"driverThreshold,omitempty"`
	DirectionThreshold *float64 `json:"directionThreshold,omitempty"`
	LowDepth           *float64 `json:"lowDepth,omitempty"`
}

// Apply returns a copy of c with the patch applied.
func (c Config) Apply(p ConfigPatch) Config {
	if p.Weights != nil {
		c.Weights = *p.Weights
	}
	if p.HistorySize != nil {
		c.HistorySize = *p.HistorySize
	}
	if p.DriverThreshold != nil {
		c.DriverThreshold = *p.DriverThreshold
	}
	if p.DirectionThreshold != nil {
		c.DirectionThreshold = *p.DirectionThreshold
	}
	if p.LowDepth != nil {
		c.LowDepth = *p.LowDepth
	}
	return c
}

func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: pressure: %v", models.ErrInvalidConfig, err)
	}
	if c.Weights.sum() <= 0 {
		return fmt.Errorf("%w: pressure: weights must not all be zero", models.ErrInvalidConfig)
	}
	return nil
}
