package manipulation

import (
	"fmt"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/util"
)

type Config struct {
	MinProbability float64 `json:"minProbability" yaml:"min_probability" validate:"gte=0,lte=1"`

	SpoofCancelRate      float64 `json:"spoofCancelRate" yaml:"spoof_cancel_rate" validate:"gt=0,lt=1"`
	SpoofMaxLifetimeMs   float64 `json:"spoofMaxLifetimeMs" yaml:"spoof_max_lifetime_ms" validate:"gt=0"`
	SpoofOrderToTrade    float64 `json:"spoofOrderToTrade" yaml:"spoof_order_to_trade" validate:"gt=0"`
	LayeringMinLevels    int     `json:"layeringMinLevels" yaml:"layering_min_levels" validate:"gte=2"`
	LayeringPullFraction float64 `json:"layeringPullFraction" yaml:"layering_pull_fraction" validate:"gt=0,lte=1"`
	WashMinFraction      float64 `json:"washMinFraction" yaml:"wash_min_fraction" validate:"gt=0,lte=1"`
	PumpVolumeMultiple   float64 `json:"pumpVolumeMultiple" yaml:"pump_volume_multiple" validate:"gt=1"`
	PumpPriceChangePct   float64 `json:"pumpPriceChangePct" yaml:"pump_price_change_pct" validate:"gt=0"`
	PumpBaselineSamples  int     `json:"pumpBaselineSamples" yaml:"pump_baseline_samples" validate:"gte=1"`
	StopHuntStrength     float64 `json:"stopHuntStrength" yaml:"stop_hunt_strength" validate:"gte=0,lte=100"`
	StopHuntReversalPct  float64 `json:"stopHuntReversalPct" yaml:"stop_hunt_reversal_pct" validate:"gt=0"`
	IgnitionShare        float64 `json:"ignitionShare" yaml:"ignition_share" validate:"gt=0,lte=1"`
	IgnitionMinTrades    int     `json:"ignitionMinTrades" yaml:"ignition_min_trades" validate:"gte=2"`
	IgnitionMovePct      float64 `json:"ignitionMovePct" yaml:"ignition_move_pct" validate:"gt=0"`
	StuffingOrdersPerSec float64 `json:"stuffingOrdersPerSec" yaml:"stuffing_orders_per_sec" validate:"gt=0"`
	StuffingCancelRate   float64 `json:"stuffingCancelRate" yaml:"stuffing_cancel_rate" validate:"gt=0,lte=1"`
	PaintMinTrades       int     `json:"paintMinTrades" yaml:"paint_min_trades" validate:"gte=3"`
	PaintMaxTakers       int     `json:"paintMaxTakers" yaml:"paint_max_takers" validate:"gte=1"`
	PaintMaxSizeCV       float64 `json:"paintMaxSizeCv" yaml:"paint_max_size_cv" validate:"gt=0"`

	TTL        time.Duration `json:"ttl" yaml:"ttl" validate:"gt=0"`
	MaxActive  int           `json:"maxActive" yaml:"max_active" validate:"gte=1"`
	MaxHistory int           `json:"maxHistory" yaml:"max_history" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		MinProbability:       0.4,
		SpoofCancelRate:      0.7,
		SpoofMaxLifetimeMs:   500,
		SpoofOrderToTrade:    20,
		LayeringMinLevels:    4,
		LayeringPullFraction: 0.5,
		WashMinFraction:      0.3,
		PumpVolumeMultiple:   3,
		PumpPriceChangePct:   5,
		PumpBaselineSamples:  3,
		StopHuntStrength:     50,
		StopHuntReversalPct:  0.5,
		IgnitionShare:        0.4,
		IgnitionMinTrades:    5,
		IgnitionMovePct:      1,
		StuffingOrdersPerSec: 100,
		StuffingCancelRate:   0.8,
		PaintMinTrades:       10,
		PaintMaxTakers:       3,
		PaintMaxSizeCV:       0.2,
		TTL:                  5 * time.Minute,
		MaxActive:            100,
		MaxHistory:           200,
	}
}

// ConfigPatch lists the runtime-overridable fields.
type ConfigPatch struct {
	MinProbability     *float64 `json:"minProbability,omitempty"`
	SpoofCancelRate    *float64 `json:"spoofCancelRate,omitempty"`
	WashMinFraction    *float64 `json:"washMinFraction,omitempty"`
	PumpVolumeMultiple *float64 `json:"pumpVolumeMultiple,omitempty"`
	PumpPriceChangePct *float64 `json:"pumpPriceChangePct,omitempty"`
	StopHuntStrength   *float64 `json:"stopHuntStrength,omitempty"`
}

func (c Config) Apply(p ConfigPatch) Config {
	for _, f := range []struct {
		dst *float64
		src *float64
	}{
		{&c.MinProbability, p.MinProbability},
		{&c.SpoofCancelRate, p.SpoofCancelRate},
		{&c.WashMinFraction, p.WashMinFraction},
		{&c.PumpVolumeMultiple, p.PumpVolumeMultiple},
		{&c.PumpPriceChangePct, p.PumpPriceChangePct},
		{&c.StopHuntStrength, p.StopHuntStrength},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return c
}

func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: manipulation: %v", models.ErrInvalidConfig, err)
	}
	return nil
}
