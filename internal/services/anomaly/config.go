package anomaly

import (
	"fmt"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/util"
)

// SeverityThresholds are ascending absolute deviation percentages.
type SeverityThresholds struct {
	Medium   float64 `json:"medium" yaml:"medium" validate:"gte=0"`
	High     float64 `json:"high" yaml:"high" validate:"gtefield=Medium"`
	Critical float64 `json:"critical" yaml:"critical" validate:"gtefield=High"`
}

type Config struct {
	// Thresholds maps metric name to the deviation percentage that makes it anomalous.
	Thresholds         map[string]float64 `json:"thresholds" yaml:"thresholds" validate:"dive,gt=0"`
	Severity           SeverityThresholds `json:"severity" yaml:"severity"`
	MinConfidence      float64            `json:"minConfidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
	MinBaselineSamples int                `json:"minBaselineSamples" yaml:"min_baseline_samples" validate:"gte=1,lte=50"`
	BaselineWindow     int                `json:"baselineWindow" yaml:"baseline_window" validate:"gte=2,lte=1000"`
	DedupWindow        time.Duration      `json:"dedupWindow" yaml:"dedup_window" validate:"gte=0"`
	TTL                time.Duration      `json:"ttl" yaml:"ttl" validate:"gt=0"`
	MaxActive          int                `json:"maxActive" yaml:"max_active" validate:"gte=1"`
	MaxHistory         int                `json:"maxHistory" yaml:"max_history" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:         defaultThresholds(),
		Severity:           SeverityThresholds{Medium: 30, High: 50, Critical: 80},
		MinConfidence:      0.55,
		MinBaselineSamples: 5,
		BaselineWindow:     50,
		DedupWindow:        60 * time.Second,
		TTL:                5 * time.Minute,
		MaxActive:          100,
		MaxHistory:         200,
	}
}

func defaultThresholds() map[string]float64 {
	out := make(map[string]float64, len(rules))
	for _, r := range rules {
		out[r.metric] = r.threshold
	}
	return out
}

// ConfigPatch lists the runtime-overridable fields. Thresholds entries are
// merged into the current map key by key.
type ConfigPatch struct {
	Thresholds         map[string]float64  `json:"thresholds,omitempty"`
	Severity           *SeverityThresholds `json:"severity,omitempty"`
	MinConfidence      *float64            `json:"minConfidence,omitempty"`
	MinBaselineSamples *int                `json:"minBaselineSamples,omitempty"`
	DedupWindow        *time.Duration      `json:"dedupWindow,omitempty"`
	TTL                *time.Duration      `json:"ttl,omitempty"`
}

func (c Config) Apply(p ConfigPatch) Config {
	merged := make(map[string]float64, len(c.Thresholds)+len(p.Thresholds))
	for k, v := range c.Thresholds {
		merged[k] = v
	}
	for k, v := range p.Thresholds {
		merged[k] = v
	}
	c.Thresholds = merged
	if p.Severity != nil {
		c.Severity = *p.Severity
	}
	if p.MinConfidence != nil {
		c.MinConfidence = *p.MinConfidence
	}
	if p.MinBaselineSamples != nil {
		c.MinBaselineSamples = *p.MinBaselineSamples
	}
	if p.DedupWindow != nil {
		c.DedupWindow = *p.DedupWindow
	}
	if p.TTL != nil {
		c.TTL = *p.TTL
	}
	return c
}

func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: anomaly: %v", models.ErrInvalidConfig, err)
	}
	for k := range c.Thresholds {
		if _, ok := ruleByMetric[k]; !ok {
			return fmt.Errorf("%w: anomaly: unknown metric %q", models.ErrInvalidConfig, k)
		}
	}
	return nil
}

func (c Config) threshold(metric string, def float64) float64 {
	if v, ok := c.Thresholds[metric]; ok && v > 0 {
		return v
	}
	return def
}
