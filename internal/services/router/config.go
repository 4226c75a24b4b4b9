package router

import (
	"fmt"
	"time"

	"Watchdog/internal/domain/models"
	"Watchdog/pkg/util"
)

type Config struct {
	// MinAlertInterval is the minimum gap between two routed alerts.
	MinAlertInterval time.Duration `json:"minAlertInterval" yaml:"min_alert_interval" validate:"gte=0"`
	MaxAlertsPerHour int           `json:"maxAlertsPerHour" yaml:"max_alerts_per_hour" validate:"gte=1"`
	// HighPriorityThreshold and MediumPriorityThreshold split severity into priorities.
	HighPriorityThreshold   float64 `json:"highPriorityThreshold" yaml:"high_priority_threshold" validate:"gte=0,lte=100,gtefield=MediumPriorityThreshold"`
	MediumPriorityThreshold float64 `json:"mediumPriorityThreshold" yaml:"medium_priority_threshold" validate:"gte=0,lte=100"`
	// MediumSpeakThreshold is the severity a medium alert needs to be spoken.
	MediumSpeakThreshold float64       `json:"mediumSpeakThreshold" yaml:"medium_speak_threshold" validate:"gte=0,lte=100"`
	MediumDelay          time.Duration `json:"mediumDelay" yaml:"medium_delay" validate:"gte=0"`
	LowDelay             time.Duration `json:"lowDelay" yaml:"low_delay" validate:"gte=0"`
	VoiceEnabled         bool          `json:"voiceEnabled" yaml:"voice_enabled"`

	MaxActiveAlerts int `json:"maxActiveAlerts" yaml:"max_active_alerts" validate:"gte=1"`
	MaxHistory      int `json:"maxHistory" yaml:"max_history" validate:"gte=1"`
	MaxQueueSize    int `json:"maxQueueSize" yaml:"max_queue_size" validate:"gte=1"`
	// DedupSetLimit caps the recent-hash set; a full set is cleared before the next insert.
	DedupSetLimit  int           `json:"dedupSetLimit" yaml:"dedup_set_limit" validate:"gte=1"`
	QueuedAlertTTL time.Duration `json:"queuedAlertTTL" yaml:"queued_alert_ttl" validate:"gt=0"`

	HighTTL   time.Duration `json:"highTTL" yaml:"high_ttl" validate:"gt=0"`
	MediumTTL time.Duration `json:"mediumTTL" yaml:"medium_ttl" validate:"gt=0"`
	LowTTL    time.Duration `json:"lowTTL" yaml:"low_ttl" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		MinAlertInterval:        10 * time.Second,
		MaxAlertsPerHour:        10,
		HighPriorityThreshold:   75,
		MediumPriorityThreshold: 50,
		MediumSpeakThreshold:    60,
		MediumDelay:             500 * time.Millisecond,
		LowDelay:                time.Second,
		VoiceEnabled:            true,
		MaxActiveAlerts:         50,
		MaxHistory:              200,
		MaxQueueSize:            20,
		DedupSetLimit:           100,
		QueuedAlertTTL:          5 * time.Minute,
		HighTTL:                 15 * time.Minute,
		MediumTTL:               10 * time.Minute,
		LowTTL:                  5 * time.Minute,
	}
}

// ConfigPatch lists the runtime-tunable fields. Nil fields keep their value.
type ConfigPatch struct {
	MinAlertInterval        *time.Duration `json:"minAlertInterval,omitempty"`
	MaxAlertsPerHour        *int           `json:"maxAlertsPerHour,omitempty"`
	HighPriorityThreshold   *float64       `json:"highPriorityThreshold,omitempty"`
	MediumPriorityThreshold *float64       `json:"mediumPriorityThreshold,omitempty"`
	VoiceEnabled            *bool          `json:"voiceEnabled,omitempty"`
	MaxActiveAlerts         *int           `json:"maxActiveAlerts,omitempty"`
	MaxQueueSize            *int           `json:"maxQueueSize,omitempty"`
}

func (c Config) Apply(p ConfigPatch) Config {
	if p.MinAlertInterval != nil {
		c.MinAlertInterval = *p.MinAlertInterval
	}
	if p.MaxAlertsPerHour != nil {
		c.MaxAlertsPerHour = *p.MaxAlertsPerHour
	}
	if p.HighPriorityThreshold != nil {
		c.HighPriorityThreshold = *p.HighPriorityThreshold
	}
	if p.MediumPriorityThreshold != nil {
		c.MediumPriorityThreshold = *p.MediumPriorityThreshold
	}
	if p.VoiceEnabled != nil {
		c.VoiceEnabled = *p.VoiceEnabled
	}
	if p.MaxActiveAlerts != nil {
		c.MaxActiveAlerts = *p.MaxActiveAlerts
	}
	if p.MaxQueueSize != nil {
		c.MaxQueueSize = *p.MaxQueueSize
	}
	return c
}

func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: router: %v", models.ErrInvalidConfig, err)
	}
	return nil
}

// priority maps severity onto the three routing classes.
func (c Config) priority(severity float64) models.Priority {
	switch {
	case severity >= c.HighPriorityThreshold:
		return models.PriorityHigh
	case severity >= c.MediumPriorityThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func (c Config) ttl(p models.Priority) time.Duration {
	switch p {
	case models.PriorityHigh:
		return c.HighTTL
	case models.PriorityMedium:
		return c.MediumTTL
	default:
		return c.LowTTL
	}
}

func colorFor(p models.Priority) models.Color {
	switch p {
	case models.PriorityHigh:
		return models.ColorRed
	case models.PriorityMedium:
		return models.ColorYellow
	default:
		return models.ColorBlue
	}
}

func categoryFor(in models.IncomingAlert) models.Category {
	if in.Category != "" {
		return in.Category
	}
	switch in.Source {
	case models.AlertSourcePressure:
		return models.CategoryPressure
	case models.AlertSourceFragility:
		return models.CategoryLiquidity
	case models.AlertSourceManipulation:
		return models.CategoryManipulation
	case models.AlertSourceAnomaly:
		return models.CategoryAnomaly
	default:
		return models.CategoryRisk
	}
}
