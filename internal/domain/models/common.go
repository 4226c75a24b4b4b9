package models

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidConfig is returned when a configuration update fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoData means no scan has produced output for the requested symbol yet.
	ErrNoData = errors.New("no data available yet")
	// ErrAlertNotFound is returned by router commands addressing an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")
)

var idSeq atomic.Uint64

// NextID returns a process-unique identifier with the given prefix.
func NextID(prefix string) string {
	return prefix + "_" + strconv.FormatUint(idSeq.Add(1), 10)
}

// Severity is the four-level danger classification shared by detectors.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low=1 .. critical=4. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Score maps the severity onto the 0-100 scale used by the alert router.
func (s Severity) Score() float64 {
	switch s {
	case SeverityLow:
		return 25
	case SeverityMedium:
		return 50
	case SeverityHigh:
		return 75
	case SeverityCritical:
		return 95
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// ParseSeverity returns the severity for s, or false when s is not a known level.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s)
	return sev, sev.Rank() > 0
}

// Direction is the directional bias of a pressure reading.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Lifetime holds the creation and expiry stamps every derived record carries.
type Lifetime struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewLifetime stamps a record created at now with the given TTL.
func NewLifetime(now time.Time, ttl time.Duration) Lifetime {
	return Lifetime{CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// IsExpired reports whether the record is no longer active at now.
func (l Lifetime) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
