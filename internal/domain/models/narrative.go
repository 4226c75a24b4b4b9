package models

import "time"

// Tone is the register a narrative is written in.
type Tone string

const (
	ToneCalm     Tone = "calm"
	ToneUrgent   Tone = "urgent"
	ToneWarning  Tone = "warning"
	ToneCritical Tone = "critical"
)

// Narrative is the natural-language rendering of an alert.
type Narrative struct {
	Headline           string    `json:"headline"`
	Body               string    `json:"body"`
	Action             string    `json:"action,omitempty"`
	FullNarrative      string    `json:"fullNarrative"`
	SpeakableNarrative string    `json:"speakableNarrative"`
	Tone               Tone      `json:"tone"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// ThreatLevel is the orchestrator's overall reading for one symbol.
type ThreatLevel string

const (
	ThreatCalm     ThreatLevel = "calm"
	ThreatElevated ThreatLevel = "elevated"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Synthesis is the aggregated watchdog view of one symbol after a scan.
type Synthesis struct {
	ID                 string              `json:"id" msgpack:"id"`
	Symbol             string              `json:"symbol" msgpack:"symbol"`
	ThreatLevel        ThreatLevel         `json:"threatLevel" msgpack:"threat_level"`
	PressureScore      float64             `json:"pressureScore" msgpack:"pressure_score"`
	PressureDirection  Direction           `json:"pressureDirection" msgpack:"pressure_direction"`
	AnomalyCount       int                 `json:"anomalyCount" msgpack:"anomaly_count"`
	CriticalAnomalies  int                 `json:"criticalAnomalies" msgpack:"critical_anomalies"`
	FragilityScore     float64             `json:"fragilityScore" msgpack:"fragility_score"`
	Vulnerability      MarketVulnerability `json:"marketVulnerability" msgpack:"market_vulnerability"`
	ManipulationCount  int                 `json:"manipulationCount" msgpack:"manipulation_count"`
	AlertsRouted       int                 `json:"alertsRouted" msgpack:"alerts_routed"`
	TopNarrative       string              `json:"topNarrative,omitempty" msgpack:"top_narrative"`
	SpeakableNarrative string              `json:"speakableNarrative,omitempty" msgpack:"speakable_narrative"`
	ScannedAt          time.Time           `json:"scannedAt" msgpack:"scanned_at"`
}
