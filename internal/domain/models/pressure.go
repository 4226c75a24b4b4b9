package models

import "time"

// PressureReading is the single output of one pressure scan.
type PressureReading struct {
	ID                   string             `json:"id"`
	Symbol               string             `json:"symbol"`
	Score                float64            `json:"pressureScore"`
	Direction            Direction          `json:"pressureDirection"`
	SubScores            map[string]float64 `json:"subScores"`
	ContributingEntities []string           `json:"contributingEntities"`
	Drivers              []string           `json:"drivers"`
	RiskAcceleration     float64            `json:"riskAcceleration"`
	Timestamp            time.Time          `json:"timestamp"`
}
