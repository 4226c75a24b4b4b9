package service

import (
	"Watchdog/internal/domain/models"
)

// PressureScanner scores aggregate market pressure from a snapshot bundle.
type PressureScanner interface {
	Scan(in models.MarketInputs) models.PressureReading
	Latest() (models.PressureReading, bool)
	History(limit int) []models.PressureReading
}

// AnomalyDetector reports deviations from rolling baselines.
type AnomalyDetector interface {
	Detect(in models.MarketInputs) []models.Anomaly
	Active() []models.Anomaly
}

// FragilityScanner finds structural weak points in the order book.
type FragilityScanner interface {
	Scan(in models.MarketInputs) models.FragilityAlert
	ActiveZones() []models.FragilityZone
	LatestAlert() (models.FragilityAlert, bool)
}

// ManipulationDetector scores manipulation archetypes.
type ManipulationDetector interface {
	Detect(in models.MarketInputs) []models.ManipulationSignal
	Active() []models.ManipulationSignal
}

// AlertRouter dedups, throttles and fans out alerts.
type AlertRouter interface {
	Route(in models.IncomingAlert) models.RouteResult
	ActiveAlerts() []models.WatchdogAlert
	QueuedAlerts() []models.IncomingAlert
	Stats() models.RouterStats
}
