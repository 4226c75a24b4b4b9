package usecase

import (
	"fmt"
	"strings"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/narrator"
)

// candidate is an alert before narration.
type candidate struct {
	alert      models.IncomingAlert
	metrics    map[string]float64
	entities   int
	priceRange *models.PriceRange
}

func (w *Watchdog) candidates(symbol string, res scanResult) []candidate {
	var out []candidate
	if c, ok := w.pressureCandidate(symbol, res.pressure); ok {
		out = append(out, c)
	}
	for _, a := range res.anomalies {
		if a.Severity.AtLeast(w.settings.AnomalyMinSeverity) {
			out = append(out, anomalyCandidate(a))
		}
	}
	if c, ok := fragilityCandidate(symbol, res.fragility); ok {
		out = append(out, c)
	}
	for _, m := range res.manipulation {
		if m.Severity.AtLeast(w.settings.ManipulationMinSeverity) {
			out = append(out, manipulationCandidate(m))
		}
	}
	return out
}

func (w *Watchdog) pressureCandidate(symbol string, r models.PressureReading) (candidate, bool) {
	if r.Score < w.settings.PressureAlertScore {
		return candidate{}, false
	}
	side := "Two-sided"
	switch r.Direction {
	case models.DirectionUp:
		side = "Buy-side"
	case models.DirectionDown:
		side = "Sell-side"
	}
	msg := fmt.Sprintf("Pressure score %.0f.", r.Score)
	if len(r.Drivers) > 0 {
		msg = fmt.Sprintf("Pressure score %.0f driven by %s.", r.Score, strings.Join(r.Drivers, ", "))
	}
	return candidate{
		alert: models.IncomingAlert{
			Source:     models.AlertSourcePressure,
			Symbol:     symbol,
			Type:       "pressure_" + string(r.Direction),
			Category:   models.CategoryPressure,
			Title:      fmt.Sprintf("%s pressure building on %s", side, symbol),
			Message:    msg,
			Severity:   r.Score,
			Confidence: r.Score / 100,
			Metadata: map[string]any{
				"direction":        r.Direction,
				"drivers":          r.Drivers,
				"riskAcceleration": r.RiskAcceleration,
			},
		},
		entities: len(r.ContributingEntities),
	}, true
}

func anomalyCategory(s models.AnomalySource) models.Category {
	switch s {
	case models.SourceWhale:
		return models.CategoryWhale
	case models.SourceLiquidity:
		return models.CategoryLiquidity
	case models.SourceCluster, models.SourceEntityRisk:
		return models.CategoryRisk
	default:
		return models.CategoryAnomaly
	}
}

func anomalyCandidate(a models.Anomaly) candidate {
	return candidate{
		alert: models.IncomingAlert{
			Source:          models.AlertSourceAnomaly,
			Symbol:          a.Symbol,
			Type:            string(a.Type),
			Category:        anomalyCategory(a.Source),
			Title:           a.Title,
			Message:         a.Description,
			SuggestedAction: a.SuggestedAction,
			Severity:        a.Severity.Score(),
			Confidence:      a.Confidence,
			Metadata: map[string]any{
				"anomalyId":     a.ID,
				"metric":        a.TriggerMetric,
				"deviationPct":  a.DeviationPct,
				"impactRadius":  a.ImpactRadius,
				"baselineValue": a.BaselineValue,
			},
		},
		metrics:  map[string]float64{"deviation_pct": a.DeviationPct},
		entities: len(a.AffectedEntities),
	}
}

// fragilityCandidate raises one alert per scan for a fragile or critical book.
func fragilityCandidate(symbol string, f models.FragilityAlert) (candidate, bool) {
	if f.MarketVulnerability == models.VulnerabilityStable || f.MarketVulnerability == "" {
		return candidate{}, false
	}
	c := candidate{
		alert: models.IncomingAlert{
			Source:     models.AlertSourceFragility,
			Symbol:     symbol,
			Type:       "liquidity_fragility",
			Category:   models.CategoryLiquidity,
			Title:      fmt.Sprintf("Order book %s on %s", f.MarketVulnerability, symbol),
			Message:    f.Summary,
			Severity:   f.OverallScore,
			Confidence: 0.7,
			Metadata: map[string]any{
				"fragilityAlertId":  f.ID,
				"criticalZoneCount": f.CriticalZoneCount,
				"zoneCount":         len(f.Zones),
			},
		},
		metrics: map[string]float64{"critical_zones": float64(f.CriticalZoneCount)},
	}
	if z := f.NearestCritical; z != nil {
		c.alert.Type = string(z.Type)
		c.alert.SuggestedAction = z.Risk
		pr := z.PriceRange
		c.priceRange = &pr
		c.metrics["slippage_pct"] = z.EstimatedSlippage
	}
	if f.MarketVulnerability == models.VulnerabilityCritical {
		c.alert.Confidence = 0.85
	}
	return c, true
}

func manipulationCandidate(m models.ManipulationSignal) candidate {
	sev := m.Severity.Score()
	if p := m.Probability * 100; p > sev {
		sev = p
	}
	return candidate{
		alert: models.IncomingAlert{
			Source:          models.AlertSourceManipulation,
			Symbol:          m.Symbol,
			Type:            string(m.Type),
			Category:        models.CategoryManipulation,
			Title:           m.Title,
			Message:         m.Narrative,
			SuggestedAction: m.SuggestedAction,
			Severity:        sev,
			Confidence:      m.Confidence,
			Metadata: map[string]any{
				"signalId":    m.ID,
				"probability": m.Probability,
				"clusterId":   m.ClusterID,
				"entities":    m.EntityIDs(),
				"impact":      m.Impact.String(),
			},
		},
		metrics:    map[string]float64{"probability": m.Probability},
		entities:   len(m.Manipulators),
		priceRange: m.PriceRange,
	}
}

// narrate fills the narrative fields of c's alert.
func (w *Watchdog) narrate(c candidate) models.IncomingAlert {
	opts := narrator.DefaultOptions()
	if w.settings.NarrativeLength != "" {
		opts.Length = w.settings.NarrativeLength
	}
	if w.settings.NarrativeMaxLength > 0 {
		opts.MaxLength = w.settings.NarrativeMaxLength
	}
	n := w.narrator.Generate(narrator.Context{
		Type:            c.alert.Type,
		Symbol:          c.alert.Symbol,
		Title:           c.alert.Title,
		Message:         c.alert.Message,
		Severity:        c.alert.Severity,
		SuggestedAction: c.alert.SuggestedAction,
		Metrics:         c.metrics,
		EntityCount:     c.entities,
		PriceRange:      c.priceRange,
	}, opts)
	in := c.alert
	in.Narrative = n.FullNarrative
	in.Speakable = n.SpeakableNarrative
	if in.SuggestedAction == "" {
		in.SuggestedAction = n.Action
	}
	return in
}
