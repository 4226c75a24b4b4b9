package models

// AlertSource names the detector (or caller) that raised an alert.
type AlertSource string

const (
	AlertSourcePressure     AlertSource = "pressure"
	AlertSourceAnomaly      AlertSource = "anomaly"
	AlertSourceFragility    AlertSource = "fragility"
	AlertSourceManipulation AlertSource = "manipulation"
	AlertSourceSystem       AlertSource = "system"
)

// Priority is the routing class derived from severity.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Color is the display color paired 1:1 with a priority.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
)

// Category is the coarse classification of what an alert is about.
type Category string

const (
	CategoryWhale        Category = "whale_activity"
	CategoryLiquidity    Category = "liquidity"
	CategoryManipulation Category = "manipulation"
	CategoryAnomaly      Category = "anomaly"
	CategoryRisk         Category = "risk"
	CategoryPressure     Category = "market_pressure"
)

// IncomingAlert is what detectors (or the orchestrator) submit to the router.
// Severity is on the 0-100 scale.
type IncomingAlert struct {
	Source          AlertSource    `json:"source" validate:"required"`
	Symbol          string         `json:"symbol,omitempty"`
	Type            string         `json:"type,omitempty"`
	Category        Category       `json:"category,omitempty"`
	Title           string         `json:"title" validate:"required"`
	Message         string         `json:"message"`
	Narrative       string         `json:"narrative,omitempty"`
	Speakable       string         `json:"speakableNarrative,omitempty"`
	SuggestedAction string         `json:"suggestedAction,omitempty"`
	Severity        float64        `json:"severity" validate:"gte=0,lte=100"`
	Confidence      float64        `json:"confidence" validate:"gte=0,lte=1"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// WatchdogAlert is the router's canonical record of a routed alert.
// Only the three boolean flags change after creation.
type WatchdogAlert struct {
	ID              string         `json:"id"`
	Source          AlertSource    `json:"source"`
	Symbol          string         `json:"symbol,omitempty"`
	Type            string         `json:"type,omitempty"`
	Priority        Priority       `json:"priority"`
	Color           Color          `json:"color"`
	Category        Category       `json:"category"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	Narrative       string         `json:"narrative,omitempty"`
	Speakable       string         `json:"speakableNarrative,omitempty"`
	SuggestedAction string         `json:"suggestedAction,omitempty"`
	Confidence      float64        `json:"confidence"`
	Severity        float64        `json:"severity"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Acknowledged    bool           `json:"acknowledged"`
	Spoken          bool           `json:"spoken"`
	Displayed       bool           `json:"displayed"`
	Lifetime
}

// AlertDelivery tells listeners how to surface a routed alert.
type AlertDelivery struct {
	Alert         WatchdogAlert `json:"alert"`
	ShouldSpeak   bool          `json:"shouldSpeak"`
	ShouldDisplay bool          `json:"shouldDisplay"`
	ShouldNotify  bool          `json:"shouldNotify"`
	DelayMs       int64         `json:"delayMs"`
}

// RouteStatus is the terminal state of one Route call.
type RouteStatus string

const (
	RouteDeduplicated RouteStatus = "deduplicated"
	RouteDropped      RouteStatus = "dropped"
	RouteQueued       RouteStatus = "queued"
	RouteRouted       RouteStatus = "routed"
)

// RouteResult reports what happened to a submitted alert. Delivery is set
// only when Status is RouteRouted.
type RouteResult struct {
	Status   RouteStatus    `json:"status"`
	Delivery *AlertDelivery `json:"delivery,omitempty"`
}

// RouterStats is a point-in-time view of router counters.
type RouterStats struct {
	TotalReceived       int              `json:"totalReceived"`
	TotalRouted         int              `json:"totalRouted"`
	TotalDeduplicated   int              `json:"totalDeduplicated"`
	TotalThrottled      int              `json:"totalThrottled"`
	TotalQueued         int              `json:"totalQueued"`
	ActiveCount         int              `json:"activeCount"`
	UnacknowledgedCount int              `json:"unacknowledgedCount"`
	QueueDepth          int              `json:"queueDepth"`
	AlertsThisHour      int              `json:"alertsThisHour"`
	ByPriority          map[Priority]int `json:"byPriority"`
	ByCategory          map[Category]int `json:"byCategory"`
}
