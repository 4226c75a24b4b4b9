package models

// Requests for watchdog HTTP endpoints.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type AnomalyQuery struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Severity string `query:"severity" json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Type     string `query:"type" json:"type"`
	Source   string `query:"source" json:"source" validate:"omitempty,oneof=whale liquidity cluster entity_risk volume price order_flow"`
}

type ZoneQuery struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Severity string `query:"severity" json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Type     string `query:"type" json:"type"`
}

type ManipulationQuery struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Severity string `query:"severity" json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Type     string `query:"type" json:"type"`
	Entity   string `query:"entity" json:"entity"`
}

type AlertQuery struct {
	Priority       string `query:"priority" json:"priority" validate:"omitempty,oneof=high medium low"`
	Category       string `query:"category" json:"category"`
	Unacknowledged bool   `query:"unacknowledged" json:"unacknowledged"`
}

type HistoryRequest struct {
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=200"`
	Since string `query:"since" json:"since"`
}

type ScanRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type NarrateRequest struct {
	Type            string             `json:"type" validate:"required"`
	Title           string             `json:"title"`
	Message         string             `json:"message" validate:"required"`
	Severity        float64            `json:"severity" validate:"gte=0,lte=100"`
	Tone            string             `json:"tone" validate:"omitempty,oneof=calm urgent warning critical"`
	Length          string             `json:"length" default:"standard" validate:"oneof=brief standard detailed"`
	MaxLength       int                `json:"maxLength" default:"400" validate:"gte=20,lte=2000"`
	SuggestedAction string             `json:"suggestedAction"`
	EntityCount     int                `json:"entityCount" validate:"gte=0"`
	Metrics         map[string]float64 `json:"metrics"`
	PriceLow        float64            `json:"priceLow" validate:"gte=0"`
	PriceHigh       float64            `json:"priceHigh" validate:"gte=0"`
}
