package models

// ManipulationType enumerates manipulation archetypes.
type ManipulationType string

const (
	ManipSpoofing          ManipulationType = "spoofing"
	ManipLayering          ManipulationType = "layering"
	ManipWashTrading       ManipulationType = "wash_trading"
	ManipPumpGroup         ManipulationType = "pump_group"
	ManipDumpGroup         ManipulationType = "dump_group"
	ManipStopHunt          ManipulationType = "stop_hunt"
	ManipMomentumIgnition  ManipulationType = "momentum_ignition"
	ManipQuoteStuffing     ManipulationType = "quote_stuffing"
	ManipPaintingTheTape   ManipulationType = "painting_the_tape"
	ManipCoordinatedAttack ManipulationType = "coordinated_attack"
)

// ImpactTier estimates how much damage a manipulation can do, 1 (minimal) to 4 (severe).
type ImpactTier int

const (
	ImpactMinimal     ImpactTier = 1
	ImpactModerate    ImpactTier = 2
	ImpactSignificant ImpactTier = 3
	ImpactSevere      ImpactTier = 4
)

func (t ImpactTier) String() string {
	switch t {
	case ImpactMinimal:
		return "minimal"
	case ImpactModerate:
		return "moderate"
	case ImpactSignificant:
		return "significant"
	case ImpactSevere:
		return "severe"
	default:
		return "unknown"
	}
}

// MarshalText renders the tier by name.
func (t ImpactTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Manipulator is an entity attributed to a manipulation signal.
type Manipulator struct {
	ID            string  `json:"id"`
	InferredType  string  `json:"inferredType"`
	Confidence    float64 `json:"confidence"`
	ActivityScore float64 `json:"activityScore"`
}

// ManipulationSignal is one detected manipulation archetype.
type ManipulationSignal struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Type            ManipulationType `json:"type"`
	Severity        Severity         `json:"severity"`
	Probability     float64          `json:"probability"`
	Confidence      float64          `json:"confidence"`
	Manipulators    []Manipulator    `json:"manipulators,omitempty"`
	ClusterID       string           `json:"clusterId,omitempty"`
	Title           string           `json:"title"`
	Narrative       string           `json:"narrative"`
	Technical       string           `json:"technicalDetails"`
	SuggestedAction string           `json:"suggestedAction"`
	PriceRange      *PriceRange      `json:"affectedPriceRange,omitempty"`
	Impact          ImpactTier       `json:"estimatedImpact"`
	Lifetime
}

// EntityIDs returns the ids of the attributed manipulators.
func (s ManipulationSignal) EntityIDs() []string {
	out := make([]string, 0, len(s.Manipulators))
	for _, m := range s.Manipulators {
		out = append(out, m.ID)
	}
	return out
}
