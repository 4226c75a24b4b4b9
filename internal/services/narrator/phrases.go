package narrator

import (
	"strings"

	"Watchdog/internal/domain/models"
)

// Kind is the closed set of narrative families.
type Kind int

const (
	KindGeneric Kind = iota
	KindManipulation
	KindWhale
	KindLiquidity
	KindVolatility
	KindVolume
	KindPressure
	KindRisk
)

var kindNames = map[Kind]string{
	KindGeneric:      "generic",
	KindManipulation: "manipulation",
	KindWhale:        "whale",
	KindLiquidity:    "liquidity",
	KindVolatility:   "volatility",
	KindVolume:       "volume",
	KindPressure:     "pressure",
	KindRisk:         "risk",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "generic"
}

// keywordFamilies is checked in order; the first family with a keyword
// contained in the type string wins.
var keywordFamilies = []struct {
	kind     Kind
	keywords []string
}{
	{KindManipulation, []string{"spoof", "layering", "wash", "pump", "dump", "stop_hunt", "ignition", "stuffing", "painting", "manipulat", "coordinated"}},
	{KindWhale, []string{"whale"}},
	{KindLiquidity, []string{"liquid", "thin", "gap", "depth", "spread", "imbalance", "vacuum", "fragil", "stop_cluster"}},
	{KindVolatility, []string{"volatil", "price_spike", "price_crash"}},
	{KindVolume, []string{"volume", "order_flow", "cancel"}},
	{KindPressure, []string{"pressure"}},
	{KindRisk, []string{"risk", "entity", "cluster", "coordination"}},
}

// KindFromType maps a free-text alert type onto a Kind.
func KindFromType(typ string) Kind {
	t := strings.ToLower(typ)
	if t == "" {
		return KindGeneric
	}
	for _, fam := range keywordFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(t, kw) {
				return fam.kind
			}
		}
	}
	return KindGeneric
}

var phraseBank = map[Kind][]string{
	KindManipulation: {
		"someone is gaming the order book",
		"manipulation patterns are showing up",
		"the tape looks staged",
	},
	KindWhale: {
		"whales are on the move",
		"large holders are repositioning",
		"big wallets just woke up",
	},
	KindLiquidity: {
		"liquidity is getting thin",
		"the order book has weak spots",
		"depth is not what it seems",
	},
	KindVolatility: {
		"price is swinging hard",
		"volatility just jumped",
		"the market is moving fast",
	},
	KindVolume: {
		"trading activity is abnormal",
		"order traffic is out of pattern",
		"volume broke from its baseline",
	},
	KindPressure: {
		"market pressure is building",
		"one side is leaning on the market",
		"pressure readings are elevated",
	},
	KindRisk: {
		"risky entities are getting active",
		"counterparty risk is climbing",
		"coordinated wallets are gathering",
	},
}

var tonePrefixes = map[models.Tone][]string{
	models.ToneCritical: {"Critical alert:", "Danger:", "Immediate attention:"},
	models.ToneWarning:  {"Warning:", "Heads up:", "Caution:"},
	models.ToneUrgent:   {"Notice:", "Watch this:", "Developing:"},
	models.ToneCalm:     {"FYI:", "Quiet note:", "For awareness:"},
}

var actionTemplates = map[models.Tone][]string{
	models.ToneCritical: {
		"Act now: cut exposure and tighten stops.",
		"Step back from new entries until this clears.",
	},
	models.ToneWarning: {
		"Consider reducing position size.",
		"Tighten stops and watch closely.",
	},
	models.ToneUrgent: {
		"Keep an eye on this over the next few minutes.",
		"Review open orders near the affected levels.",
	},
	models.ToneCalm: {
		"No action needed yet.",
		"Just keep it on your radar.",
	},
}

// Kind-specific actions take precedence for the two most severe tones.
var kindActions = map[Kind]string{
	KindManipulation: "Do not trust displayed liquidity until the pattern stops.",
	KindLiquidity:    "Use limit orders; market orders will slip.",
	KindWhale:        "Watch for follow-through before reacting to whale flow.",
}
