package narrator

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"Watchdog/internal/domain/models"
)

// RandSource picks phrase indexes. *rand.Rand satisfies it.
type RandSource interface {
	Intn(n int) int
}

type Length string

const (
	LengthBrief    Length = "brief"
	LengthStandard Length = "standard"
	LengthDetailed Length = "detailed"
)

type Options struct {
	// Tone overrides the severity-derived tone when set.
	Tone          models.Tone
	Length        Length
	MaxLength     int
	IncludeAction bool
}

func DefaultOptions() Options {
	return Options{Length: LengthStandard, MaxLength: 400, IncludeAction: true}
}

// Context is everything the narrator needs to describe one alert.
type Context struct {
	Type            string
	Kind            *Kind
	Symbol          string
	Title           string
	Message         string
	Severity        float64
	SuggestedAction string
	Metrics         map[string]float64
	EntityCount     int
	PriceRange      *models.PriceRange
}

type Narrator struct {
	mu   sync.Mutex
	rand RandSource
	now  func() time.Time
}

type Option func(*Narrator)

func WithRand(r RandSource) Option {
	return func(n *Narrator) {
		if r != nil {
			n.rand = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Narrator) {
		if now != nil {
			n.now = now
		}
	}
}

func New(opts ...Option) *Narrator {
	n := &Narrator{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ToneFor derives the tone from a 0-100 severity.
func ToneFor(severity float64) models.Tone {
	switch {
	case severity >= 85:
		return models.ToneCritical
	case severity >= 70:
		return models.ToneWarning
	case severity >= 50:
		return models.ToneUrgent
	default:
		return models.ToneCalm
	}
}

func (n *Narrator) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return options[n.rand.Intn(len(options))]
}

// Generate renders the context. The output never exceeds opts.MaxLength
// characters; with a fixed RandSource it is deterministic.
func (n *Narrator) Generate(c Context, opts Options) models.Narrative {
	if opts.Length == "" {
		opts.Length = LengthStandard
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultOptions().MaxLength
	}
	tone := opts.Tone
	if tone == "" {
		tone = ToneFor(c.Severity)
	}
	kind := KindFromType(c.Type)
	if c.Kind != nil {
		kind = *c.Kind
	}

	headline := n.headline(c, tone, kind)
	body := body(c, opts.Length)
	var action string
	if opts.IncludeAction {
		action = n.action(c, tone, kind)
	}

	parts := []string{sentence(headline), body}
	if action != "" {
		parts = append(parts, action)
	}
	full := truncate(strings.TrimSpace(joinNonEmpty(parts, " ")), opts.MaxLength)

	return models.Narrative{
		Headline:           headline,
		Body:               body,
		Action:             action,
		FullNarrative:      full,
		SpeakableNarrative: Speakable(full),
		Tone:               tone,
		GeneratedAt:        n.now(),
	}
}

func (n *Narrator) headline(c Context, tone models.Tone, kind Kind) string {
	prefix := n.pick(tonePrefixes[tone])
	subject := c.Title
	if bank, ok := phraseBank[kind]; ok {
		subject = n.pick(bank)
	}
	if subject == "" {
		subject = "market conditions changed"
	}
	if c.Symbol != "" {
		subject = c.Symbol + ": " + subject
	}
	return strings.TrimSpace(prefix + " " + subject)
}

func (n *Narrator) action(c Context, tone models.Tone, kind Kind) string {
	if c.SuggestedAction != "" {
		return sentence(c.SuggestedAction)
	}
	if tone == models.ToneCritical || tone == models.ToneWarning {
		if a, ok := kindActions[kind]; ok {
			return a
		}
	}
	return n.pick(actionTemplates[tone])
}

// body joins message, metrics, entity count and price range; brief keeps the
// message, standard the first two present parts, detailed all of them.
func body(c Context, length Length) string {
	var parts []string
	for _, p := range []string{
		sentence(c.Message),
		metricsPhrase(c.Metrics),
		entityPhrase(c.EntityCount),
		rangePhrase(c.PriceRange),
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	limit := len(parts)
	switch length {
	case LengthBrief:
		limit = 1
	case LengthStandard:
		limit = 2
	}
	if limit > len(parts) {
		limit = len(parts)
	}
	return strings.Join(parts[:limit], " ")
}

func metricsPhrase(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 3 {
		keys = keys[:3]
	}
	items := make([]string, 0, len(keys))
	for _, k := range keys {
		items = append(items, fmt.Sprintf("%s %s", strings.ReplaceAll(k, "_", " "), formatNumber(m[k])))
	}
	return "Key readings: " + strings.Join(items, ", ") + "."
}

func entityPhrase(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "One entity is involved."
	default:
		return fmt.Sprintf("%d entities are involved.", n)
	}
}

func rangePhrase(r *models.PriceRange) string {
	if r == nil || r.High <= 0 {
		return ""
	}
	if r.Low == r.High {
		return fmt.Sprintf("Watch the level at %s.", FormatPrice(r.Low))
	}
	return fmt.Sprintf("Watch the zone between %s and %s.", FormatPrice(r.Low), FormatPrice(r.High))
}

// FormatPrice renders a price with a dollar sign, thousands separators and a
// precision that fits its magnitude.
func FormatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	var s string
	switch {
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)):
		s = groupThousands(d.StringFixed(0))
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)):
		s = d.StringFixed(2)
	default:
		s = d.Round(6).String()
	}
	return "$" + s
}

func groupThousands(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func formatNumber(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.Abs().GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return d.StringFixed(0)
	}
	return d.Round(2).String()
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':':
		return s
	}
	return s + "."
}

func joinNonEmpty(parts []string, sep string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// truncate cuts s to at most max runes, ending in "..." when shortened.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max-3]), " ") + "..."
}
