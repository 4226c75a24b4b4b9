package narrator

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

var (
	dollarRe    = regexp.MustCompile(`\$(\d[\d,]*(?:\.\d+)?)`)
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})`)
	pauseRe     = regexp.MustCompile(`\.\s+(?:\.\.\.\s+)?`)
	spacesRe    = regexp.MustCompile(`[ \t]{2,}`)
)

// Applied in order after currency and separators are normalized. Every
// replacement is free of the patterns it rewrites, so a second pass is a no-op.
var speechRewrites = []rewrite{
	{regexp.MustCompile(`(\d)\s*%`), "$1 percent"},
	{regexp.MustCompile(`(^|[\s(])\+(\d)`), "${1}plus $2"},
	{regexp.MustCompile(`(^|[\s(])-(\d)`), "${1}minus $2"},
	{regexp.MustCompile(`\s*>=\s*`), " at least "},
	{regexp.MustCompile(`\s*<=\s*`), " at most "},
	{regexp.MustCompile(`\s*>\s*`), " greater than "},
	{regexp.MustCompile(`\s*<\s*`), " less than "},
	{regexp.MustCompile(`\bBTC\b`), "Bitcoin"},
	{regexp.MustCompile(`\bETH\b`), "Ethereum"},
	{regexp.MustCompile(`\bSOL\b`), "Solana"},
	{regexp.MustCompile(`\bUSDT\b`), "Tether"},
	{regexp.MustCompile(`\bUSDC\b`), "USD Coin"},
	{regexp.MustCompile(`\bbps\b`), "basis points"},
	{regexp.MustCompile(`\bOTR\b`), "order to trade ratio"},
	{regexp.MustCompile(`(?i)\bvolatility\b`), "price swings"},
	{regexp.MustCompile(`(?i)\bslippage\b`), "price impact"},
	{regexp.MustCompile(`(?i)\bliquidations?\b`), "forced closings"},
	{regexp.MustCompile(`(?i)\bspoofing\b`), "fake orders"},
	{regexp.MustCompile(`(?i)\bimbalance\b`), "lopsided book"},
}

// Speakable rewrites text for text-to-speech: currency and asset symbols are
// spelled out, separators dropped, jargon softened, and pause markers added
// after sentence breaks. Running it twice gives the same result.
func Speakable(text string) string {
	s := dollarRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m[1:], ",", "") + " dollars"
	})
	for thousandsRe.MatchString(s) {
		s = thousandsRe.ReplaceAllString(s, "$1$2")
	}
	for _, rw := range speechRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	s = pauseRe.ReplaceAllString(s, ". ... ")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
