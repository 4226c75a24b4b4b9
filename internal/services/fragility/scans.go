package fragility

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
)

// zoneDraft is a zone before scoring and stamping.
type zoneDraft struct {
	typ      models.ZoneType
	side     models.Side
	low      float64
	high     float64
	depth    float64
	slippage float64
	detail   string
}

type scanCtx struct {
	cfg  Config
	in   *models.MarketInputs
	ref  float64
	book *models.OrderBook
}

func (s *scanCtx) distancePct(price float64) float64 {
	return math.Abs(price-s.ref) / s.ref * 100
}

func (s *scanCtx) inRange(price float64) bool {
	return s.distancePct(price) <= s.cfg.ScanRangePct
}

func (s *scanCtx) levels(side models.Side) []models.BookLevel {
	if s.book == nil {
		return nil
	}
	if side == models.SideBuy {
		return s.book.Bids
	}
	return s.book.Asks
}

// slippage walks one side of the book with the reference clip and returns
// the price impact in percent. An exhausted side adds a flat 1%.
func (s *scanCtx) slippage(side models.Side) float64 {
	levels := s.levels(side)
	if len(levels) == 0 {
		return 0
	}
	remaining := s.cfg.ReferenceOrderSize
	last := levels[0].Price
	for _, l := range levels {
		last = l.Price
		remaining -= l.Size
		if remaining <= 0 {
			break
		}
	}
	impact := s.distancePct(last)
	if remaining > 0 {
		impact++
	}
	return impact
}

// depthBetween sums book size at prices within [low, high] on both sides.
func (s *scanCtx) depthBetween(low, high float64) float64 {
	if s.book == nil {
		return 0
	}
	total := 0.0
	for _, side := range [][]models.BookLevel{s.book.Bids, s.book.Asks} {
		for _, l := range side {
			if l.Price >= low && l.Price <= high {
				total += l.Size
			}
		}
	}
	return total
}

func sideName(side models.Side) string {
	if side == models.SideBuy {
		return "bid"
	}
	return "ask"
}

func (s *scanCtx) thinPockets() []zoneDraft {
	var out []zoneDraft
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		levels := s.levels(side)
		for i, l := range levels {
			if !s.inRange(l.Price) {
				continue
			}
			gap := 0.0
			low, high := l.Price, l.Price
			if i+1 < len(levels) {
				next := levels[i+1].Price
				gap = math.Abs(next-l.Price) / s.ref * 100
				low, high = math.Min(l.Price, next), math.Max(l.Price, next)
			}
			// a gap alone only flags levels under twice the thin threshold
			thin := l.Size < s.cfg.ThinThreshold ||
				(gap > s.cfg.ThinGapPct && l.Size < 2*s.cfg.ThinThreshold)
			if !thin {
				continue
			}
			out = append(out, zoneDraft{
				typ: models.ZoneThinPocket, side: side,
				low: low, high: high, depth: l.Size, slippage: gap,
				detail: fmt.Sprintf("only %.4g resting at %.6g on the %s side with a %.2f%% gap behind it", l.Size, l.Price, sideName(side), gap),
			})
		}
	}
	return out
}

func sumWindow(levels []models.BookLevel, from, n int) (float64, bool) {
	if from+n > len(levels) {
		return 0, false
	}
	total := 0.0
	for _, l := range levels[from : from+n] {
		total += l.Size
	}
	return total, true
}

func (s *scanCtx) imbalance() []zoneDraft {
	if s.book == nil {
		return nil
	}
	bid, ask := s.book.BidDepth(), s.book.AskDepth()
	if bid > 0 && ask > 0 {
		ratio := bid / ask
		if ratio > s.cfg.GlobalImbalanceRatio || ratio < 1/s.cfg.GlobalImbalanceRatio {
			return []zoneDraft{s.imbalanceZone(ratio, len(s.book.Bids), len(s.book.Asks), "book-wide")}
		}
	}
	w := s.cfg.LocalWindow
	for i := 0; ; i++ {
		b, okB := sumWindow(s.book.Bids, i, w)
		a, okA := sumWindow(s.book.Asks, i, w)
		if !okB || !okA {
			return nil
		}
		if b <= 0 || a <= 0 {
			continue
		}
		ratio := b / a
		if ratio > s.cfg.LocalImbalanceRatio || ratio < 1/s.cfg.LocalImbalanceRatio {
			return []zoneDraft{s.imbalanceZone(ratio, i+w, i+w, fmt.Sprintf("levels %d-%d", i+1, i+w))}
		}
	}
}

// imbalanceZone places the zone on the weak side, spanning its first n levels.
func (s *scanCtx) imbalanceZone(ratio float64, nBid, nAsk int, scope string) zoneDraft {
	weak, n := models.SideSell, nAsk
	if ratio < 1 {
		weak, n = models.SideBuy, nBid
	}
	levels := s.levels(weak)
	if n > len(levels) {
		n = len(levels)
	}
	low, high := s.ref, s.ref
	depth := 0.0
	for _, l := range levels[:n] {
		low, high = math.Min(low, l.Price), math.Max(high, l.Price)
		depth += l.Size
	}
	shown := ratio
	if shown < 1 {
		shown = 1 / ratio
	}
	return zoneDraft{
		typ: models.ZoneOrderImbalance, side: weak,
		low: low, high: high, depth: depth, slippage: s.slippage(weak),
		detail: fmt.Sprintf("%s imbalance of %.1f:1 leaves the %s side thin", scope, shown, sideName(weak)),
	}
}

func (s *scanCtx) liquidityGaps() []zoneDraft {
	var out []zoneDraft
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		levels := s.levels(side)
		for i := 0; i+1 < len(levels); i++ {
			a, b := levels[i], levels[i+1]
			if !s.inRange(a.Price) {
				continue
			}
			gap := math.Abs(b.Price-a.Price) / s.ref * 100
			if gap <= s.cfg.LiquidityGapPct {
				continue
			}
			out = append(out, zoneDraft{
				typ: models.ZoneLiquidityGap, side: side,
				low: math.Min(a.Price, b.Price), high: math.Max(a.Price, b.Price),
				depth: a.Size, slippage: gap,
				detail: fmt.Sprintf("%.2f%% hole in the %s book between %.6g and %.6g", gap, sideName(side), a.Price, b.Price),
			})
		}
	}
	return out
}

type liqBucket struct {
	price  decimal.Decimal
	volume float64
	side   models.Side
	count  int
}

func (s *scanCtx) liquidationVacuums() []zoneDraft {
	if len(s.in.Liquidations) == 0 {
		return nil
	}
	step := decimal.NewFromFloat(s.cfg.LiquidationBucket)
	buckets := make(map[string]*liqBucket)
	for _, l := range s.in.Liquidations {
		if l.Price <= 0 || l.Volume <= 0 {
			continue
		}
		p := decimal.NewFromFloat(l.Price).Div(step).Round(0).Mul(step)
		key := p.String() + "|" + string(l.Side)
		b, ok := buckets[key]
		if !ok {
			b = &liqBucket{price: p, side: l.Side}
			buckets[key] = b
		}
		b.volume += l.Volume
		b.count++
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	half := s.cfg.LiquidationBucket / 2
	var out []zoneDraft
	for _, k := range keys {
		b := buckets[k]
		price := b.price.InexactFloat64()
		if b.volume <= s.cfg.LiquidationMinVolume || !s.inRange(price) {
			continue
		}
		side := b.side
		if side == "" {
			side = models.SideSell
			if price > s.ref {
				side = models.SideBuy
			}
		}
		out = append(out, zoneDraft{
			typ: models.ZoneLiquidationVacuum, side: side,
			low: price - half, high: price + half,
			depth: s.depthBetween(price-half, price+half), slippage: s.slippage(side),
			detail: fmt.Sprintf("%d leveraged positions (%.4g volume) liquidate near %s", b.count, b.volume, b.price.String()),
		})
	}
	return out
}

func (s *scanCtx) stopClusters() []zoneDraft {
	var out []zoneDraft
	for _, c := range s.in.StopClusters {
		if c.Strength < s.cfg.StopClusterStrength || c.Price <= 0 || !s.inRange(c.Price) {
			continue
		}
		band := c.Price * 0.001
		side := c.Side
		if side == "" {
			side = models.SideSell
			if c.Price > s.ref {
				side = models.SideBuy
			}
		}
		out = append(out, zoneDraft{
			typ: models.ZoneStopCluster, side: side,
			low: c.Price - band, high: c.Price + band,
			depth: s.depthBetween(c.Price-band, c.Price+band), slippage: s.slippage(side),
			detail: fmt.Sprintf("stop-loss cluster of strength %.0f near %.6g", c.Strength, c.Price),
		})
	}
	return out
}

// spoofLiquidity flags single levels that hold an outsized share of their
// side's depth while sitting away from the mid.
func (s *scanCtx) spoofLiquidity() []zoneDraft {
	if s.book == nil {
		return nil
	}
	mid := s.book.MidPrice()
	if mid <= 0 {
		return nil
	}
	var out []zoneDraft
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		levels := s.levels(side)
		if len(levels) < 3 {
			continue
		}
		sizes := make([]float64, len(levels))
		depth := 0.0
		for i, l := range levels {
			sizes[i] = l.Size
			depth += l.Size
		}
		mean, sd := features.Mean(sizes), features.StdDev(sizes)
		for _, l := range levels {
			share := l.Size / depth
			dist := math.Abs(l.Price-mid) / mid * 100
			if share < s.cfg.SpoofDepthShare || dist < s.cfg.SpoofMinDistancePct || l.Size <= mean+sd || !s.inRange(l.Price) {
				continue
			}
			out = append(out, zoneDraft{
				typ: models.ZoneSpoofLiquidity, side: side,
				low: l.Price, high: l.Price, depth: l.Size, slippage: s.slippage(side),
				detail: fmt.Sprintf("%.0f%% of %s depth sits %.2f%% from mid at %.6g", share*100, sideName(side), dist, l.Price),
			})
		}
	}
	return out
}

func (s *scanCtx) washTrading() []zoneDraft {
	if s.book == nil || s.in.Volume24h <= 0 {
		return nil
	}
	mid := s.book.MidPrice()
	depth := s.book.TotalDepth()
	if mid <= 0 || depth <= 0 {
		return nil
	}
	spread := s.book.SpreadValue()
	bps := spread / mid * 10000
	ratio := s.in.Volume24h / depth
	if bps > s.cfg.WashSpreadBps || ratio <= s.cfg.WashVolumeDepthRatio {
		return nil
	}
	return []zoneDraft{{
		typ: models.ZoneWashTrading,
		low: mid - spread/2, high: mid + spread/2, depth: depth,
		detail: fmt.Sprintf("24h volume is %.0fx visible depth with a %.1f bps spread", ratio, bps),
	}}
}
