package manipulation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
)

// finding is a heuristic hit before it is stamped into a signal.
type finding struct {
	typ          models.ManipulationType
	probability  float64
	confidence   float64
	impact       models.ImpactTier
	manipulators []models.Manipulator
	priceRange   *models.PriceRange
	technical    string
}

// evidence maps an observation count onto a confidence in [0.4, 0.9].
func evidence(n, full int) float64 {
	if full <= 0 {
		return 0.4
	}
	return 0.4 + 0.5*math.Min(1, float64(n)/float64(full))
}

func clamp01(v float64) float64 { return features.Clamp(v, 0, 0.95) }

type activity struct {
	id    string
	count float64
}

// rank converts per-entity counts into manipulators with activity share
// above minShare, largest first.
func rank(counts map[string]float64, inferred string, conf, minShare float64) []models.Manipulator {
	total := 0.0
	list := make([]activity, 0, len(counts))
	for id, c := range counts {
		if id == "" || c <= 0 {
			continue
		}
		total += c
		list = append(list, activity{id, c})
	}
	if total == 0 {
		return nil
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count == list[j].count {
			return list[i].id < list[j].id
		}
		return list[i].count > list[j].count
	})
	var out []models.Manipulator
	for _, a := range list {
		share := a.count / total
		if share < minShare {
			continue
		}
		out = append(out, models.Manipulator{
			ID:            a.id,
			InferredType:  inferred,
			Confidence:    conf,
			ActivityScore: features.Clamp100(share * 100),
		})
	}
	return out
}

func deltaRange(deltas []models.BookDelta, keep func(models.BookDelta) bool) *models.PriceRange {
	var r *models.PriceRange
	for _, d := range deltas {
		if !keep(d) || d.Price <= 0 {
			continue
		}
		if r == nil {
			r = &models.PriceRange{Low: d.Price, High: d.Price}
			continue
		}
		r.Low, r.High = math.Min(r.Low, d.Price), math.Max(r.High, d.Price)
	}
	return r
}

func tradeRange(trades []models.Trade) *models.PriceRange {
	var r *models.PriceRange
	for _, t := range trades {
		if t.Price <= 0 {
			continue
		}
		if r == nil {
			r = &models.PriceRange{Low: t.Price, High: t.Price}
			continue
		}
		r.Low, r.High = math.Min(r.Low, t.Price), math.Max(r.High, t.Price)
	}
	return r
}

func (d *Detector) spoofing(in *models.MarketInputs) *finding {
	of := in.OrderFlow
	cfg := d.cfg
	if of == nil || of.CancelRate <= cfg.SpoofCancelRate {
		return nil
	}
	short := of.AvgOrderLifetimeMs > 0 && of.AvgOrderLifetimeMs < cfg.SpoofMaxLifetimeMs
	churn := of.OrderToTradeRatio > cfg.SpoofOrderToTrade
	if !short && !churn {
		return nil
	}
	p := 0.3 + 0.5*(of.CancelRate-cfg.SpoofCancelRate)/(1-cfg.SpoofCancelRate)
	if short {
		p += 0.1
	}
	if churn {
		p += 0.1
	}
	pulls := make(map[string]float64)
	for _, bd := range in.BookDeltas {
		if bd.SizeChange < 0 {
			pulls[bd.EntityID]++
		}
	}
	impact := models.ImpactModerate
	if of.OrderToTradeRatio > 2.5*cfg.SpoofOrderToTrade {
		impact = models.ImpactSignificant
	}
	conf := evidence(of.TotalOrders, 500)
	return &finding{
		typ:          models.ManipSpoofing,
		probability:  clamp01(p),
		confidence:   conf,
		impact:       impact,
		manipulators: rank(pulls, "spoofer", conf, 0.2),
		priceRange:   deltaRange(in.BookDeltas, func(bd models.BookDelta) bool { return bd.SizeChange < 0 }),
		technical: fmt.Sprintf("cancel rate %.0f%%, avg order lifetime %.0fms, order/trade ratio %.1f",
			of.CancelRate*100, of.AvgOrderLifetimeMs, of.OrderToTradeRatio),
	}
}

type sideKey struct {
	entity string
	side   models.Side
}

// layering looks for one entity stacking orders across several price levels
// on one side and pulling most of them.
func (d *Detector) layering(in *models.MarketInputs) *finding {
	if len(in.BookDeltas) == 0 {
		return nil
	}
	added := make(map[sideKey]map[float64]bool)
	pulled := make(map[sideKey]map[float64]bool)
	for _, bd := range in.BookDeltas {
		if bd.EntityID == "" {
			continue
		}
		k := sideKey{bd.EntityID, bd.Side}
		target := added
		if bd.SizeChange < 0 {
			target = pulled
		}
		if target[k] == nil {
			target[k] = make(map[float64]bool)
		}
		target[k][bd.Price] = true
	}
	var best *finding
	counts := make(map[string]float64)
	for k, levels := range added {
		if len(levels) < d.cfg.LayeringMinLevels {
			continue
		}
		removed := 0
		for price := range levels {
			if pulled[k][price] {
				removed++
			}
		}
		frac := float64(removed) / float64(len(levels))
		if frac < d.cfg.LayeringPullFraction {
			continue
		}
		counts[k.entity] += float64(len(levels))
		p := clamp01(0.3 + 0.1*float64(len(levels))*frac)
		if best == nil || p > best.probability {
			key := k
			best = &finding{
				typ:         models.ManipLayering,
				probability: p,
				confidence:  evidence(len(in.BookDeltas), 40),
				impact:      models.ImpactModerate,
				priceRange: deltaRange(in.BookDeltas, func(bd models.BookDelta) bool {
					return bd.EntityID == key.entity && bd.Side == key.side
				}),
				technical: fmt.Sprintf("%s layered %d %s levels and pulled %.0f%% of them",
					k.entity, len(levels), k.side, frac*100),
			}
		}
	}
	if best != nil {
		best.manipulators = rank(counts, "layerer", best.confidence, 0)
	}
	return best
}

// related reports entity pairs that self-trade or trade with each other in
// both directions.
func related(trades []models.Trade) map[string]bool {
	dir := make(map[[2]string]bool)
	for _, t := range trades {
		if t.Maker != "" && t.Taker != "" {
			dir[[2]string{t.Maker, t.Taker}] = true
		}
	}
	out := make(map[string]bool)
	for pair := range dir {
		if pair[0] == pair[1] || dir[[2]string{pair[1], pair[0]}] {
			out[pairKey(pair[0], pair[1])] = true
		}
	}
	return out
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (d *Detector) washTrading(in *models.MarketInputs) *finding {
	if len(in.Trades) == 0 {
		return nil
	}
	rel := related(in.Trades)
	if len(rel) == 0 {
		return nil
	}
	var total, washVol float64
	counts := make(map[string]float64)
	var washTrades []models.Trade
	for _, t := range in.Trades {
		total += t.Volume
		if t.Maker == "" || t.Taker == "" || !rel[pairKey(t.Maker, t.Taker)] {
			continue
		}
		washVol += t.Volume
		counts[t.Maker] += t.Volume
		counts[t.Taker] += t.Volume
		washTrades = append(washTrades, t)
	}
	if total == 0 {
		return nil
	}
	frac := washVol / total
	if frac < d.cfg.WashMinFraction {
		return nil
	}
	conf := evidence(len(washTrades), 20)
	impact := models.ImpactMinimal
	if frac >= 0.6 {
		impact = models.ImpactModerate
	}
	return &finding{
		typ:          models.ManipWashTrading,
		probability:  clamp01(0.3 + 0.7*frac),
		confidence:   conf,
		impact:       impact,
		manipulators: rank(counts, "wash_trader", conf, 0),
		priceRange:   tradeRange(washTrades),
		technical:    fmt.Sprintf("%.0f%% of tape volume traded between %d related pair(s)", frac*100, len(rel)),
	}
}

func priceMovePct(in *models.MarketInputs) (float64, bool) {
	if n := len(in.Trades); n >= 2 && in.Trades[0].Price > 0 {
		return (in.Trades[n-1].Price - in.Trades[0].Price) / in.Trades[0].Price * 100, true
	}
	if in.PriceChange24h != nil {
		return *in.PriceChange24h, true
	}
	return 0, false
}

// pumpOrDump needs both a volume multiple over the tape-volume baseline and a
// price move; the sign of the move selects the archetype.
func (d *Detector) pumpOrDump(in *models.MarketInputs) *finding {
	if len(in.Trades) == 0 {
		return nil
	}
	vol := 0.0
	for _, t := range in.Trades {
		vol += t.Volume
	}
	ready := d.volume.Len() >= d.cfg.PumpBaselineSamples
	base := d.volume.Mean()
	d.volume.Add(vol)
	if !ready || base <= 0 {
		return nil
	}
	mult := vol / base
	move, ok := priceMovePct(in)
	if !ok || mult < d.cfg.PumpVolumeMultiple || math.Abs(move) < d.cfg.PumpPriceChangePct {
		return nil
	}
	typ, side, inferred := models.ManipPumpGroup, models.SideBuy, "pump_coordinator"
	if move < 0 {
		typ, side, inferred = models.ManipDumpGroup, models.SideSell, "dump_coordinator"
	}
	counts := make(map[string]float64)
	for _, t := range in.Trades {
		if t.Side == side {
			counts[t.Taker] += t.Volume
		}
	}
	impact := models.ImpactSignificant
	if math.Abs(move) >= 2*d.cfg.PumpPriceChangePct {
		impact = models.ImpactSevere
	}
	conf := evidence(len(in.Trades), 30)
	p := 0.4 + 0.05*(mult-d.cfg.PumpVolumeMultiple) + 0.03*(math.Abs(move)-d.cfg.PumpPriceChangePct)
	return &finding{
		typ:          typ,
		probability:  clamp01(p),
		confidence:   conf,
		impact:       impact,
		manipulators: rank(counts, inferred, conf, 0.1),
		priceRange:   tradeRange(in.Trades),
		technical:    fmt.Sprintf("tape volume %.1fx baseline with a %+.1f%% price move", mult, move),
	}
}

// stopHunt looks for price wicking through a stop cluster and snapping back.
func (d *Detector) stopHunt(in *models.MarketInputs) *finding {
	if len(in.Trades) < 2 || len(in.StopClusters) == 0 {
		return nil
	}
	first, last := in.Trades[0].Price, in.Trades[len(in.Trades)-1].Price
	lo, hi := first, first
	for _, t := range in.Trades {
		lo, hi = math.Min(lo, t.Price), math.Max(hi, t.Price)
	}
	var best *finding
	for _, c := range in.StopClusters {
		if c.Strength < d.cfg.StopHuntStrength || c.Price <= 0 {
			continue
		}
		var reversal float64
		var rng models.PriceRange
		var hunters map[string]float64
		switch {
		case c.Price < first && lo <= c.Price && last > c.Price:
			reversal = (last - lo) / lo * 100
			rng = models.PriceRange{Low: lo, High: c.Price}
			hunters = takersBeyond(in.Trades, models.SideSell, func(p float64) bool { return p <= c.Price })
		case c.Price > first && hi >= c.Price && last < c.Price:
			reversal = (hi - last) / hi * 100
			rng = models.PriceRange{Low: c.Price, High: hi}
			hunters = takersBeyond(in.Trades, models.SideBuy, func(p float64) bool { return p >= c.Price })
		default:
			continue
		}
		if reversal < d.cfg.StopHuntReversalPct {
			continue
		}
		p := clamp01(0.4 + c.Strength/100*0.3 + math.Min(0.25, reversal*0.05))
		if best == nil || p > best.probability {
			r := rng
			conf := evidence(len(in.Trades), 20)
			best = &finding{
				typ:          models.ManipStopHunt,
				probability:  p,
				confidence:   conf,
				impact:       models.ImpactSignificant,
				manipulators: rank(hunters, "stop_hunter", conf, 0.2),
				priceRange:   &r,
				technical:    fmt.Sprintf("price ran through stops at %.6g (strength %.0f) and reversed %.2f%%", c.Price, c.Strength, reversal),
			}
		}
	}
	return best
}

func takersBeyond(trades []models.Trade, side models.Side, beyond func(float64) bool) map[string]float64 {
	out := make(map[string]float64)
	for _, t := range trades {
		if t.Side == side && beyond(t.Price) {
			out[t.Taker] += t.Volume
		}
	}
	return out
}

// momentumIgnition flags a single aggressor whose same-side burst dominates
// the tape and moves price in its direction.
func (d *Detector) momentumIgnition(in *models.MarketInputs) *finding {
	if len(in.Trades) < d.cfg.IgnitionMinTrades {
		return nil
	}
	move, ok := priceMovePct(in)
	if !ok || math.Abs(move) < d.cfg.IgnitionMovePct {
		return nil
	}
	side := models.SideBuy
	if move < 0 {
		side = models.SideSell
	}
	var total float64
	vol := make(map[string]float64)
	n := make(map[string]int)
	for _, t := range in.Trades {
		total += t.Volume
		if t.Side == side && t.Taker != "" {
			vol[t.Taker] += t.Volume
			n[t.Taker]++
		}
	}
	if total == 0 {
		return nil
	}
	var lead string
	for id, v := range vol {
		if lead == "" || v > vol[lead] || (v == vol[lead] && id < lead) {
			lead = id
		}
	}
	if lead == "" || n[lead] < d.cfg.IgnitionMinTrades {
		return nil
	}
	share := vol[lead] / total
	if share < d.cfg.IgnitionShare {
		return nil
	}
	impact := models.ImpactModerate
	if math.Abs(move) >= 3*d.cfg.IgnitionMovePct {
		impact = models.ImpactSignificant
	}
	conf := evidence(n[lead], 15)
	return &finding{
		typ:         models.ManipMomentumIgnition,
		probability: clamp01(0.35 + share*0.4 + math.Min(0.2, math.Abs(move)*0.05)),
		confidence:  conf,
		impact:      impact,
		manipulators: []models.Manipulator{{
			ID: lead, InferredType: "momentum_igniter", Confidence: conf, ActivityScore: features.Clamp100(share * 100),
		}},
		priceRange: tradeRange(in.Trades),
		technical:  fmt.Sprintf("%s took %.0f%% of volume in %d %s trades, price moved %+.2f%%", lead, share*100, n[lead], side, move),
	}
}

func (d *Detector) quoteStuffing(in *models.MarketInputs) *finding {
	of := in.OrderFlow
	if of == nil || of.OrdersPerSecond < d.cfg.StuffingOrdersPerSec {
		return nil
	}
	if of.CancelRate < d.cfg.StuffingCancelRate && of.OrderToTradeRatio < 50 {
		return nil
	}
	ratio := of.OrdersPerSecond / d.cfg.StuffingOrdersPerSec
	p := 0.4 + 0.1*math.Log2(ratio) + math.Max(0, of.CancelRate-d.cfg.StuffingCancelRate)
	impact := models.ImpactMinimal
	if ratio >= 5 {
		impact = models.ImpactModerate
	}
	senders := make(map[string]float64)
	for _, bd := range in.BookDeltas {
		senders[bd.EntityID]++
	}
	conf := evidence(of.TotalOrders, 1000)
	return &finding{
		typ:          models.ManipQuoteStuffing,
		probability:  clamp01(p),
		confidence:   conf,
		impact:       impact,
		manipulators: rank(senders, "quote_stuffer", conf, 0.2),
		technical:    fmt.Sprintf("%.0f orders/s with %.0f%% cancelled", of.OrdersPerSecond, of.CancelRate*100),
	}
}

// paintingTheTape looks for a run of uniform small prints from few takers
// walking price steadily in one direction.
func (d *Detector) paintingTheTape(in *models.MarketInputs) *finding {
	trades := in.Trades
	if len(trades) < d.cfg.PaintMinTrades {
		return nil
	}
	sizes := make([]float64, len(trades))
	takers := make(map[string]float64)
	up, down := 0, 0
	for i, t := range trades {
		sizes[i] = t.Volume
		takers[t.Taker] += t.Volume
		if i == 0 {
			continue
		}
		switch {
		case t.Price > trades[i-1].Price:
			up++
		case t.Price < trades[i-1].Price:
			down++
		}
	}
	mean, sd := stat.MeanStdDev(sizes, nil)
	if mean <= 0 || sd/mean > d.cfg.PaintMaxSizeCV || len(takers) > d.cfg.PaintMaxTakers {
		return nil
	}
	steps := float64(len(trades) - 1)
	mono := math.Max(float64(up), float64(down)) / steps
	if mono < 0.8 {
		return nil
	}
	conf := evidence(len(trades), 30)
	return &finding{
		typ:          models.ManipPaintingTheTape,
		probability:  clamp01(0.3 + 0.5*mono - sd/mean),
		confidence:   conf,
		impact:       models.ImpactMinimal,
		manipulators: rank(takers, "tape_painter", conf, 0.1),
		priceRange:   tradeRange(trades),
		technical:    fmt.Sprintf("%d near-identical prints (size cv %.2f) from %d taker(s), %.0f%% moving one way", len(trades), sd/mean, len(takers), mono*100),
	}
}
