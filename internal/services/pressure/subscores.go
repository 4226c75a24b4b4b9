package pressure

import (
	"math"

	"Watchdog/internal/domain/models"
	"Watchdog/internal/services/features"
)

// Sub-score names, also used as keys in PressureReading.SubScores.
const (
	FactorBuy       = "buy_pressure"
	FactorSell      = "sell_pressure"
	FactorWhale     = "whale_pressure"
	FactorCluster   = "cluster_tightening"
	FactorLiquidity = "liquidity_fragility"
	FactorRisk      = "risk_acceleration"
)

const neutralScore = 50.0

type subScore struct {
	name      string
	score     float64
	direction float64 // -1, 0, +1
	weight    float64
	present   bool
}

var factorLabels = map[string]string{
	FactorBuy:       "Buy pressure",
	FactorSell:      "Sell pressure",
	FactorWhale:     "Whale pressure",
	FactorCluster:   "Cluster tightening",
	FactorLiquidity: "Liquidity fragility",
	FactorRisk:      "Entity risk acceleration",
}

// buyShare is the buy-side share of book depth and trade volume, averaged over
// whichever of the two is available.
func buyShare(in *models.MarketInputs) (float64, bool) {
	var shares []float64
	if ob := in.OrderBook; ob != nil {
		bid, ask := ob.BidDepth(), ob.AskDepth()
		if bid+ask > 0 {
			shares = append(shares, bid/(bid+ask))
		}
	}
	var buyVol, total float64
	for _, t := range in.Trades {
		total += t.Volume
		if t.Side == models.SideBuy {
			buyVol += t.Volume
		}
	}
	if total > 0 {
		shares = append(shares, buyVol/total)
	}
	if len(shares) == 0 {
		return 0, false
	}
	return features.Mean(shares), true
}

func buyAndSell(in *models.MarketInputs, w Weights) (subScore, subScore) {
	buy := subScore{name: FactorBuy, score: neutralScore, weight: w.BuyPressure}
	sell := subScore{name: FactorSell, score: neutralScore, weight: w.SellPressure}
	share, ok := buyShare(in)
	if !ok {
		return buy, sell
	}
	buy.present, sell.present = true, true
	buy.score = features.Clamp100(neutralScore + math.Max(0, share-0.5)*100)
	sell.score = features.Clamp100(neutralScore + math.Max(0, 0.5-share)*100)
	if buy.score > neutralScore {
		buy.direction = 1
	}
	if sell.score > neutralScore {
		sell.direction = -1
	}
	return buy, sell
}

func whale(in *models.MarketInputs, w Weights) subScore {
	s := subScore{name: FactorWhale, score: neutralScore, weight: w.WhalePressure}
	wi := in.WhaleIntel
	if wi == nil {
		return s
	}
	s.present = true
	s.score = features.Clamp100(neutralScore +
		math.Abs(wi.AccumulationScore-wi.DistributionScore)/2 +
		math.Min(20, float64(wi.LargeTransactions)*1.5) +
		math.Min(10, math.Abs(wi.NetFlow)/1000))
	s.direction = features.Sign(wi.NetFlow)
	if s.direction == 0 {
		s.direction = features.Sign(wi.AccumulationScore - wi.DistributionScore)
	}
	return s
}

func cluster(in *models.MarketInputs, w Weights) subScore {
	s := subScore{name: FactorCluster, score: neutralScore, weight: w.ClusterTightening}
	c := in.Clusters
	if c == nil {
		return s
	}
	s.present = true
	s.score = features.Clamp100(0.6*c.Tightness + 0.4*c.CoordinationScore)
	return s
}

func liquidity(in *models.MarketInputs, w Weights, lowDepth float64) subScore {
	s := subScore{name: FactorLiquidity, score: neutralScore, weight: w.LiquidityFragility}
	ob := in.OrderBook
	if ob == nil {
		return s
	}
	s.present = true
	score := 30.0
	if mid := ob.MidPrice(); mid > 0 {
		bps := ob.SpreadValue() / mid * 10000
		score += math.Min(30, bps*3)
	}
	imb := ob.Imbalance()
	if imb > 0 {
		score += math.Min(25, math.Abs(imb-1)*25)
		switch {
		case imb > 1:
			s.direction = 1
		case imb < 1:
			s.direction = -1
		}
	}
	if ob.TotalDepth() < lowDepth {
		score += 15
	}
	s.score = features.Clamp100(score)
	return s
}

func risk(in *models.MarketInputs, w Weights, accel float64) subScore {
	s := subScore{name: FactorRisk, score: neutralScore, weight: w.RiskAcceleration}
	er := in.EntityRisk
	if er == nil {
		return s
	}
	s.present = true
	s.score = features.Clamp100(20 + 0.6*er.AvgRiskScore + accel*2 + math.Min(20, 4*float64(er.NewHighRiskCount)))
	if accel > 0 {
		s.direction = -1
	}
	return s
}
