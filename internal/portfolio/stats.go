package portfolio

import (
	"math"
	"strconv"

	"paper_trader/internal/models"
)

// ApplyRealized: свёртка статистики по одной закрытой (частично) сделке.
func ApplyRealized(s models.BotStats, pnl float64) models.BotStats {
	if pnl > 0 {
		s.Wins++
		s.GrossProfit += pnl
	} else {
		s.Losses++
		s.GrossLoss += math.Abs(pnl)
	}

	s.TotalProfitUSD += pnl
	s.PeakPnL = math.Max(s.PeakPnL, s.TotalProfitUSD)
	s.MaxDrawdown = math.Max(s.MaxDrawdown, s.PeakPnL-s.TotalProfitUSD)
	return s
}

// PerformanceOf: winRate в процентах и profit factor.
// При grossLoss == 0 и прибыли profit factor = +Inf ("∞").
func PerformanceOf(s models.BotStats) models.Performance {
	total := s.Wins + s.Losses
	p := models.Performance{TotalTrades: total}
	if total > 0 {
		p.WinRate = float64(s.Wins) / float64(total) * 100
	}

	switch {
	case s.GrossLoss > 0:
		p.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		p.ProfitFactor = math.Inf(1)
	}

	if math.IsInf(p.ProfitFactor, 1) {
		p.ProfitFactorText = "∞"
	} else {
		p.ProfitFactorText = strconv.FormatFloat(p.ProfitFactor, 'f', 2, 64)
	}
	return p
}
