package service

import (
	"context"
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

// Rules: локальный оракул без сети, те же правила что и в промпте:
// падающий нож не покупаем, покупаем только higher low, выходим ниже минимума.
type Rules struct {
	// RewardRatio: тейк = цена + RewardRatio * (цена - стоп)
	RewardRatio float64
}

func NewRules() *Rules { return &Rules{RewardRatio: 2} }

func (r *Rules) Evaluate(_ context.Context, req models.OracleRequest) models.OracleResult {
	req, early := prepare(req)
	if early != nil {
		return *early
	}
	preset := models.PresetFor(req.Strategy)

	var d models.Decision
	if req.Mode == models.ModeExit {
		d = r.exit(req.Market[0], preset)
	} else {
		d = r.entry(req.Market, preset)
	}
	logger.Debug("[ORACLE] rules %s -> %s %s (%s)", req.Mode, d.Action, d.Symbol, d.Reasoning)
	return models.DecisionResult(d)
}

func (r *Rules) exit(m models.MarketSnapshot, preset models.Preset) models.Decision {
	lo, _ := bounds(m.History)
	switch {
	case m.Price < lo:
		return models.Decision{Symbol: m.Symbol, Action: models.ActionSell, Reasoning: "Price broke below range low"}
	case dropPct(m) > preset.DropLimitPct:
		return models.Decision{Symbol: m.Symbol, Action: models.ActionSell, Reasoning: "Falling knife, cut it"}
	}
	return models.Decision{Symbol: m.Symbol, Action: models.ActionHold, Reasoning: "Structure intact"}
}

// entry: из всех higher low берём самый сильный по отскоку от минимума.
func (r *Rules) entry(market []models.MarketSnapshot, preset models.Preset) models.Decision {
	var (
		best     *models.MarketSnapshot
		bestLow  float64
		bestEdge float64
	)
	for i := range market {
		m := market[i]
		if dropPct(m) > preset.DropLimitPct {
			continue
		}
		low, ok := higherLow(m)
		if !ok {
			continue
		}
		edge := (m.Price - low) / low
		if best == nil || edge > bestEdge {
			best, bestLow, bestEdge = &market[i], low, edge
		}
	}

	if best == nil {
		return models.Decision{Symbol: market[0].Symbol, Action: models.ActionHold, Reasoning: "No clean higher low"}
	}

	sl := bestLow
	tp := best.Price + r.RewardRatio*(best.Price-sl)
	return models.Decision{
		Symbol:     best.Symbol,
		Action:     models.ActionBuy,
		Reasoning:  fmt.Sprintf("Higher low at %.4f", bestLow),
		StopLoss:   &sl,
		TakeProfit: &tp,
	}
}

// higherLow: минимум второй половины истории выше минимума первой,
// и цена выше этого минимума. Возвращает последний минимум.
func higherLow(m models.MarketSnapshot) (float64, bool) {
	h := m.History
	if len(h) < 4 {
		return 0, false
	}
	mid := len(h) / 2
	lo1, _ := bounds(h[:mid])
	lo2, _ := bounds(h[mid:])
	if lo2 > lo1 && m.Price > lo2 {
		return lo2, true
	}
	return 0, false
}

// dropPct: падение в процентах от максимума истории до текущей цены.
func dropPct(m models.MarketSnapshot) float64 {
	_, hi := bounds(m.History)
	if hi <= 0 || m.Price >= hi {
		return 0
	}
	return (hi - m.Price) / hi * 100
}

func bounds(h []float64) (lo, hi float64) {
	for i, p := range h {
		if i == 0 || p < lo {
			lo = p
		}
		if i == 0 || p > hi {
			hi = p
		}
	}
	return lo, hi
}
