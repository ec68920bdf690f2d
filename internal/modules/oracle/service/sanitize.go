package service

import (
	"math"

	"paper_trader/internal/models"
)

const (
	// HistoryPoints: сколько последних точек истории видит оракул.
	HistoryPoints = 15

	MarketSymbol = "MARKET"
	SystemSymbol = "SYSTEM"
)

// Sanitize выкидывает символы без цены или без истории, историю режет до 15 точек.
// Исходный слайс не меняется.
func Sanitize(market []models.MarketSnapshot) []models.MarketSnapshot {
	out := make([]models.MarketSnapshot, 0, len(market))
	for _, m := range market {
		if !finitePositive(m.Price) {
			continue
		}
		h := make([]float64, 0, len(m.History))
		for _, p := range m.History {
			if finitePositive(p) {
				h = append(h, p)
			}
		}
		if len(h) == 0 {
			continue
		}
		if len(h) > HistoryPoints {
			h = h[len(h)-HistoryPoints:]
		}
		change := m.Change
		if math.IsNaN(change) || math.IsInf(change, 0) {
			change = 0
		}
		out = append(out, models.MarketSnapshot{
			Symbol:  m.Symbol,
			Price:   m.Price,
			Change:  change,
			History: h,
		})
	}
	return out
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// prepare: общая часть для всех оракулов: чистим данные,
// на пустом рынке сразу отдаём hold MARKET.
func prepare(req models.OracleRequest) (models.OracleRequest, *models.OracleResult) {
	req.Market = Sanitize(req.Market)
	if len(req.Market) == 0 {
		res := holdWith(MarketSymbol, "No valid price data available to scan.", models.ErrOracleUnavailable)
		return req, &res
	}
	return req, nil
}

func holdWith(symbol, reasoning string, err error) models.OracleResult {
	res := models.UnavailableResult(err)
	res.Decision.Symbol = symbol
	res.Decision.Reasoning = reasoning
	return res
}
