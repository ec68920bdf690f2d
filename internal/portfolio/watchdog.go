package portfolio

import (
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

// OnQuotes: обработка тика: запоминаем котировки, переоцениваем позиции
// и прогоняем сторож по каждой позиции со свежей ценой. Всё под одним локом.
// Возвращает принудительные продажи этого тика.
func (e *Engine) OnQuotes(fresh map[string]models.Quote) []models.TradeRecord {
	if len(fresh) == 0 {
		return nil
	}

	var (
		evs   events
		exits []models.TradeRecord
	)

	e.mu.Lock()
	for sym, q := range fresh {
		if q.Price > 0 {
			e.quotes[sym] = q
		}
	}
	e.ledger.Revalue(fresh)

	for _, sym := range e.ledger.Symbols() {
		q, ok := fresh[sym]
		if !ok || q.Price <= 0 {
			continue
		}
		if rec, hit := e.watchLocked(sym, q.Price, &evs); hit {
			exits = append(exits, rec)
		}
	}
	e.mu.Unlock()

	e.flush(evs)
	return exits
}

// watchLocked: максимум один выход на позицию за тик.
func (e *Engine) watchLocked(sym string, price float64, evs *events) (models.TradeRecord, bool) {
	pos, _ := e.ledger.Get(sym)

	// 1) трейлинг: стоп только вверх и только в плюсе
	if pos.IsTrailing && price > pos.AvgPrice {
		cand := price * (1 - e.trailFactor)
		if e.ledger.raiseStop(sym, cand) {
			logger.Debug("[WATCHDOG] 🛡 %s trailing SL -> %.4f", sym, cand)
			pos, _ = e.ledger.Get(sym)
		}
	}

	// 2) стоп имеет приоритет над тейком
	if pos.StopLoss != nil && price <= *pos.StopLoss {
		logger.Info("[WATCHDOG] ⛔️ %s stop-loss hit: %.4f <= %.4f", sym, price, *pos.StopLoss)
		rec := e.forceExitLocked(pos, price, models.CauseStopLoss, evs)
		evs.add(models.Event{
			Kind: models.EventStopTriggered, At: rec.Timestamp, Symbol: sym, Trade: &rec,
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("Stop Loss Hit: %s @ %.4f", sym, price),
		})
		return rec, true
	}

	// 3) тейк только без трейлинга
	if !pos.IsTrailing && pos.TakeProfit != nil && price >= *pos.TakeProfit {
		logger.Info("[WATCHDOG] 🎯 %s take-profit hit: %.4f >= %.4f", sym, price, *pos.TakeProfit)
		rec := e.forceExitLocked(pos, price, models.CauseTakeProfit, evs)
		evs.add(models.Event{
			Kind: models.EventTakeProfit, At: rec.Timestamp, Symbol: sym, Trade: &rec,
			Severity: models.SeveritySuccess,
			Message:  fmt.Sprintf("Take Profit Hit: %s @ %.4f", sym, price),
		})
		return rec, true
	}

	return models.TradeRecord{}, false
}

func (e *Engine) forceExitLocked(pos models.Position, price float64, cause models.Cause, evs *events) models.TradeRecord {
	r := e.realizeLocked(pos, pos.Amount, price, cause, evs)
	e.balance += r.proceeds
	return r.TradeRecord
}
