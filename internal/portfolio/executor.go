package portfolio

import (
	"fmt"
	"math"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
	"paper_trader/pkg/logger"

	"github.com/google/uuid"
)

// View: чтение состояния изнутри лока (для Guard).
type View interface {
	Held(symbol string) (models.Position, bool)
	Open() int
	Balance() float64
}

// Guard вызывается под локом движка перед мутацией.
// Ошибка отменяет заявку без изменений состояния.
type Guard func(v View) error

type lockedView struct{ e *Engine }

func (v lockedView) Held(symbol string) (models.Position, bool) { return v.e.ledger.Get(symbol) }
func (v lockedView) Open() int                                  { return v.e.ledger.Len() }
func (v lockedView) Balance() float64                           { return v.e.balance }

// Buy: покупка по цене в валюте актива.
func (e *Engine) Buy(
	symbol string,
	amount, price float64,
	sl, tp *float64,
	trailing bool,
	cause models.Cause,
) (models.TradeRecord, error) {
	rec, _, err := e.Apply(models.Order{
		Symbol:     symbol,
		Side:       models.SideBuy,
		Amount:     amount,
		Price:      price,
		StopLoss:   sl,
		TakeProfit: tp,
		Trailing:   trailing,
		Cause:      cause,
	})
	return rec, err
}

// Sell: продажа. Если позиции нет, ничего не делает (filled=false).
func (e *Engine) Sell(symbol string, amount, price float64, cause models.Cause) (models.TradeRecord, bool, error) {
	return e.Apply(models.Order{
		Symbol: symbol,
		Side:   models.SideSell,
		Amount: amount,
		Price:  price,
		Cause:  cause,
	})
}

func (e *Engine) Apply(o models.Order) (models.TradeRecord, bool, error) {
	return e.ApplyIf(o, nil)
}

// ApplyIf исполняет заявку атомарно: guard, баланс, позиция, история, статистика.
func (e *Engine) ApplyIf(o models.Order, guard Guard) (rec models.TradeRecord, filled bool, err error) {
	var evs events

	e.mu.Lock()
	if guard != nil {
		if err = guard(lockedView{e}); err != nil {
			e.mu.Unlock()
			return models.TradeRecord{}, false, err
		}
	}
	switch o.Side {
	case models.SideBuy:
		rec, err = e.buyLocked(o, &evs)
		filled = err == nil
	case models.SideSell:
		rec, filled, err = e.sellLocked(o, &evs)
	default:
		err = fmt.Errorf("%w: unknown side %q", models.ErrInvalidOrder, o.Side)
	}
	e.mu.Unlock()

	e.flush(evs)
	return rec, filled, err
}

func (e *Engine) buyLocked(o models.Order, evs *events) (models.TradeRecord, error) {
	if o.Symbol == "" || !(o.Price > 0) || math.IsInf(o.Price, 0) {
		return models.TradeRecord{}, fmt.Errorf("%w: buy %q at %v", models.ErrInvalidOrder, o.Symbol, o.Price)
	}

	priceUSD := e.conv.ToUSD(o.Price, o.Symbol)
	amount := o.Amount
	if o.BalanceFraction > 0 {
		amount = e.balance * o.BalanceFraction / priceUSD
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return models.TradeRecord{}, fmt.Errorf("%w: buy %s amount %v", models.ErrInvalidOrder, o.Symbol, amount)
	}

	// 1) деньги
	cost := amount * priceUSD
	if cost > e.balance {
		return models.TradeRecord{}, fmt.Errorf("%w: need %s, have %s",
			models.ErrInsufficientFunds,
			currency.Format(cost, currency.USD),
			currency.Format(e.balance, currency.USD),
		)
	}
	e.balance -= cost

	// 2) позиция
	now := e.now()
	pos, opened := e.ledger.ApplyBuy(o.Symbol, amount, o.Price, o.StopLoss, o.TakeProfit, o.Trailing, now)

	// 3) история
	rec := models.TradeRecord{
		ID:        uuid.New(),
		Symbol:    o.Symbol,
		Side:      models.SideBuy,
		Amount:    amount,
		Price:     o.Price,
		Timestamp: now,
		Cause:     o.Cause,
	}
	e.history = append(e.history, rec)

	logger.Info("[ENGINE] 🟢 BUY %s amount=%.6f @ %.4f (%s) cause=%s",
		o.Symbol, amount, o.Price, currency.Format(cost, currency.USD), o.Cause)

	if opened {
		evs.add(models.Event{
			Kind: models.EventPositionOpened, At: now, Symbol: o.Symbol, Position: &pos,
			Severity: models.SeveritySuccess,
			Message:  fmt.Sprintf("Opened %s: %.6f @ %.4f", o.Symbol, amount, o.Price),
		})
	}
	evs.add(models.Event{
		Kind: models.EventTradeFilled, At: now, Symbol: o.Symbol, Trade: &rec,
		Severity: models.SeverityInfo, Covered: opened,
		Message:  fmt.Sprintf("BUY %s %.6f @ %.4f (%s)", o.Symbol, amount, o.Price, o.Cause),
	})
	return rec, nil
}

func (e *Engine) sellLocked(o models.Order, evs *events) (models.TradeRecord, bool, error) {
	pos, ok := e.ledger.Get(o.Symbol)
	if !ok {
		return models.TradeRecord{}, false, nil
	}
	if o.PositionID != uuid.Nil && o.PositionID != pos.ID {
		return models.TradeRecord{}, false, fmt.Errorf("%w: %s", models.ErrPositionChanged, o.Symbol)
	}
	if !(o.Price > 0) || math.IsInf(o.Price, 0) {
		return models.TradeRecord{}, false, fmt.Errorf("%w: sell %s at %v", models.ErrInvalidOrder, o.Symbol, o.Price)
	}

	amount := o.Amount
	if o.SellAll {
		amount = pos.Amount
	}
	if !(amount > 0) {
		return models.TradeRecord{}, false, fmt.Errorf("%w: sell %s amount %v", models.ErrInvalidOrder, o.Symbol, amount)
	}
	// больше чем есть не продаём
	amount = math.Min(amount, pos.Amount)

	rec := e.realizeLocked(pos, amount, o.Price, o.Cause, evs)
	e.balance += rec.proceeds
	return rec.TradeRecord, true, nil
}

type realized struct {
	models.TradeRecord
	proceeds float64
}

// realizeLocked: всё кроме зачисления денег: позиция, история, статистика, события.
func (e *Engine) realizeLocked(pos models.Position, amount, price float64, cause models.Cause, evs *events) realized {
	proceeds := amount * e.conv.ToUSD(price, pos.Symbol)
	basis := amount * e.conv.ToUSD(pos.AvgPrice, pos.Symbol)
	pnl := proceeds - basis

	_, closed, _ := e.ledger.ApplySell(pos.Symbol, amount, price)
	e.stats = ApplyRealized(e.stats, pnl)

	now := e.now()
	rec := models.TradeRecord{
		ID:             uuid.New(),
		Symbol:         pos.Symbol,
		Side:           models.SideSell,
		Amount:         amount,
		Price:          price,
		Timestamp:      now,
		Cause:          cause,
		RealizedPnLUSD: pnl,
	}
	e.history = append(e.history, rec)

	logger.Info("[ENGINE] 🔴 SELL %s amount=%.6f @ %.4f pnl=%s cause=%s",
		pos.Symbol, amount, price, currency.Format(pnl, currency.USD), cause)

	sev := models.SeveritySuccess
	if pnl <= 0 {
		sev = models.SeverityWarning
	}
	evs.add(models.Event{
		Kind: models.EventTradeFilled, At: now, Symbol: pos.Symbol, Trade: &rec,
		Severity: models.SeverityInfo, Covered: closed,
		Message:  fmt.Sprintf("SELL %s %.6f @ %.4f (%s)", pos.Symbol, amount, price, cause),
	})
	if closed {
		evs.add(models.Event{
			Kind: models.EventPositionClosed, At: now, Symbol: pos.Symbol, Trade: &rec,
			Severity: sev,
			Message:  fmt.Sprintf("Closed %s, PnL %s", pos.Symbol, currency.Format(pnl, currency.USD)),
		})
	}

	return realized{TradeRecord: rec, proceeds: proceeds}
}

// PanicLiquidateAll выключает бота и продаёт всё по лучшей известной цене
// (последняя котировка, иначе средняя цена входа). Баланс зачисляется одним апдейтом.
func (e *Engine) PanicLiquidateAll() []models.TradeRecord {
	logger.Error("[ENGINE] 🚨 PANIC SELL INITIATED")

	e.botMu.RLock()
	bot := e.bot
	e.botMu.RUnlock()
	if bot != nil {
		bot.Disable("panic")
	}

	var evs events
	e.mu.Lock()
	var (
		total float64
		recs  []models.TradeRecord
	)
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Get(sym)
		price := pos.AvgPrice
		if q, ok := e.quotes[sym]; ok && q.Price > 0 {
			price = q.Price
		}
		r := e.realizeLocked(pos, pos.Amount, price, models.CausePanicSell, &evs)
		total += r.proceeds
		recs = append(recs, r.TradeRecord)
	}
	e.balance += total
	e.mu.Unlock()

	e.flush(evs)
	logger.Info("[ENGINE] panic liquidation done: %d positions, proceeds=%s",
		len(recs), currency.Format(total, currency.USD))
	return recs
}
