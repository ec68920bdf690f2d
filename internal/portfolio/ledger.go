package portfolio

import (
	"math"
	"sort"
	"time"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"

	"github.com/google/uuid"
)

// Ledger: открытые позиции по символам. Не потокобезопасен, владелец Engine.
type Ledger struct {
	conv      *currency.Converter
	positions map[string]*models.Position
}

func NewLedger(conv *currency.Converter) *Ledger {
	return &Ledger{
		conv:      conv,
		positions: make(map[string]*models.Position),
	}
}

// ApplyBuy открывает позицию или доливает в неё по средневзвешенной цене.
// SL/TP меняются только если переданы, трейлинг не снимается.
func (l *Ledger) ApplyBuy(
	symbol string,
	amount, price float64,
	sl, tp *float64,
	trailing bool,
	now time.Time,
) (pos models.Position, opened bool) {
	p, ok := l.positions[symbol]
	if !ok {
		p = &models.Position{
			ID:         uuid.New(),
			Symbol:     symbol,
			Amount:     amount,
			AvgPrice:   price,
			StopLoss:   copyPtr(sl),
			TakeProfit: copyPtr(tp),
			IsTrailing: trailing,
			OpenedAt:   now,
		}
		l.positions[symbol] = p
		l.value(p, price)
		return p.Clone(), true
	}

	total := p.Amount + amount
	p.AvgPrice = (p.Amount*p.AvgPrice + amount*price) / total
	p.Amount = total
	if sl != nil {
		p.StopLoss = copyPtr(sl)
	}
	if tp != nil {
		p.TakeProfit = copyPtr(tp)
	}
	p.IsTrailing = p.IsTrailing || trailing
	l.value(p, price)

	return p.Clone(), false
}

// ApplySell уменьшает позицию. Остаток <= DustAmount удаляет её.
// held=false если позиции не было.
func (l *Ledger) ApplySell(symbol string, amount, price float64) (rest models.Position, closed, held bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false, false
	}

	left := math.Max(0, p.Amount-amount)
	if left <= models.DustAmount {
		delete(l.positions, symbol)
		return models.Position{}, true, true
	}

	p.Amount = left
	l.value(p, price)
	return p.Clone(), false, true
}

// Revalue пересчитывает стоимость и PnL по свежим котировкам.
// Символы без котировки не трогаем.
func (l *Ledger) Revalue(quotes map[string]models.Quote) {
	for sym, p := range l.positions {
		q, ok := quotes[sym]
		if !ok || q.Price <= 0 {
			continue
		}
		l.value(p, q.Price)
	}
}

func (l *Ledger) value(p *models.Position, price float64) {
	cost := p.Amount * l.conv.ToUSD(p.AvgPrice, p.Symbol)
	p.CurrentValueUSD = p.Amount * l.conv.ToUSD(price, p.Symbol)
	p.PnLUSD = p.CurrentValueUSD - cost
	if cost > 0 {
		p.PnLPercent = p.PnLUSD / cost * 100
	} else {
		p.PnLPercent = 0
	}
}

// raiseStop двигает стоп только вверх.
func (l *Ledger) raiseStop(symbol string, candidate float64) bool {
	p, ok := l.positions[symbol]
	if !ok {
		return false
	}
	if p.StopLoss != nil && candidate <= *p.StopLoss {
		return false
	}
	p.StopLoss = &candidate
	return true
}

func (l *Ledger) Get(symbol string) (models.Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return p.Clone(), true
}

func (l *Ledger) Len() int { return len(l.positions) }

// Symbols: отсортированы, чтобы обход был детерминированным.
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) Positions() []models.Position {
	syms := l.Symbols()
	out := make([]models.Position, 0, len(syms))
	for _, s := range syms {
		out = append(out, l.positions[s].Clone())
	}
	return out
}

// costBasisUSD: сумма вложений по средней цене.
func (l *Ledger) costBasisUSD() float64 {
	var sum float64
	for _, p := range l.positions {
		sum += p.Amount * l.conv.ToUSD(p.AvgPrice, p.Symbol)
	}
	return sum
}

func (l *Ledger) marketValueUSD() float64 {
	var sum float64
	for _, p := range l.positions {
		sum += p.CurrentValueUSD
	}
	return sum
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
