package service

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

const (
	defaultBasePrice = 100.0
	syntheticPoints  = 30
	// syntheticJitter: ±0.5% вокруг базовой цены
	syntheticJitter = 0.01
)

// MockPrices: базовые цены для синтетики, когда живого источника нет.
var MockPrices = map[string]float64{
	"AAPL":            175.50,
	"TSLA":            240.00,
	"NVDA":            850.00,
	"BINANCE:BTCUSDT": 65000,
	"BINANCE:ETHUSDT": 3500,
	"RELIANCE.NS":     2900,
	"TCS.NS":          4000,
	"HDFCBANK.NS":     1500,
	"NIFTYBEES.NS":    240,
	"TATAMOTORS.NS":   980,
}

// Fallback никогда не отдаёт ошибку: при сбое источника берёт последнюю
// известную котировку, а без неё синтетику вокруг базовой цены.
type Fallback struct {
	next Source
	now  func() time.Time
	rnd  func() float64

	mu   sync.RWMutex
	last map[string]models.Quote
}

func NewFallback(next Source) *Fallback {
	return &Fallback{
		next: next,
		now:  time.Now,
		rnd:  rand.Float64,
		last: make(map[string]models.Quote),
	}
}

func (f *Fallback) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if f.next != nil {
		q, err := f.next.Quote(ctx, symbol)
		if err == nil && q.Price > 0 {
			f.Remember(q)
			return q, nil
		}
		if err != nil {
			logger.Debug("[FEED] %s: %v, falling back", symbol, err)
		}
	}

	f.mu.RLock()
	q, ok := f.last[symbol]
	f.mu.RUnlock()
	if ok {
		return q, nil
	}

	return f.synthetic(symbol), nil
}

// Remember: свежая цена со стрима тоже годится как "последняя известная".
func (f *Fallback) Remember(q models.Quote) {
	if q.Price <= 0 {
		return
	}
	f.mu.Lock()
	f.last[q.Symbol] = q
	f.mu.Unlock()
}

func (f *Fallback) History(ctx context.Context, symbol string) ([]float64, error) {
	if f.next != nil {
		h, err := f.next.History(ctx, symbol)
		if err == nil && len(h) > 0 {
			return h, nil
		}
	}

	// случайное блуждание от базы, шаг ±0.5%
	price := f.base(symbol)
	out := make([]float64, syntheticPoints)
	for i := range out {
		price *= 1 + (f.rnd()-0.5)*syntheticJitter
		out[i] = math.Round(price*100) / 100
	}
	return out, nil
}

func (f *Fallback) synthetic(symbol string) models.Quote {
	base := f.base(symbol)
	return models.Quote{
		Symbol:        symbol,
		Price:         base * (1 + (f.rnd()-0.5)*syntheticJitter),
		Change:        (f.rnd() - 0.5) * 5,
		ChangePercent: (f.rnd() - 0.5) * 2,
		At:            f.now(),
		Synthetic:     true,
	}
}

func (f *Fallback) base(symbol string) float64 {
	f.mu.RLock()
	q, ok := f.last[symbol]
	f.mu.RUnlock()
	if ok {
		return q.Price
	}
	if p, ok := MockPrices[symbol]; ok {
		return p
	}
	return defaultBasePrice
}
