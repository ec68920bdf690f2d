package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"paper_trader/internal/models"

	"github.com/adshao/go-binance/v2"
)

const (
	binanceInterval = "1m"
	binanceHistory  = 30
)

// Binance: публичные цены спота для BINANCE:* символов.
type Binance struct {
	client *binance.Client
	now    func() time.Time
}

func NewBinance(apiKey, secret string) *Binance {
	return &Binance{
		client: binance.NewClient(apiKey, secret),
		now:    time.Now,
	}
}

func (b *Binance) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(BinancePair(symbol)).Do(ctx)
	if err != nil {
		return models.Quote{}, fmt.Errorf("binance 24h %s: %w", symbol, err)
	}
	if len(stats) == 0 {
		return models.Quote{}, fmt.Errorf("binance: no price data for %s", symbol)
	}
	st := stats[0]

	price := parseFloat(st.LastPrice)
	if price <= 0 {
		return models.Quote{}, fmt.Errorf("binance: bad price %q for %s", st.LastPrice, symbol)
	}
	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        parseFloat(st.PriceChange),
		ChangePercent: parseFloat(st.PriceChangePercent),
		At:            b.now(),
	}, nil
}

func (b *Binance) History(ctx context.Context, symbol string) ([]float64, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(BinancePair(symbol)).
		Interval(binanceInterval).
		Limit(binanceHistory).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	out := make([]float64, 0, len(klines))
	for _, k := range klines {
		if c := parseFloat(k.Close); c > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
