package service

import (
	"context"
	"strings"

	"paper_trader/internal/models"
)

// Source: откуда берём котировки и историю одного символа.
type Source interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	History(ctx context.Context, symbol string) ([]float64, error)
}

const binancePrefix = "BINANCE:"

// IsBinance: крипта идёт с префиксом биржи, как в Finnhub.
func IsBinance(symbol string) bool {
	return strings.HasPrefix(strings.ToUpper(symbol), binancePrefix)
}

// BinancePair: BINANCE:BTCUSDT -> BTCUSDT
func BinancePair(symbol string) string {
	if !IsBinance(symbol) {
		return strings.ToUpper(symbol)
	}
	return strings.ToUpper(symbol[len(binancePrefix):])
}

// Router отправляет BINANCE:* в crypto, остальное в stocks.
// Nil-источник значит "нет такого", Fallback это переживёт.
type Router struct {
	stocks Source
	crypto Source
}

func NewRouter(stocks, crypto Source) *Router {
	return &Router{stocks: stocks, crypto: crypto}
}

func (r *Router) pick(symbol string) (Source, error) {
	src := r.stocks
	if IsBinance(symbol) && r.crypto != nil {
		src = r.crypto
	}
	if src == nil {
		return nil, errNoSource
	}
	return src, nil
}

func (r *Router) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	src, err := r.pick(symbol)
	if err != nil {
		return models.Quote{}, err
	}
	return src.Quote(ctx, symbol)
}

func (r *Router) History(ctx context.Context, symbol string) ([]float64, error) {
	src, err := r.pick(symbol)
	if err != nil {
		return nil, err
	}
	return src.History(ctx, symbol)
}
