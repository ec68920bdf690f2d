package models

import (
	"time"

	"github.com/google/uuid"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Cause: почему случилась сделка.
type Cause string

const (
	CauseMarket     Cause = "market"
	CauseStopLoss   Cause = "stop_loss"
	CauseTakeProfit Cause = "take_profit"
	CauseAutoEntry  Cause = "auto_entry"
	CauseAutoExit   Cause = "auto_exit"
	CausePanicSell  Cause = "panic_sell"
)

// TradeRecord: неизменяемая запись журнала сделок.
type TradeRecord struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"` // в валюте актива
	Timestamp time.Time `json:"timestamp"`
	Cause     Cause     `json:"cause"`

	// только для продаж
	RealizedPnLUSD float64 `json:"realizedPnlUSD,omitempty"`
}

// Order: заявка в исполнитель.
//
// Если BalanceFraction > 0, количество считается под локом
// из текущего баланса: amount = balance*fraction / priceUSD.
type Order struct {
	Symbol          string
	Side            Side
	Amount          float64
	BalanceFraction float64
	Price           float64
	StopLoss        *float64
	TakeProfit      *float64
	Trailing        bool
	Cause           Cause

	// SellAll: продать всё что есть на момент исполнения.
	SellAll bool
	// PositionID: продавать только если позиция всё ещё та же.
	PositionID uuid.UUID
}
