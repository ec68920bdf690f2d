package models

import (
	"time"

	"github.com/google/uuid"
)

// DustAmount: остаток ниже которого позиция считается закрытой.
const DustAmount = 1e-6

// Position: открытая позиция по одному символу. Цены в валюте актива.
type Position struct {
	ID         uuid.UUID `json:"id"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	AvgPrice   float64   `json:"avgPrice"`
	StopLoss   *float64  `json:"stopLoss,omitempty"`
	TakeProfit *float64  `json:"takeProfit,omitempty"`
	IsTrailing bool      `json:"isTrailing"`

	// пересчитываются на каждом свежем тике
	CurrentValueUSD float64 `json:"currentValueUSD"`
	PnLUSD          float64 `json:"pnlUSD"`
	PnLPercent      float64 `json:"pnlPercent"`

	OpenedAt time.Time `json:"openedAt"`
}

// Clone: глубокая копия, наружу отдаём только их.
func (p Position) Clone() Position {
	if p.StopLoss != nil {
		v := *p.StopLoss
		p.StopLoss = &v
	}
	if p.TakeProfit != nil {
		v := *p.TakeProfit
		p.TakeProfit = &v
	}
	return p
}

// Quote: последняя котировка символа в его родной валюте.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	At            time.Time `json:"at"`
	// Synthetic: котировка не от биржи, а из fallback.
	Synthetic bool `json:"synthetic,omitempty"`
}

func Float(v float64) *float64 { return &v }
