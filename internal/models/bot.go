package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyAggressive   Strategy = "aggressive"
	StrategyDegen        Strategy = "degen"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyConservative, StrategyAggressive, StrategyDegen:
		return true
	}
	return false
}

// BotConfig: настройки авто-бота. Читаются на каждом тике планировщика.
type BotConfig struct {
	Enabled           bool     `mapstructure:"enabled" json:"enabled"`
	RiskPerTrade      float64  `mapstructure:"risk_per_trade" json:"riskPerTrade"`
	IntervalSeconds   int      `mapstructure:"interval_seconds" json:"intervalSeconds"`
	MaxOpenPositions  int      `mapstructure:"max_open_positions" json:"maxOpenPositions"`
	Strategy          Strategy `mapstructure:"strategy" json:"strategy"`
	UseTrailingStop   bool     `mapstructure:"use_trailing_stop" json:"useTrailingStop"`
	AllowedSymbols    []string `mapstructure:"allowed_symbols" json:"allowedSymbols"`
	DailyProfitTarget float64  `mapstructure:"daily_profit_target" json:"dailyProfitTarget"`
}

func DefaultBotConfig() BotConfig {
	return BotConfig{
		Enabled:           false,
		RiskPerTrade:      1,
		IntervalSeconds:   30,
		MaxOpenPositions:  3,
		Strategy:          StrategyConservative,
		UseTrailingStop:   true,
		AllowedSymbols:    []string{},
		DailyProfitTarget: 5000,
	}
}

// Validate проверяет диапазоны. DailyProfitTarget == 0 значит "без цели".
func (c BotConfig) Validate() error {
	switch {
	case c.IntervalSeconds < 1:
		return fmt.Errorf("%w: intervalSeconds must be >= 1, got %d", ErrInvalidConfig, c.IntervalSeconds)
	case c.MaxOpenPositions < 1:
		return fmt.Errorf("%w: maxOpenPositions must be >= 1, got %d", ErrInvalidConfig, c.MaxOpenPositions)
	case math.IsNaN(c.RiskPerTrade) || c.RiskPerTrade <= 0 || c.RiskPerTrade > 100:
		return fmt.Errorf("%w: riskPerTrade must be in (0, 100], got %v", ErrInvalidConfig, c.RiskPerTrade)
	case !c.Strategy.Valid():
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	case math.IsNaN(c.DailyProfitTarget) || math.IsInf(c.DailyProfitTarget, 0) || c.DailyProfitTarget < 0:
		return fmt.Errorf("%w: dailyProfitTarget must be >= 0, got %v", ErrInvalidConfig, c.DailyProfitTarget)
	}
	for _, s := range c.AllowedSymbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty symbol in allowedSymbols", ErrInvalidConfig)
		}
	}
	return nil
}

// Clone: копия со своим слайсом символов.
func (c BotConfig) Clone() BotConfig {
	c.AllowedSymbols = append([]string(nil), c.AllowedSymbols...)
	return c
}

type BotState string

const (
	BotDisabled BotState = "disabled"
	BotIdle     BotState = "idle"
	BotScanning BotState = "scanning"
)

// BotStats: накопленная статистика реализованного PnL.
type BotStats struct {
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	TotalProfitUSD float64   `json:"totalProfitUSD"`
	GrossProfit    float64   `json:"grossProfit"`
	GrossLoss      float64   `json:"grossLoss"`
	PeakPnL        float64   `json:"peakPnL"`
	MaxDrawdown    float64   `json:"maxDrawdown"`
	StartedAt      time.Time `json:"startedAt"`
}

// Performance: производные метрики от BotStats.
type Performance struct {
	TotalTrades  int     `json:"totalTrades"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor float64 `json:"-"`
	// ProfitFactorText: "∞" при нулевом grossLoss.
	ProfitFactorText string `json:"profitFactor"`
}

// Snapshot: согласованная копия состояния портфеля.
type Snapshot struct {
	BalanceUSD  float64     `json:"balanceUSD"`
	EquityUSD   float64     `json:"equityUSD"`
	Positions   []Position  `json:"positions"`
	Stats       BotStats    `json:"stats"`
	Performance Performance `json:"performance"`
	TradeCount  int         `json:"tradeCount"`
	At          time.Time   `json:"at"`
}
