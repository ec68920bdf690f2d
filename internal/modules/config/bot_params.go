package config

import (
	"fmt"
	"math"
	"strings"

	"paper_trader/internal/models"

	"github.com/spf13/cast"
)

// ParseBotConfig накладывает строковые значения (из формы или команды /set)
// на base. Нечисловые значения и неизвестные ключи дают ErrInvalidConfig,
// base при этом не меняется.
func ParseBotConfig(raw map[string]string, base models.BotConfig) (models.BotConfig, error) {
	out := base.Clone()

	for key, val := range raw {
		val = strings.TrimSpace(val)
		var err error

		switch normKey(key) {
		case "enabled":
			out.Enabled, err = cast.ToBoolE(val)
		case "risk_per_trade":
			out.RiskPerTrade, err = toFinite(val)
		case "interval_seconds":
			out.IntervalSeconds, err = cast.ToIntE(val)
		case "max_open_positions":
			out.MaxOpenPositions, err = cast.ToIntE(val)
		case "strategy":
			out.Strategy = models.Strategy(strings.ToLower(val))
		case "use_trailing_stop":
			out.UseTrailingStop, err = cast.ToBoolE(val)
		case "allowed_symbols":
			out.AllowedSymbols = splitSymbols(val)
		case "daily_profit_target":
			out.DailyProfitTarget, err = toFinite(val)
		default:
			return base, fmt.Errorf("%w: unknown key %q", models.ErrInvalidConfig, key)
		}
		if err != nil {
			return base, fmt.Errorf("%w: %s=%q: %v", models.ErrInvalidConfig, key, val, err)
		}
	}

	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// normKey: riskPerTrade / risk-per-trade / risk_per_trade -> risk_per_trade
func normKey(k string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(k) {
		switch {
		case r == '-':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toFinite(v string) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

func splitSymbols(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
