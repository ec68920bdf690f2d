package service

import (
	"fmt"

	"paper_trader/internal/models"

	"github.com/bytedance/sonic"
)

func goalFor(mode models.OracleMode) string {
	if mode == models.ModeExit {
		return "Analyze if the current asset should be SOLD immediately due to market structure breakdown."
	}
	return "Identify the single best BUY opportunity."
}

// BuildPrompt: промпт для LLM. Market уже должен быть очищен Sanitize.
func BuildPrompt(req models.OracleRequest) (string, error) {
	data, err := sonic.MarshalString(req.Market)
	if err != nil {
		return "", err
	}
	preset := models.PresetFor(req.Strategy)

	return fmt.Sprintf(`Role: Crisis Fund Manager.
Task: %s
Risk profile: %s

Data: %s ('p' = price, 'c' = change %%, 'h' = last %d ticks)

RULES:
1. If prices in 'h' drop more than %.0f%% this is a FALLING KNIFE. Action: sell or hold. NEVER BUY.
2. Only BUY on a clear Higher Low structure in 'h'. Avoid buying tops.
3. If price 'p' is below the lowest point of 'h', SELL.
4. Select ONE symbol from Data.
5. Action is one of "buy", "sell", "hold".
6. Suggest stop loss (sl) and take profit (tp) as prices.

Return ONLY a raw JSON object, no markdown:
{"symbol": "AAPL", "action": "buy", "reasoning": "Higher low formed", "sl": 150.20, "tp": 165.00}
Reasoning must be short (max 10 words) without quotes.`,
		goalFor(req.Mode), preset.Tone, data, HistoryPoints, preset.DropLimitPct), nil
}
