package service

import (
	"context"
	"fmt"
	"strings"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
	"paper_trader/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const noPositions = "No open positions."

// AnalysisPrompt: свободный обзор одного символа, без JSON.
func AnalysisPrompt(m models.MarketSnapshot, strategy models.Strategy) string {
	h := m.History
	if len(h) > HistoryPoints {
		h = h[len(h)-HistoryPoints:]
	}
	trend := make([]string, 0, len(h))
	for _, p := range h {
		trend = append(trend, fmt.Sprintf("%.4f", p))
	}

	return fmt.Sprintf(`Role: Savage high-frequency trading assistant.
Task: Analyze market data for %s.
Risk profile: %s

Data:
- Current price: %.4f
- Last %d ticks: [%s]

Output:
1. Rating: STRONG BUY / BUY / HOLD / SELL / DUMP IT.
2. Short ruthless explanation based on the price array.
3. Sentiment score from 0 (fear) to 100 (greed).

Keep it under 100 words.`,
		m.Symbol, models.PresetFor(strategy).Tone, m.Price, len(h), strings.Join(trend, ", "))
}

// PortfolioPrompt: обзор всех открытых позиций.
func PortfolioPrompt(positions []models.Position, strategy models.Strategy) (string, error) {
	data, err := sonic.MarshalString(positions)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Role: Savage financial advisor.
Context: review of the current paper-trading positions.
Risk profile: %s
Positions: %s

Task:
1. Judge the PnL bluntly.
2. Point out correlated holdings and concentration risk.
3. Name one position to cut or one hedge, with the reason.

Keep it under 200 words.`, models.PresetFor(strategy).Tone, data), nil
}

func (c *LLM) AnalyzeMarket(ctx context.Context, m models.MarketSnapshot, strategy models.Strategy) (text string, err error) {
	span, ctx := tracing.StartSpan(ctx, "oracle.llm.analyze_market")
	defer func() { tracing.Finish(span, err) }()

	if c.cfg.APIKey == "" {
		return "", errors.Wrap(models.ErrOracleUnavailable, "missing api key")
	}
	if !finitePositive(m.Price) {
		return "", errors.Wrapf(models.ErrStaleQuote, "analyze %s", m.Symbol)
	}
	return c.complete(ctx, AnalysisPrompt(m, strategy))
}

func (c *LLM) AnalyzePortfolio(ctx context.Context, positions []models.Position, strategy models.Strategy) (text string, err error) {
	span, ctx := tracing.StartSpan(ctx, "oracle.llm.analyze_portfolio")
	defer func() { tracing.Finish(span, err) }()

	if len(positions) == 0 {
		return noPositions, nil
	}
	if c.cfg.APIKey == "" {
		return "", errors.Wrap(models.ErrOracleUnavailable, "missing api key")
	}
	prompt, err := PortfolioPrompt(positions, strategy)
	if err != nil {
		return "", errors.Wrap(err, "build portfolio prompt")
	}
	return c.complete(ctx, prompt)
}

// AnalyzeMarket: те же правила что и в Evaluate, но текстом.
func (r *Rules) AnalyzeMarket(_ context.Context, m models.MarketSnapshot, strategy models.Strategy) (string, error) {
	if !finitePositive(m.Price) {
		return "", errors.Wrapf(models.ErrStaleQuote, "analyze %s", m.Symbol)
	}
	if len(m.History) == 0 {
		return fmt.Sprintf("%s @ %.4f: HOLD. No history yet.", m.Symbol, m.Price), nil
	}

	preset := models.PresetFor(strategy)
	lo, hi := bounds(m.History)
	drop := dropPct(m)

	verdict, why := "HOLD", "No clean higher low"
	switch {
	case m.Price < lo:
		verdict, why = "SELL", fmt.Sprintf("Price broke below range low %.4f", lo)
	case drop > preset.DropLimitPct:
		verdict, why = "DUMP IT", "Falling knife"
	default:
		if low, ok := higherLow(m); ok {
			verdict, why = "BUY", fmt.Sprintf("Higher low at %.4f", low)
		}
	}
	return fmt.Sprintf("%s @ %.4f: %s. %s. Range %.4f..%.4f, %.1f%% off the high.",
		m.Symbol, m.Price, verdict, why, lo, hi, drop), nil
}

// AnalyzePortfolio: сводка PnL по позициям и худшая из них.
func (r *Rules) AnalyzePortfolio(_ context.Context, positions []models.Position, _ models.Strategy) (string, error) {
	if len(positions) == 0 {
		return noPositions, nil
	}

	var (
		b     strings.Builder
		total float64
		worst = positions[0]
	)
	for _, p := range positions {
		total += p.PnLUSD
		if p.PnLUSD < worst.PnLUSD {
			worst = p
		}
		fmt.Fprintf(&b, "%s: %s (%.2f%%)\n", p.Symbol, currency.Format(p.PnLUSD, currency.USD), p.PnLPercent)
	}
	fmt.Fprintf(&b, "Total PnL %s.", currency.Format(total, currency.USD))
	if worst.PnLUSD < 0 {
		fmt.Fprintf(&b, " Weakest: %s, consider cutting it.", worst.Symbol)
	}
	return b.String(), nil
}
