package service

import (
	"fmt"
	"strings"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
)

const helpText = "Привет! Я бумажный торговый бот: деньги ненастоящие, котировки живые.\n\n" +
	"/status — баланс и статистика\n" +
	"/positions — открытые позиции\n" +
	"/history — последние сделки\n" +
	"/logs — лог активности\n" +
	"/buy SYMBOL AMOUNT [sl=цена] [tp=цена]\n" +
	"/sell SYMBOL [AMOUNT|all]\n" +
	"/scan [бюджет USD] — совет оракула и покупка с подтверждением\n" +
	"/analyze [SYMBOL] — обзор символа или всего портфеля\n" +
	"/bot_on, /bot_off — автоторговля\n" +
	"/set key=value — настройки бота\n" +
	"/panic — продать всё"

var strategyOrder = []models.Strategy{
	models.StrategyConservative,
	models.StrategyAggressive,
	models.StrategyDegen,
}

var botStateText = map[models.BotState]string{
	models.BotDisabled: "⏹ выключен",
	models.BotIdle:     "💤 ждёт тика",
	models.BotScanning: "🔎 сканирует",
}

func usd(v float64) string { return currency.Format(v, currency.USD) }

func formatStatus(s models.Snapshot, state models.BotState, cfg models.BotConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Портфель\n\n")
	fmt.Fprintf(&b, "Баланс: %s\n", usd(s.BalanceUSD))
	fmt.Fprintf(&b, "Капитал: %s\n", usd(s.EquityUSD))
	fmt.Fprintf(&b, "Позиций: %d, сделок: %d\n\n", len(s.Positions), s.TradeCount)

	fmt.Fprintf(&b, "PnL: %s (пик %s, просадка %s)\n",
		usd(s.Stats.TotalProfitUSD), usd(s.Stats.PeakPnL), usd(s.Stats.MaxDrawdown))
	fmt.Fprintf(&b, "Win rate: %.1f%% (%d/%d), PF: %s\n\n",
		s.Performance.WinRate, s.Stats.Wins, s.Performance.TotalTrades, s.Performance.ProfitFactorText)

	fmt.Fprintf(&b, "🤖 Бот: %s, стратегия %s", botStateText[state], models.PresetFor(cfg.Strategy).Name)
	if cfg.DailyProfitTarget > 0 {
		fmt.Fprintf(&b, "\nЦель дня: %s", usd(cfg.DailyProfitTarget))
	}
	return b.String()
}

func formatPositions(positions []models.Position, quote func(string) (models.Quote, bool)) string {
	if len(positions) == 0 {
		return "📭 Открытых позиций нет"
	}

	var b strings.Builder
	b.WriteString("💼 Открытые позиции:\n")
	for _, p := range positions {
		code := currency.AssetCurrency(p.Symbol)
		fmt.Fprintf(&b, "\n%s × %.4f @ %s", p.Symbol, p.Amount, currency.Format(p.AvgPrice, code))
		if q, ok := quote(p.Symbol); ok {
			fmt.Fprintf(&b, " → %s", currency.Format(q.Price, code))
		}
		fmt.Fprintf(&b, "\n  стоимость %s, PnL %s (%.2f%%)", usd(p.CurrentValueUSD), usd(p.PnLUSD), p.PnLPercent)
		if p.StopLoss != nil {
			trail := ""
			if p.IsTrailing {
				trail = " 🧲"
			}
			fmt.Fprintf(&b, "\n  SL %s%s", currency.Format(*p.StopLoss, code), trail)
		}
		if p.TakeProfit != nil {
			fmt.Fprintf(&b, "\n  TP %s", currency.Format(*p.TakeProfit, code))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var causeText = map[models.Cause]string{
	models.CauseMarket:     "вручную",
	models.CauseStopLoss:   "стоп",
	models.CauseTakeProfit: "тейк",
	models.CauseAutoEntry:  "бот",
	models.CauseAutoExit:   "бот",
	models.CausePanicSell:  "паника",
}

func formatTrade(r models.TradeRecord) string {
	side := "BUY"
	if r.Side == models.SideSell {
		side = "SELL"
	}
	s := fmt.Sprintf("%s %s × %.4f @ %s (%s)",
		side, r.Symbol, r.Amount,
		currency.Format(r.Price, currency.AssetCurrency(r.Symbol)), causeText[r.Cause])
	if r.Side == models.SideSell {
		s += " PnL " + usd(r.RealizedPnLUSD)
	}
	return s
}

// formatHistory: последние limit сделок, свежие сверху.
func formatHistory(recs []models.TradeRecord, limit int) string {
	if len(recs) == 0 {
		return "📭 Сделок ещё не было"
	}
	var b strings.Builder
	for i := len(recs) - 1; i >= 0 && len(recs)-i <= limit; i-- {
		r := recs[i]
		fmt.Fprintf(&b, "%s %s\n", r.Timestamp.Format("15:04:05"), formatTrade(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

var severityEmoji = map[models.Severity]string{
	models.SeverityInfo:    "ℹ️",
	models.SeveritySuccess: "✅",
	models.SeverityWarning: "⚠️",
	models.SeverityError:   "❗️",
}

// formatLogs: entries уже отсортированы новыми вперёд.
func formatLogs(entries []models.LogEntry, limit int) string {
	if len(entries) == 0 {
		return "📭 Лог пуст"
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s ", e.At.Format("15:04:05"), severityEmoji[e.Severity])
		if e.Symbol != "" {
			fmt.Fprintf(&b, "[%s] ", e.Symbol)
		}
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBotConfig(c models.BotConfig) string {
	symbols := "все"
	if len(c.AllowedSymbols) > 0 {
		symbols = strings.Join(c.AllowedSymbols, ", ")
	}
	target := "нет"
	if c.DailyProfitTarget > 0 {
		target = usd(c.DailyProfitTarget)
	}
	return fmt.Sprintf(
		"*⚙️ Бот*\n\n"+
			"Включен: *%s*\n"+
			"Стратегия: %s\n"+
			"Интервал: `%ds`\n"+
			"Макс. позиций: `%d`\n"+
			"Риск: `%.2f%%`\n"+
			"Трейлинг: *%s*\n"+
			"Цель дня: `%s`\n"+
			"Символы: `%s`\n",
		onOff(c.Enabled),
		models.PresetFor(c.Strategy).Name,
		c.IntervalSeconds,
		c.MaxOpenPositions,
		c.RiskPerTrade,
		onOff(c.UseTrailingStop),
		target,
		symbols,
	)
}

func formatDecision(res models.OracleResult) string {
	d := res.Decision
	if res.Kind != models.ResultDecision {
		return fmt.Sprintf("⚠️ Оракул: %s\n%s", res.Kind, d.Reasoning)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧠 %s %s\n", strings.ToUpper(string(d.Action)), d.Symbol)
	if d.Reasoning != "" {
		b.WriteString(d.Reasoning)
		b.WriteByte('\n')
	}
	code := currency.AssetCurrency(d.Symbol)
	if d.StopLoss != nil {
		fmt.Fprintf(&b, "SL %s\n", currency.Format(*d.StopLoss, code))
	}
	if d.TakeProfit != nil {
		fmt.Fprintf(&b, "TP %s\n", currency.Format(*d.TakeProfit, code))
	}
	return strings.TrimRight(b.String(), "\n")
}
