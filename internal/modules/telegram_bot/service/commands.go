package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

const (
	defaultScanBudget = 1000.0
	listLimit         = 10
)

func (t *Telegram) handleStatus(chatID int64) {
	_, _ = t.SendTo(chatID, formatStatus(t.engine.Snapshot(), t.runner.State(), t.runner.Config()))
}

func (t *Telegram) handlePositions(chatID int64) {
	_, _ = t.SendTo(chatID, formatPositions(t.engine.Snapshot().Positions, t.engine.LastQuote))
}

func (t *Telegram) handleHistory(chatID int64) {
	_, _ = t.SendTo(chatID, formatHistory(t.engine.History(), listLimit))
}

func (t *Telegram) handleLogs(chatID int64) {
	_, _ = t.SendTo(chatID, formatLogs(t.log.Entries(), listLimit))
}

func (t *Telegram) handleBotOn(chatID int64) {
	if t.runner.State() != models.BotDisabled {
		_, _ = t.SendTo(chatID, "ℹ️ Бот уже запущен")
		return
	}
	t.runner.Enable()
	_, _ = t.SendTo(chatID, "✅ Бот запущен")
}

func (t *Telegram) handleBotOff(chatID int64) {
	if t.runner.State() == models.BotDisabled {
		_, _ = t.SendTo(chatID, "ℹ️ Бот и так остановлен")
		return
	}
	t.runner.Disable("stopped from telegram")
	_, _ = t.SendTo(chatID, "🛑 Бот остановлен")
}

// /set interval_seconds=15 strategy=degen
func (t *Telegram) handleSet(chatID int64, args string) {
	raw, err := parseKV(strings.Fields(args))
	if err != nil || len(raw) == 0 {
		_, _ = t.SendTo(chatID, "Формат: /set key=value [key=value ...]")
		return
	}
	t.applySettings(chatID, raw)
}

// /scan [budgetUSD]
func (t *Telegram) handleScan(ctx context.Context, chatID int64, args string) {
	budget := defaultScanBudget
	if s := strings.TrimSpace(args); s != "" {
		v, err := parseAmount(s)
		if err != nil {
			_, _ = t.SendTo(chatID, "Формат: /scan [бюджет в USD]")
			return
		}
		budget = v
	}

	_, _ = t.SendTo(chatID, "🔎 Сканирую рынок...")
	res, err := t.runner.AgentScan(ctx, budget)
	if err != nil {
		logger.Warn("[TELEGRAM] scan: %v", err)
		_, _ = t.SendTo(chatID, "⚠️ Скан не удался: "+err.Error())
		return
	}
	_, _ = t.SendTo(chatID, formatDecision(res))

	if res.Kind == models.ResultDecision && res.Decision.Action == models.ActionBuy {
		t.executeScan(ctx, chatID, res.Decision, budget)
	}
}

// executeScan: покупка по совету скана на весь бюджет, только после подтверждения.
func (t *Telegram) executeScan(ctx context.Context, chatID int64, d models.Decision, budget float64) {
	q, ok := t.engine.LastQuote(d.Symbol)
	if !ok || q.Price <= 0 {
		_, _ = t.SendTo(chatID, "❗️ Нет котировки для "+d.Symbol)
		return
	}
	amount := budget / t.engine.Converter().ToUSD(q.Price, d.Symbol)

	prompt := fmt.Sprintf("🤖 Купить %s: %.4f шт. по %s на %s?",
		d.Symbol, amount, currency.Format(q.Price, currency.AssetCurrency(d.Symbol)), usd(budget))
	if !t.Confirm(ctx, chatID, prompt, "✅ Купить", "❌ Отмена", t.confirmTimeout) {
		_, _ = t.SendTo(chatID, "Отменено")
		return
	}

	rec, err := t.engine.Buy(d.Symbol, amount, q.Price, d.StopLoss, d.TakeProfit, false, models.CauseMarket)
	if err != nil {
		_, _ = t.SendTo(chatID, tradeError(err))
		return
	}
	_, _ = t.SendTo(chatID, "🟢 "+formatTrade(rec))
}

// /analyze [SYMBOL]: без символа обзор портфеля
func (t *Telegram) handleAnalyze(ctx context.Context, chatID int64, args string) {
	var sym string
	if fields := strings.Fields(args); len(fields) > 0 {
		sym = strings.ToUpper(fields[0])
	}

	_, _ = t.SendTo(chatID, "🧠 Думаю...")
	text, err := t.runner.Analyze(ctx, sym)
	if err != nil {
		logger.Warn("[TELEGRAM] analyze %q: %v", sym, err)
		_, _ = t.SendTo(chatID, "⚠️ Анализ не удался: "+err.Error())
		return
	}

	title := "📈 Обзор портфеля"
	if sym != "" {
		title = "📈 " + sym
	}
	_, _ = t.SendTo(chatID, title+"\n\n"+text)
}

// /buy SYM AMOUNT [sl=PRICE] [tp=PRICE]
func (t *Telegram) handleBuy(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		_, _ = t.SendTo(chatID, "Формат: /buy SYMBOL AMOUNT [sl=цена] [tp=цена]")
		return
	}
	sym := strings.ToUpper(fields[0])
	amount, err := parseAmount(fields[1])
	if err != nil {
		_, _ = t.SendTo(chatID, "❗️ Количество должно быть числом > 0")
		return
	}
	levels, err := parseKV(fields[2:])
	if err != nil {
		_, _ = t.SendTo(chatID, "❗️ "+err.Error())
		return
	}
	sl, err := optionalPrice(levels, "sl")
	if err != nil {
		_, _ = t.SendTo(chatID, "❗️ "+err.Error())
		return
	}
	tp, err := optionalPrice(levels, "tp")
	if err != nil {
		_, _ = t.SendTo(chatID, "❗️ "+err.Error())
		return
	}

	q, ok := t.engine.LastQuote(sym)
	if !ok {
		_, _ = t.SendTo(chatID, "❗️ Нет котировки для "+sym)
		return
	}

	rec, err := t.engine.Buy(sym, amount, q.Price, sl, tp, false, models.CauseMarket)
	if err != nil {
		_, _ = t.SendTo(chatID, tradeError(err))
		return
	}
	_, _ = t.SendTo(chatID, "🟢 "+formatTrade(rec))
}

// /sell SYM [AMOUNT|all]
func (t *Telegram) handleSell(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		_, _ = t.SendTo(chatID, "Формат: /sell SYMBOL [AMOUNT|all]")
		return
	}
	sym := strings.ToUpper(fields[0])

	var amount float64
	if len(fields) > 1 && !strings.EqualFold(fields[1], "all") {
		v, err := parseAmount(fields[1])
		if err != nil {
			_, _ = t.SendTo(chatID, "❗️ Количество должно быть числом > 0")
			return
		}
		amount = v
	}

	q, ok := t.engine.LastQuote(sym)
	if !ok {
		_, _ = t.SendTo(chatID, "❗️ Нет котировки для "+sym)
		return
	}
	if amount == 0 {
		held := positionAmount(t.engine.Snapshot().Positions, sym)
		if held == 0 {
			_, _ = t.SendTo(chatID, "📭 Позиции по "+sym+" нет")
			return
		}
		amount = held
	}

	rec, filled, err := t.engine.Sell(sym, amount, q.Price, models.CauseMarket)
	switch {
	case err != nil:
		_, _ = t.SendTo(chatID, tradeError(err))
	case !filled:
		_, _ = t.SendTo(chatID, "📭 Позиции по "+sym+" нет")
	default:
		_, _ = t.SendTo(chatID, "📕 "+formatTrade(rec))
	}
}

func (t *Telegram) handlePanic(ctx context.Context, chatID int64) {
	n := len(t.engine.Snapshot().Positions)
	if n == 0 {
		_, _ = t.SendTo(chatID, "📭 Открытых позиций нет")
		return
	}

	prompt := fmt.Sprintf("🚨 Продать все позиции (%d) по рынку и выключить бота?", n)
	if !t.Confirm(ctx, chatID, prompt, "🚨 Продать всё", "❌ Отмена", t.confirmTimeout) {
		_, _ = t.SendTo(chatID, "Отменено")
		return
	}

	sold := t.engine.PanicLiquidateAll()
	_, _ = t.SendTo(chatID, fmt.Sprintf("🧯 Продано позиций: %d\n%s", len(sold), formatHistory(sold, len(sold))))
}

func tradeError(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		return "❗️ Недостаточно средств"
	case errors.Is(err, models.ErrInvalidOrder):
		return "❗️ Некорректная заявка: " + err.Error()
	default:
		return "❗️ Сделка не прошла: " + err.Error()
	}
}

func positionAmount(positions []models.Position, sym string) float64 {
	for _, p := range positions {
		if p.Symbol == sym {
			return p.Amount
		}
	}
	return 0
}
