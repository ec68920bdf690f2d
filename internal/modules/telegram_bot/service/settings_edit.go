package service

import (
	"fmt"
	"strings"

	"paper_trader/internal/models"
	"paper_trader/internal/modules/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	setPrefix      = "set:"
	strategyPrefix = "strategy:"
	toggleTrailing = "toggle:trailing"
)

var valueHints = map[string]string{
	"interval_seconds":    "Введи *интервал скана* в секундах, например: `30`",
	"max_open_positions":  "Введи *макс. открытых позиций* (целое), например: `3`",
	"risk_per_trade":      "Введи *риск* в %, например: `1.0`",
	"daily_profit_target": "Введи *дневную цель* в USD, `0` = без цели",
	"allowed_symbols":     "Введи символы через запятую, например: `AAPL, BINANCE:BTCUSDT`.\n`-` = все из watchlist",
}

func (t *Telegram) handleSettingsMenu(chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏱ Интервал", setPrefix+"interval_seconds"),
			tgbotapi.NewInlineKeyboardButtonData("📦 Макс. позиций", setPrefix+"max_open_positions"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📉 Риск", setPrefix+"risk_per_trade"),
			tgbotapi.NewInlineKeyboardButtonData("🎯 Цель дня", setPrefix+"daily_profit_target"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Символы", setPrefix+"allowed_symbols"),
			tgbotapi.NewInlineKeyboardButtonData("🧲 Трейлинг", toggleTrailing),
		),
		strategyRow(),
	)

	out := tgbotapi.NewMessage(chatID, formatBotConfig(t.runner.Config()))
	out.ParseMode = tgbotapi.ModeMarkdown
	out.ReplyMarkup = kb
	_, _ = t.SendMessage(out)
}

func strategyRow() []tgbotapi.InlineKeyboardButton {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(strategyOrder))
	for _, s := range strategyOrder {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(models.Presets[s].Name, strategyPrefix+string(s)))
	}
	return row
}

func (t *Telegram) askValue(chatID int64, key string) {
	hint, ok := valueHints[key]
	if !ok {
		hint = "Введи значение"
	}
	t.setAwait(chatID, key)

	out := tgbotapi.NewMessage(chatID, "✍️ "+hint+"\n\nОтмена: напиши `отмена`")
	out.ParseMode = tgbotapi.ModeMarkdown
	_, _ = t.SendMessage(out)
}

func (t *Telegram) handleAwaitValue(chatID int64, text, key string) {
	if strings.EqualFold(text, "отмена") || strings.EqualFold(text, "cancel") {
		t.clearAwait(chatID)
		_, _ = t.SendTo(chatID, "Ок, без изменений")
		return
	}
	if key == "allowed_symbols" && text == "-" {
		text = ""
	}

	// при ошибке остаёмся в режиме ввода
	if t.applySettings(chatID, map[string]string{key: text}) {
		t.clearAwait(chatID)
	}
}

func (t *Telegram) setStrategy(chatID int64, name string) {
	t.applySettings(chatID, map[string]string{"strategy": name})
}

func (t *Telegram) toggleTrailing(chatID int64) {
	cur := t.runner.Config().UseTrailingStop
	t.applySettings(chatID, map[string]string{"use_trailing_stop": fmt.Sprint(!cur)})
}

// applySettings: единая точка правки BotConfig из чата.
func (t *Telegram) applySettings(chatID int64, raw map[string]string) bool {
	next, err := config.ParseBotConfig(raw, t.runner.Config())
	if err == nil {
		err = t.runner.SetBotConfig(next)
	}
	if err != nil {
		_, _ = t.SendTo(chatID, "⚠️ Не сохранено: "+err.Error())
		return false
	}

	out := tgbotapi.NewMessage(chatID, "✅ Сохранено\n\n"+formatBotConfig(t.runner.Config()))
	out.ParseMode = tgbotapi.ModeMarkdown
	_, _ = t.SendMessage(out)
	return true
}
