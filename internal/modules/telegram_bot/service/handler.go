package service

import (
	"context"
	"strings"

	"paper_trader/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnStart     = "▶️ Запустить бота"
	btnStop      = "⏹ Остановить бота"
	btnSettings  = "⚙️ Настройки"
	btnStatus    = "📊 Статус"
	btnPositions = "💼 Позиции"
	btnPanic     = "🚨 Продать всё"

	confirmPrefix = "CONF::"
	rejectPrefix  = "REJ::"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Обычные сообщения
	if msg := update.Message; msg != nil {
		if msg.Chat == nil || !t.allowed(msg.Chat.ID) {
			return
		}
		chatID := msg.Chat.ID

		if msg.IsCommand() {
			t.handleCommand(ctx, chatID, msg.Command(), msg.CommandArguments())
			return
		}

		t.handleTextMessage(ctx, msg)
		return
	}

	// 2) Inline-кнопки
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || !t.allowed(cb.Message.Chat.ID) {
			return
		}
		t.handleCallback(ctx, cb.Message.Chat.ID, cb)
	}
}

// allowed: без chat_id в конфиге бот отвечает всем.
func (t *Telegram) allowed(chatID int64) bool {
	return t.chatID == 0 || t.chatID == chatID
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, cmd, args string) {
	t.clearAwait(chatID)

	switch cmd {
	case "start", "help":
		if err := t.handleStart(chatID); err != nil {
			logger.Error("[TELEGRAM] handleStart: %v", err)
		}
	case "status":
		t.handleStatus(chatID)
	case "positions":
		t.handlePositions(chatID)
	case "history":
		t.handleHistory(chatID)
	case "logs":
		t.handleLogs(chatID)
	case "settings":
		t.handleSettingsMenu(chatID)
	case "set":
		t.handleSet(chatID, args)
	case "bot_on":
		t.handleBotOn(chatID)
	case "bot_off":
		t.handleBotOff(chatID)
	case "scan":
		go t.handleScan(ctx, chatID, args)
	case "analyze":
		go t.handleAnalyze(ctx, chatID, args)
	case "buy":
		t.handleBuy(chatID, args)
	case "sell":
		t.handleSell(chatID, args)
	case "panic":
		go t.handlePanic(ctx, chatID)
	default:
		_, _ = t.SendTo(chatID, "Не знаю такой команды, см. /help")
	}
}

func (t *Telegram) handleStart(chatID int64) error {
	replyKb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStart),
			tgbotapi.NewKeyboardButton(btnStop),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStatus),
			tgbotapi.NewKeyboardButton(btnPositions),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSettings),
			tgbotapi.NewKeyboardButton(btnPanic),
		),
	)

	msg := tgbotapi.NewMessage(chatID, helpText)
	msg.ReplyMarkup = replyKb

	_, err := t.SendMessage(msg)
	return err
}

func (t *Telegram) handleTextMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch text {
	case btnStart:
		t.clearAwait(chatID)
		t.handleBotOn(chatID)
		return
	case btnStop:
		t.clearAwait(chatID)
		t.handleBotOff(chatID)
		return
	case btnSettings:
		t.clearAwait(chatID)
		t.handleSettingsMenu(chatID)
		return
	case btnStatus:
		t.handleStatus(chatID)
		return
	case btnPositions:
		t.handlePositions(chatID)
		return
	case btnPanic:
		t.clearAwait(chatID)
		go t.handlePanic(ctx, chatID)
		return
	}

	// ждём значение для настройки
	if key, ok := t.peekAwait(chatID); ok {
		t.handleAwaitValue(chatID, text, key)
	}
}

func (t *Telegram) handleCallback(_ context.Context, chatID int64, cb *tgbotapi.CallbackQuery) {
	// отвечаем ТГ, чтобы убрать "часики" на кнопке
	_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))

	data := cb.Data
	switch {
	case strings.HasPrefix(data, confirmPrefix), strings.HasPrefix(data, rejectPrefix):
		t.handleConfirmCallback(chatID, data)
	case strings.HasPrefix(data, setPrefix):
		t.askValue(chatID, strings.TrimPrefix(data, setPrefix))
	case strings.HasPrefix(data, strategyPrefix):
		t.setStrategy(chatID, strings.TrimPrefix(data, strategyPrefix))
	case data == toggleTrailing:
		t.toggleTrailing(chatID)
	}
}

// handleConfirmCallback: CONF::token / REJ::token
func (t *Telegram) handleConfirmCallback(chatID int64, data string) {
	ok := strings.HasPrefix(data, confirmPrefix)
	token := strings.TrimPrefix(strings.TrimPrefix(data, confirmPrefix), rejectPrefix)

	t.mu.Lock()
	p, found := t.pendings[token]
	delete(t.pendings, token)
	var msgID int
	if found {
		msgID = p.msgID
	}
	t.mu.Unlock()
	if !found {
		return
	}

	_ = t.editReplyMarkupRemove(chatID, msgID)
	p.ch <- ok
}
