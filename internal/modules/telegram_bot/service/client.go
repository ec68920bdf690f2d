package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
	"paper_trader/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// api: то, что нам нужно от *tgbot.BotAPI.
type api interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Portfolio: сторона движка, доступная из чата.
type Portfolio interface {
	Snapshot() models.Snapshot
	History() []models.TradeRecord
	LastQuote(symbol string) (models.Quote, bool)
	Converter() *currency.Converter
	Buy(symbol string, amount, price float64, sl, tp *float64, trailing bool, cause models.Cause) (models.TradeRecord, error)
	Sell(symbol string, amount, price float64, cause models.Cause) (models.TradeRecord, bool, error)
	PanicLiquidateAll() []models.TradeRecord
}

// Bot: управление автоторговлей.
type Bot interface {
	State() models.BotState
	Config() models.BotConfig
	SetBotConfig(cfg models.BotConfig) error
	Enable()
	Disable(reason string)
	AgentScan(ctx context.Context, budgetUSD float64) (models.OracleResult, error)
	Analyze(ctx context.Context, symbol string) (string, error)
}

// Activity: лог активности, новые записи первыми.
type Activity interface {
	Entries() []models.LogEntry
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

// Telegram
type Telegram struct {
	bot    api
	chatID int64

	engine Portfolio
	runner Bot
	log    Activity

	confirmTimeout time.Duration

	mu       sync.Mutex
	pendings map[string]*pending
	await    *awaitStore

	outbox chan string
	done   chan struct{}
}

const outboxSize = 64

// NewTelegram: chatID != 0 закрывает бота для всех остальных чатов
// и задаёт адресата уведомлений.
func NewTelegram(token string, chatID int64, engine Portfolio, runner Bot, log Activity) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, engine, runner, log), nil
}

func newTelegram(b api, chatID int64, engine Portfolio, runner Bot, log Activity) *Telegram {
	return &Telegram{
		bot:            b,
		chatID:         chatID,
		engine:         engine,
		runner:         runner,
		log:            log,
		confirmTimeout: 30 * time.Second,
		pendings:       make(map[string]*pending),
		await:          newAwaitStore(),
		outbox:         make(chan string, outboxSize),
		done:           make(chan struct{}),
	}
}

func (t *Telegram) SendTo(chatID int64, msg string) (tgbot.Message, error) {
	return t.bot.Send(tgbot.NewMessage(chatID, msg))
}

func (t *Telegram) SendMessage(message tgbot.MessageConfig) (tgbot.Message, error) {
	return t.bot.Send(message)
}

// Send: уведомление в основной чат. Не блокирует: вызывается из шины событий.
func (t *Telegram) Send(msg string) {
	if t.chatID == 0 {
		logger.Info("[TELEGRAM] no chat_id, dropped: %s", msg)
		return
	}
	select {
	case t.outbox <- msg:
	default:
		logger.Warn("[TELEGRAM] outbox full, dropped: %s", msg)
	}
}

func (t *Telegram) Sendf(format string, args ...any) {
	t.Send(fmt.Sprintf(format, args...))
}

func (t *Telegram) editReplyMarkupRemove(chatID int64, msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, err := t.bot.Request(tgbot.NewEditMessageReplyMarkup(chatID, msgID, rm))
	return err
}

func (t *Telegram) editText(chatID int64, msgID int, text string) error {
	_, err := t.bot.Request(tgbot.NewEditMessageText(chatID, msgID, text))
	return err
}

// Confirm: сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, prompt, yes, no string, timeout time.Duration) bool {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(
		tgbot.NewInlineKeyboardButtonData(yes, confirmPrefix+token),
		tgbot.NewInlineKeyboardButtonData(no, rejectPrefix+token),
	))
	msg := tgbot.NewMessage(chatID, prompt)
	msg.ReplyMarkup = kb

	sent, err := t.bot.Send(msg)
	if err != nil {
		t.dropPending(token)
		logger.Warn("[TELEGRAM] confirm: %v", err)
		return false
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		t.closePending(chatID, token, p, "⏳ Таймаут")
		return false
	case <-ctx.Done():
		t.closePending(chatID, token, p, "⛔️ Отменено")
		return false
	}
}

func (t *Telegram) closePending(chatID int64, token string, p *pending, note string) {
	t.mu.Lock()
	msgID := p.msgID
	delete(t.pendings, token)
	t.mu.Unlock()

	_ = t.editReplyMarkupRemove(chatID, msgID)
	_ = t.editText(chatID, msgID, fmt.Sprintf("%s\n\n%s", p.prompt, note))
}

func (t *Telegram) dropPending(token string) {
	t.mu.Lock()
	delete(t.pendings, token)
	t.mu.Unlock()
}

// Start читает апдейты до отмены ctx или Stop.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go t.sendLoop(ctx)

	logger.Info("[TELEGRAM] listening for updates")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case msg := <-t.outbox:
			if _, err := t.SendTo(t.chatID, msg); err != nil {
				logger.Warn("[TELEGRAM] send: %v", err)
			}
		}
	}
}

func (t *Telegram) Stop() {
	select {
	case <-t.done:
		return
	default:
	}
	close(t.done)
	t.bot.StopReceivingUpdates()
}
