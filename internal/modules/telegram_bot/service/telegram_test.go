package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"paper_trader/internal/models"
	"paper_trader/internal/notify"
	"paper_trader/internal/portfolio"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chat int64 = 42

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	nextID  int
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

// callbackData: данные первой кнопки с заданной подписью.
func (f *fakeAPI) callbackData(label string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		kb, ok := f.sent[i].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			continue
		}
		for _, row := range kb.InlineKeyboard {
			for _, b := range row {
				if b.Text == label && b.CallbackData != nil {
					return *b.CallbackData, true
				}
			}
		}
	}
	return "", false
}

type fakeBot struct {
	mu      sync.Mutex
	state   models.BotState
	cfg     models.BotConfig
	scanRes models.OracleResult
	budget  float64

	analyzed   []string
	analyzeErr error
}

func newFakeBot() *fakeBot {
	return &fakeBot{state: models.BotDisabled, cfg: models.DefaultBotConfig()}
}

func (b *fakeBot) State() models.BotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBot) Config() models.BotConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Clone()
}

func (b *fakeBot) SetBotConfig(cfg models.BotConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.cfg = cfg.Clone()
	b.mu.Unlock()
	return nil
}

func (b *fakeBot) Enable() {
	b.mu.Lock()
	b.state = models.BotIdle
	b.mu.Unlock()
}

func (b *fakeBot) Disable(string) {
	b.mu.Lock()
	b.state = models.BotDisabled
	b.mu.Unlock()
}

func (b *fakeBot) AgentScan(_ context.Context, budget float64) (models.OracleResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budget = budget
	return b.scanRes, nil
}

func (b *fakeBot) Analyze(_ context.Context, symbol string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzed = append(b.analyzed, symbol)
	if b.analyzeErr != nil {
		return "", b.analyzeErr
	}
	return "review of " + symbol, nil
}

type fixture struct {
	api    *fakeAPI
	bot    *fakeBot
	engine *portfolio.Engine
	log    *notify.EventLog
	tg     *Telegram
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := notify.NewBus()
	log := notify.NewEventLog(notify.DefaultLogCapacity, nil)
	bus.Subscribe(log.Handle)

	engine := portfolio.NewEngine(portfolio.Options{InitialBalance: 10000, Publisher: bus})
	engine.OnQuotes(map[string]models.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100},
	})

	f := &fixture{api: newFakeAPI(), bot: newFakeBot(), engine: engine, log: log}
	f.tg = newTelegram(f.api, chat, engine, f.bot, log)
	f.tg.confirmTimeout = 2 * time.Second
	engine.AttachBot(f.bot)
	return f
}

func command(chatID int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func text(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: s}}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestForeignChatIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.tg.handleUpdate(context.Background(), command(7, "/status"))
	assert.Empty(t, f.api.texts())
}

func TestBuyAndSellByCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tg.handleUpdate(ctx, command(chat, "/buy aapl 2 sl=90 tp=120"))
	require.Contains(t, f.api.last().Text, "BUY AAPL")

	snap := f.engine.Snapshot()
	require.Len(t, snap.Positions, 1)
	p := snap.Positions[0]
	assert.Equal(t, 2.0, p.Amount)
	require.NotNil(t, p.StopLoss)
	assert.Equal(t, 90.0, *p.StopLoss)
	assert.False(t, p.IsTrailing)
	assert.InDelta(t, 9800.0, snap.BalanceUSD, 1e-9)

	f.tg.handleUpdate(ctx, command(chat, "/sell AAPL"))
	assert.Contains(t, f.api.last().Text, "SELL AAPL")
	assert.Empty(t, f.engine.Snapshot().Positions)

	f.tg.handleUpdate(ctx, command(chat, "/sell AAPL"))
	assert.Contains(t, f.api.last().Text, "Позиции по AAPL нет")
}

func TestBuyRejections(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{"no args", "/buy", "Формат"},
		{"bad amount", "/buy AAPL lots", "числом"},
		{"bad level", "/buy AAPL 1 sl=abc", "sl"},
		{"no quote", "/buy TSLA 1", "Нет котировки"},
		{"too expensive", "/buy AAPL 1000", "Недостаточно средств"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.tg.handleUpdate(context.Background(), command(chat, tt.cmd))
			assert.Contains(t, f.api.last().Text, tt.want)
			assert.Empty(t, f.engine.Snapshot().Positions)
		})
	}
}

func TestSetCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tg.handleUpdate(ctx, command(chat, "/set interval_seconds=15 strategy=degen"))
	cfg := f.bot.Config()
	assert.Equal(t, 15, cfg.IntervalSeconds)
	assert.Equal(t, models.StrategyDegen, cfg.Strategy)
	assert.Contains(t, f.api.last().Text, "Сохранено")

	f.tg.handleUpdate(ctx, command(chat, "/set interval_seconds=0"))
	assert.Equal(t, 15, f.bot.Config().IntervalSeconds)
	assert.Contains(t, f.api.last().Text, "Не сохранено")
}

func TestSettingsAwaitFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tg.handleUpdate(ctx, callback(chat, setPrefix+"max_open_positions"))
	_, waiting := f.tg.peekAwait(chat)
	require.True(t, waiting)

	// неверное значение: остаёмся в режиме ввода
	f.tg.handleUpdate(ctx, text(chat, "много"))
	_, waiting = f.tg.peekAwait(chat)
	assert.True(t, waiting)
	assert.Equal(t, 3, f.bot.Config().MaxOpenPositions)

	f.tg.handleUpdate(ctx, text(chat, "5"))
	_, waiting = f.tg.peekAwait(chat)
	assert.False(t, waiting)
	assert.Equal(t, 5, f.bot.Config().MaxOpenPositions)

	f.tg.handleUpdate(ctx, callback(chat, toggleTrailing))
	assert.False(t, f.bot.Config().UseTrailingStop)

	f.tg.handleUpdate(ctx, callback(chat, strategyPrefix+string(models.StrategyAggressive)))
	assert.Equal(t, models.StrategyAggressive, f.bot.Config().Strategy)
}

func TestBotOnOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tg.handleUpdate(ctx, text(chat, btnStart))
	assert.Equal(t, models.BotIdle, f.bot.State())

	f.tg.handleUpdate(ctx, command(chat, "/bot_on"))
	assert.Contains(t, f.api.last().Text, "уже запущен")

	f.tg.handleUpdate(ctx, command(chat, "/bot_off"))
	assert.Equal(t, models.BotDisabled, f.bot.State())
}

func TestPanicNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.Enable()
	_, err := f.engine.Buy("AAPL", 3, 100, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.tg.handlePanic(ctx, chat)
		close(done)
	}()

	var data string
	require.Eventually(t, func() bool {
		var ok bool
		data, ok = f.api.callbackData("🚨 Продать всё")
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, f.engine.Snapshot().Positions, 1, "nothing sold before confirmation")

	f.tg.handleUpdate(ctx, callback(chat, data))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler did not finish")
	}

	assert.Empty(t, f.engine.Snapshot().Positions)
	assert.Equal(t, models.BotDisabled, f.bot.State())
	assert.Contains(t, f.api.last().Text, "Продано позиций: 1")
}

func TestPanicRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Buy("AAPL", 1, 100, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.tg.handlePanic(ctx, chat)
		close(done)
	}()

	var data string
	require.Eventually(t, func() bool {
		var ok bool
		data, ok = f.api.callbackData("❌ Отмена")
		return ok
	}, time.Second, 10*time.Millisecond)

	f.tg.handleUpdate(ctx, callback(chat, data))
	<-done
	assert.Len(t, f.engine.Snapshot().Positions, 1)
}

func TestScanUsesBudget(t *testing.T) {
	f := newFixture(t)
	f.bot.scanRes = models.DecisionResult(models.Decision{
		Symbol: "AAPL", Action: models.ActionHold, Reasoning: "falling knife", StopLoss: models.Float(95),
	})

	f.tg.handleScan(context.Background(), chat, "250")
	assert.Equal(t, 250.0, f.bot.budget)
	assert.Contains(t, f.api.last().Text, "HOLD AAPL")
	assert.Contains(t, f.api.last().Text, "SL $95.00")
	_, asked := f.api.callbackData("✅ Купить")
	assert.False(t, asked, "hold is not offered for execution")

	f.tg.handleScan(context.Background(), chat, "")
	assert.Equal(t, defaultScanBudget, f.bot.budget)
}

// runScan запускает /scan в фоне и ждёт кнопку подтверждения.
func runScan(t *testing.T, f *fixture, args, label string) (string, chan struct{}) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		f.tg.handleScan(context.Background(), chat, args)
		close(done)
	}()

	var data string
	require.Eventually(t, func() bool {
		var ok bool
		data, ok = f.api.callbackData(label)
		return ok
	}, time.Second, 10*time.Millisecond)
	return data, done
}

func TestScanBuyConfirmed(t *testing.T) {
	f := newFixture(t)
	f.bot.scanRes = models.DecisionResult(models.Decision{
		Symbol: "AAPL", Action: models.ActionBuy, Reasoning: "higher low",
		StopLoss: models.Float(95), TakeProfit: models.Float(120),
	})

	data, done := runScan(t, f, "500", "✅ Купить")
	assert.Empty(t, f.engine.Snapshot().Positions, "nothing bought before confirmation")

	f.tg.handleUpdate(context.Background(), callback(chat, data))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scan handler did not finish")
	}

	snap := f.engine.Snapshot()
	require.Len(t, snap.Positions, 1)
	pos := snap.Positions[0]
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.InDelta(t, 5.0, pos.Amount, 1e-9)
	require.NotNil(t, pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.Equal(t, 95.0, *pos.StopLoss)
	assert.Equal(t, 120.0, *pos.TakeProfit)
	assert.False(t, pos.IsTrailing)
	assert.InDelta(t, 9500.0, snap.BalanceUSD, 1e-9)
	assert.Contains(t, f.api.last().Text, "🟢")
}

func TestScanBuyRejected(t *testing.T) {
	f := newFixture(t)
	f.bot.scanRes = models.DecisionResult(models.Decision{Symbol: "AAPL", Action: models.ActionBuy})

	data, done := runScan(t, f, "", "❌ Отмена")
	f.tg.handleUpdate(context.Background(), callback(chat, data))
	<-done

	assert.Empty(t, f.engine.Snapshot().Positions)
	assert.Equal(t, 10000.0, f.engine.Snapshot().BalanceUSD)
	assert.Equal(t, "Отменено", f.api.last().Text)
}

func TestScanBuyWithoutQuote(t *testing.T) {
	f := newFixture(t)
	f.bot.scanRes = models.DecisionResult(models.Decision{Symbol: "TSLA", Action: models.ActionBuy})

	f.tg.handleScan(context.Background(), chat, "")
	assert.Contains(t, f.api.last().Text, "Нет котировки для TSLA")
	assert.Empty(t, f.engine.Snapshot().Positions)
}

func TestAnalyzeCommand(t *testing.T) {
	f := newFixture(t)

	f.tg.handleAnalyze(context.Background(), chat, "tsla extra")
	assert.Equal(t, "📈 TSLA\n\nreview of TSLA", f.api.last().Text)

	f.tg.handleAnalyze(context.Background(), chat, "")
	assert.Contains(t, f.api.last().Text, "Обзор портфеля")

	f.bot.analyzeErr = models.ErrOracleUnavailable
	f.tg.handleAnalyze(context.Background(), chat, "AAPL")
	assert.Contains(t, f.api.last().Text, "Анализ не удался")

	assert.Equal(t, []string{"TSLA", "", "AAPL"}, f.bot.analyzed)
}

func TestStatusAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tg.handleUpdate(ctx, command(chat, "/status"))
	assert.Contains(t, f.api.last().Text, "$10,000.00")
	assert.Contains(t, f.api.last().Text, "выключен")

	_, err := f.engine.Buy("AAPL", 1, 100, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)

	f.tg.handleUpdate(ctx, command(chat, "/logs"))
	assert.Contains(t, f.api.last().Text, "AAPL")

	f.tg.handleUpdate(ctx, command(chat, "/positions"))
	assert.Contains(t, f.api.last().Text, "AAPL × 1.0000")
}

func TestNotificationsGoThroughOutbox(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.tg.Start(ctx)
		close(done)
	}()

	f.tg.Sendf("🟢 [%s] opened", "AAPL")
	require.Eventually(t, func() bool {
		return f.api.last().Text == "🟢 [AAPL] opened"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, chat, f.api.last().ChatID)

	f.tg.Stop()
	f.tg.Stop()
	<-done
	f.api.mu.Lock()
	assert.True(t, f.api.stopped)
	f.api.mu.Unlock()
}

func TestFormatHistoryNewestFirst(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	recs := []models.TradeRecord{
		{Symbol: "A", Side: models.SideBuy, Amount: 1, Price: 1, Timestamp: at, Cause: models.CauseMarket},
		{Symbol: "B", Side: models.SideBuy, Amount: 1, Price: 1, Timestamp: at, Cause: models.CauseAutoEntry},
		{Symbol: "C", Side: models.SideSell, Amount: 1, Price: 1, Timestamp: at, Cause: models.CauseStopLoss, RealizedPnLUSD: -2},
	}

	out := formatHistory(recs, 2)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "SELL C")
	assert.Contains(t, lines[0], "-$2.00")
	assert.Contains(t, lines[1], "BUY B")

	assert.Equal(t, "📭 Сделок ещё не было", formatHistory(nil, 5))
}

func TestParseHelpers(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"2", 2, false},
		{"1,5", 1.5, false},
		{" 0.25 ", 0.25, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"NaN", 0, true},
		{"two", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	kv, err := parseKV([]string{"SL=90", "tp=1,5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sl": "90", "tp": "1,5"}, kv)

	_, err = parseKV([]string{"oops"})
	assert.Error(t, err)
}
