package portfolio

import (
	"sync"
	"time"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
)

const (
	DefaultInitialBalance = 100000.0
	// DefaultTrailFactor: трейлинг-стоп держим на 2% ниже цены.
	DefaultTrailFactor = 0.02
)

// Publisher получает доменные события уже после снятия лока.
type Publisher interface {
	Publish(ev models.Event)
}

// BotSwitch: то что паник-продажа должна выключить до ликвидации.
type BotSwitch interface {
	Disable(reason string)
}

type Options struct {
	InitialBalance float64
	TrailFactor    float64
	Converter      *currency.Converter
	Publisher      Publisher
	Now            func() time.Time
}

// Engine: единственный владелец баланса, позиций, истории и статистики.
// Все мутации идут под одним mu.
type Engine struct {
	mu sync.Mutex

	conv        *currency.Converter
	now         func() time.Time
	pub         Publisher
	trailFactor float64

	balance float64
	ledger  *Ledger
	history []models.TradeRecord
	stats   models.BotStats
	quotes  map[string]models.Quote

	botMu sync.RWMutex
	bot   BotSwitch
}

func NewEngine(opts Options) *Engine {
	if opts.Converter == nil {
		opts.Converter = currency.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = DefaultInitialBalance
	}
	if opts.TrailFactor <= 0 || opts.TrailFactor >= 1 {
		opts.TrailFactor = DefaultTrailFactor
	}

	return &Engine{
		conv:        opts.Converter,
		now:         opts.Now,
		pub:         opts.Publisher,
		trailFactor: opts.TrailFactor,
		balance:     opts.InitialBalance,
		ledger:      NewLedger(opts.Converter),
		quotes:      make(map[string]models.Quote),
		stats:       models.BotStats{StartedAt: opts.Now()},
	}
}

// AttachBot: регистрируем бота, которого гасит PanicLiquidateAll.
func (e *Engine) AttachBot(b BotSwitch) {
	e.botMu.Lock()
	e.bot = b
	e.botMu.Unlock()
}

func (e *Engine) Converter() *currency.Converter { return e.conv }

// Snapshot: согласованная копия состояния.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return models.Snapshot{
		BalanceUSD:  e.balance,
		EquityUSD:   e.balance + e.ledger.marketValueUSD(),
		Positions:   e.ledger.Positions(),
		Stats:       e.stats,
		Performance: PerformanceOf(e.stats),
		TradeCount:  len(e.history),
		At:          e.now(),
	}
}

// History: копия журнала сделок в порядке исполнения.
func (e *Engine) History() []models.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]models.TradeRecord(nil), e.history...)
}

func (e *Engine) Position(symbol string) (models.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Get(symbol)
}

func (e *Engine) OpenPositions() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Len()
}

func (e *Engine) Stats() models.BotStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats
}

func (e *Engine) BalanceUSD() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.balance
}

// LastQuote: последняя известная котировка (может быть устаревшей).
func (e *Engine) LastQuote(symbol string) (models.Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.quotes[symbol]
	return q, ok
}

// CostBasisUSD: сумма вложений в открытые позиции.
func (e *Engine) CostBasisUSD() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.costBasisUSD()
}

// events копит события под локом, публикуем их после Unlock.
type events []models.Event

func (ev *events) add(e models.Event) { *ev = append(*ev, e) }

func (e *Engine) flush(evs events) {
	if e.pub == nil {
		return
	}
	for _, ev := range evs {
		e.pub.Publish(ev)
	}
}
