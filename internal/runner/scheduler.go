package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"paper_trader/internal/currency"
	"paper_trader/internal/models"
	"paper_trader/internal/portfolio"
	"paper_trader/pkg/logger"
	"paper_trader/pkg/tracing"
)

const (
	DefaultOuterTick = 5 * time.Second
	// DefaultEntryFraction: доля USD-баланса на одну авто-покупку.
	DefaultEntryFraction = 0.05
	// DefaultEntryStop: стоп по умолчанию для трейлинг-входа без стопа от оракула.
	DefaultEntryStop = 0.95
	historyWindow    = 15
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Rand: источник случайности для выбора кандидата (*rand.Rand подходит).
type Rand interface {
	Intn(n int) int
}

type Oracle interface {
	Evaluate(ctx context.Context, req models.OracleRequest) models.OracleResult
}

type Market interface {
	Symbols() []string
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	History(ctx context.Context, symbol string) ([]float64, error)
}

type Portfolio interface {
	Stats() models.BotStats
	OpenPositions() int
	Position(symbol string) (models.Position, bool)
	LastQuote(symbol string) (models.Quote, bool)
	Snapshot() models.Snapshot
	ApplyIf(o models.Order, guard portfolio.Guard) (models.TradeRecord, bool, error)
	Converter() *currency.Converter
}

type Options struct {
	Clock         Clock
	Rand          Rand
	Publisher     portfolio.Publisher
	Analyst       Analyst
	OuterTick     time.Duration
	EntryFraction float64
	EntryStop     float64
}

// Scheduler: автомат бота: Disabled -> Idle <-> Scanning.
//
// Лок s.mu никогда не держится во время вызова оракула. Любое выключение
// увеличивает epoch, и решение, принятое в старом epoch, отбрасывается
// под локом движка через Guard.
type Scheduler struct {
	p   Portfolio
	m   Market
	o   Oracle
	opt Options

	epoch atomic.Uint64

	mu           sync.Mutex
	cfg          models.BotConfig
	state        models.BotState
	lastScan     time.Time
	targetLogged bool
	baseCtx      context.Context
	cancelLoop   context.CancelFunc
}

func NewScheduler(p Portfolio, m Market, o Oracle, opt Options) *Scheduler {
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	if opt.Rand == nil {
		opt.Rand = newLockedRand(time.Now().UnixNano())
	}
	if opt.OuterTick <= 0 {
		opt.OuterTick = DefaultOuterTick
	}
	if opt.EntryFraction <= 0 || opt.EntryFraction > 1 {
		opt.EntryFraction = DefaultEntryFraction
	}
	if opt.EntryStop <= 0 || opt.EntryStop >= 1 {
		opt.EntryStop = DefaultEntryStop
	}

	cfg := models.DefaultBotConfig()
	cfg.Enabled = false
	return &Scheduler{
		p:     p,
		m:     m,
		o:     o,
		opt:   opt,
		cfg:   cfg,
		state: models.BotDisabled,
	}
}

func (s *Scheduler) State() models.BotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Config() models.BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// SetBotConfig валидирует и применяет конфиг. При ошибке остаётся прежний.
func (s *Scheduler) SetBotConfig(cfg models.BotConfig) error {
	if err := cfg.Validate(); err != nil {
		logger.Error("[BOT] config rejected: %v", err)
		return err
	}

	var evs []models.Event
	s.mu.Lock()
	wasOn := s.state != models.BotDisabled
	s.cfg = cfg.Clone()
	switch {
	case cfg.Enabled && !wasOn:
		evs = s.enableLocked()
	case !cfg.Enabled && wasOn:
		evs = s.disableLocked("config")
	}
	s.mu.Unlock()

	s.publish(evs...)
	return nil
}

func (s *Scheduler) Enable() {
	s.mu.Lock()
	var evs []models.Event
	if s.state == models.BotDisabled {
		s.cfg.Enabled = true
		evs = s.enableLocked()
	}
	s.mu.Unlock()
	s.publish(evs...)
}

// Disable: BotSwitch для паник-продажи и ручного стопа.
func (s *Scheduler) Disable(reason string) {
	s.mu.Lock()
	evs := s.disableLocked(reason)
	s.mu.Unlock()
	s.publish(evs...)
}

func (s *Scheduler) enableLocked() []models.Event {
	s.state = models.BotIdle
	s.targetLogged = false
	// после включения первый же тик сканирует
	s.lastScan = time.Time{}
	s.startLoopLocked()
	logger.Info("[BOT] ▶️ enabled, interval=%ds strategy=%s", s.cfg.IntervalSeconds, s.cfg.Strategy)
	return []models.Event{s.stateEvent("Bot enabled", models.SeverityInfo)}
}

func (s *Scheduler) disableLocked(reason string) []models.Event {
	s.cfg.Enabled = false
	if s.state == models.BotDisabled {
		return nil
	}
	// всё что в полёте, уже чужой epoch
	s.epoch.Add(1)
	s.state = models.BotDisabled
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
	logger.Info("[BOT] ⏹ disabled: %s", reason)
	return []models.Event{s.stateEvent("Bot disabled: "+reason, models.SeverityWarning)}
}

func (s *Scheduler) stateEvent(msg string, sev models.Severity) models.Event {
	return models.Event{
		Kind:     models.EventBotState,
		At:       s.opt.Clock.Now(),
		State:    s.state,
		Message:  msg,
		Severity: sev,
	}
}

// Start: запуск внешнего тикера. ctx живёт всё время приложения,
// вызовы оракула идут на нём и не отменяются выключением бота.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	if s.state != models.BotDisabled {
		s.startLoopLocked()
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
}

func (s *Scheduler) startLoopLocked() {
	if s.baseCtx == nil || s.cancelLoop != nil {
		return
	}
	base := s.baseCtx
	loopCtx, cancel := context.WithCancel(base)
	s.cancelLoop = cancel

	go func() {
		t := time.NewTicker(s.opt.OuterTick)
		defer t.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-t.C:
				s.Tick(base)
			}
		}
	}()
}

// Tick: один внешний тик бота: цель по прибыли, интервал, скан.
func (s *Scheduler) Tick(ctx context.Context) {
	stats := s.p.Stats()
	now := s.opt.Clock.Now()

	s.mu.Lock()
	if s.state != models.BotIdle {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg.Clone()

	// 1) дневная цель
	if cfg.DailyProfitTarget > 0 && stats.TotalProfitUSD >= cfg.DailyProfitTarget {
		evs := s.disableLocked("daily target")
		if !s.targetLogged {
			s.targetLogged = true
			msg := fmt.Sprintf("💰 DAILY TARGET HIT (%s). Bot stopping to secure bag.",
				currency.Format(cfg.DailyProfitTarget, currency.USD))
			logger.Info("[BOT] %s", msg)
			evs = append(evs, models.Event{
				Kind: models.EventBotAutoDisabled, At: now, Message: msg,
				Severity: models.SeveritySuccess, State: models.BotDisabled,
			})
		}
		s.mu.Unlock()
		s.publish(evs...)
		return
	}

	// 2) интервал
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < interval {
		s.mu.Unlock()
		return
	}
	s.lastScan = now
	s.state = models.BotScanning
	epoch := s.epoch.Load()
	s.mu.Unlock()

	s.scan(ctx, cfg, epoch)

	s.mu.Lock()
	if s.epoch.Load() == epoch && s.state == models.BotScanning {
		s.state = models.BotIdle
	}
	s.mu.Unlock()
}

func (s *Scheduler) scan(ctx context.Context, cfg models.BotConfig, epoch uint64) {
	span, ctx := tracing.StartSpan(ctx, "bot.scan")
	var spanErr error
	defer func() { tracing.Finish(span, spanErr) }()

	pool := candidatePool(cfg.AllowedSymbols, s.m.Symbols())
	if len(pool) == 0 {
		return
	}
	sym := pool[s.opt.Rand.Intn(len(pool))]
	span.SetTag("symbol", sym)

	pos, held := s.p.Position(sym)
	if !held && s.p.OpenPositions() >= cfg.MaxOpenPositions {
		logger.Debug("[BOT] skip %s: %d positions open", sym, cfg.MaxOpenPositions)
		return
	}

	snap, err := s.marketSnapshot(ctx, sym)
	if err != nil {
		spanErr = err
		s.note(sym, fmt.Sprintf("Bot scan failed for %s", sym), models.SeverityError)
		logger.Error("[BOT] snapshot %s: %v", sym, err)
		return
	}

	mode := models.ModeEntry
	if held {
		mode = models.ModeExit
	}
	s.note(sym, fmt.Sprintf("Analyzing %s (%s)...", sym, mode), models.SeverityInfo)

	res := s.o.Evaluate(ctx, models.OracleRequest{
		Mode:     mode,
		Strategy: cfg.Strategy,
		Market:   []models.MarketSnapshot{snap},
	})
	if res.Kind != models.ResultDecision {
		spanErr = res.Err
		s.note(sym, fmt.Sprintf("Oracle %s for %s: %v", res.Kind, sym, res.Err), models.SeverityError)
		return
	}

	d := res.Decision
	if held {
		s.exit(sym, pos, snap.Price, d, epoch)
		return
	}
	s.entry(sym, snap, d, cfg, epoch)
}

func (s *Scheduler) exit(sym string, pos models.Position, price float64, d models.Decision, epoch uint64) {
	if d.Action != models.ActionSell {
		s.note(sym, fmt.Sprintf("Monitoring %s... Holding strong.", sym), models.SeverityInfo)
		return
	}

	_, filled, err := s.p.ApplyIf(models.Order{
		Symbol:     sym,
		Side:       models.SideSell,
		SellAll:    true,
		Price:      price,
		Cause:      models.CauseAutoExit,
		PositionID: pos.ID,
	}, s.epochGuard(epoch, nil))
	switch {
	case err != nil:
		logger.Info("[BOT] exit %s discarded: %v", sym, err)
	case !filled:
		logger.Info("[BOT] exit %s discarded: position already closed", sym)
	default:
		s.note(sym, fmt.Sprintf("BOT SIGNAL: SELL %s (Weakness Detected). %s", sym, d.Reasoning), models.SeverityWarning)
	}
}

func (s *Scheduler) entry(sym string, snap models.MarketSnapshot, d models.Decision, cfg models.BotConfig, epoch uint64) {
	if d.Action != models.ActionBuy || !strings.EqualFold(d.Symbol, sym) {
		s.note(sym, fmt.Sprintf("Scan %s: %s", sym, d.Action), models.SeverityInfo)
		return
	}

	sl := d.StopLoss
	if cfg.UseTrailingStop && sl == nil {
		sl = models.Float(snap.Price * s.opt.EntryStop)
	}

	_, _, err := s.p.ApplyIf(models.Order{
		Symbol:          sym,
		Side:            models.SideBuy,
		BalanceFraction: s.opt.EntryFraction,
		Price:           snap.Price,
		StopLoss:        sl,
		TakeProfit:      d.TakeProfit,
		Trailing:        cfg.UseTrailingStop,
		Cause:           models.CauseAutoEntry,
	}, s.epochGuard(epoch, func(v portfolio.View) error {
		if _, ok := v.Held(sym); ok {
			return fmt.Errorf("%w: %s opened meanwhile", models.ErrPositionChanged, sym)
		}
		if v.Open() >= cfg.MaxOpenPositions {
			return fmt.Errorf("%w: max open positions reached", models.ErrPositionChanged)
		}
		return nil
	}))
	if err != nil {
		logger.Info("[BOT] entry %s discarded: %v", sym, err)
		return
	}
	s.note(sym, fmt.Sprintf("BOT SIGNAL: BUY %s. Reasoning: %s", sym, d.Reasoning), models.SeveritySuccess)
}

// epochGuard: заявка проходит только если бот не выключали с момента скана.
func (s *Scheduler) epochGuard(epoch uint64, next portfolio.Guard) portfolio.Guard {
	return func(v portfolio.View) error {
		if s.epoch.Load() != epoch {
			return models.ErrBotDisabled
		}
		if next != nil {
			return next(v)
		}
		return nil
	}
}

func (s *Scheduler) marketSnapshot(ctx context.Context, sym string) (models.MarketSnapshot, error) {
	q, ok := s.p.LastQuote(sym)
	if !ok || q.Price <= 0 {
		var err error
		q, err = s.m.Quote(ctx, sym)
		if err != nil {
			return models.MarketSnapshot{}, fmt.Errorf("%w: %s: %v", models.ErrStaleQuote, sym, err)
		}
	}
	if q.Price <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("%w: %s", models.ErrStaleQuote, sym)
	}

	hist, err := s.m.History(ctx, sym)
	if err != nil {
		logger.Warn("[BOT] history %s: %v", sym, err)
	}
	if len(hist) > historyWindow {
		hist = hist[len(hist)-historyWindow:]
	}

	return models.MarketSnapshot{
		Symbol:  sym,
		Price:   q.Price,
		Change:  q.ChangePercent,
		History: hist,
	}, nil
}

func (s *Scheduler) note(sym, msg string, sev models.Severity) {
	s.publish(models.Event{
		Kind:     models.EventDecision,
		At:       s.opt.Clock.Now(),
		Symbol:   sym,
		Message:  msg,
		Severity: sev,
	})
}

func (s *Scheduler) publish(evs ...models.Event) {
	if s.opt.Publisher == nil {
		return
	}
	for _, ev := range evs {
		s.opt.Publisher.Publish(ev)
	}
}

// candidatePool: белый список ∩ доступные. Пустой белый список = все доступные.
func candidatePool(allowed, available []string) []string {
	if len(allowed) == 0 {
		return append([]string(nil), available...)
	}
	have := make(map[string]struct{}, len(available))
	for _, a := range available {
		have[a] = struct{}{}
	}
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if _, ok := have[a]; ok {
			out = append(out, a)
		}
	}
	return out
}
