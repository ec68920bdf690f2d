package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paper_trader/internal/models"
	"paper_trader/internal/portfolio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Evaluate(ctx context.Context, req models.OracleRequest) models.OracleResult {
	args := m.Called(ctx, req)
	return args.Get(0).(models.OracleResult)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixedRand int

func (f fixedRand) Intn(n int) int { return int(f) % n }

type fakeMarket struct {
	symbols []string
	prices  map[string]float64
	history []float64
}

func (f *fakeMarket) Symbols() []string { return f.symbols }

func (f *fakeMarket) Quote(_ context.Context, symbol string) (models.Quote, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return models.Quote{}, errors.New("no quote")
	}
	return models.Quote{Symbol: symbol, Price: p}, nil
}

func (f *fakeMarket) History(_ context.Context, _ string) ([]float64, error) {
	return f.history, nil
}

type events struct {
	mu  sync.Mutex
	all []models.Event
}

func (e *events) Publish(ev models.Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) count(kind models.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.all {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	engine *portfolio.Engine
	market *fakeMarket
	oracle *MockOracle
	clock  *fakeClock
	events *events
	s      *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	evs := &events{}
	engine := portfolio.NewEngine(portfolio.Options{InitialBalance: 100000, Now: clk.Now, Publisher: evs})
	market := &fakeMarket{
		symbols: []string{"AAPL", "TSLA"},
		prices:  map[string]float64{"AAPL": 250, "TSLA": 200},
		history: []float64{1, 2, 3},
	}
	oracle := &MockOracle{}
	s := NewScheduler(engine, market, oracle, Options{Clock: clk, Rand: fixedRand(0), Publisher: evs})
	engine.AttachBot(s)

	return &fixture{engine: engine, market: market, oracle: oracle, clock: clk, events: evs, s: s}
}

func (f *fixture) enable(t *testing.T, mutate func(c *models.BotConfig)) {
	t.Helper()
	cfg := models.DefaultBotConfig()
	cfg.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, f.s.SetBotConfig(cfg))
}

func buy(symbol string, sl, tp *float64) models.OracleResult {
	return models.DecisionResult(models.Decision{Symbol: symbol, Action: models.ActionBuy, Reasoning: "higher low", StopLoss: sl, TakeProfit: tp})
}

func hold(symbol string) models.OracleResult {
	return models.DecisionResult(models.Decision{Symbol: symbol, Action: models.ActionHold})
}

func sell(symbol string) models.OracleResult {
	return models.DecisionResult(models.Decision{Symbol: symbol, Action: models.ActionSell})
}

func TestSchedulerStartsDisabled(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, models.BotDisabled, f.s.State())
	f.s.Tick(context.Background())
	f.oracle.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestSetBotConfigRejectsInvalidAndKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.IntervalSeconds = 45 })

	bad := f.s.Config()
	bad.MaxOpenPositions = 0
	err := f.s.SetBotConfig(bad)

	require.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Equal(t, 45, f.s.Config().IntervalSeconds)
	assert.Equal(t, 3, f.s.Config().MaxOpenPositions)
	assert.Equal(t, models.BotIdle, f.s.State())
}

func TestEnableDisableTransitions(t *testing.T) {
	f := newFixture(t)

	f.enable(t, nil)
	assert.Equal(t, models.BotIdle, f.s.State())

	cfg := f.s.Config()
	cfg.Enabled = false
	require.NoError(t, f.s.SetBotConfig(cfg))
	assert.Equal(t, models.BotDisabled, f.s.State())

	f.s.Enable()
	assert.Equal(t, models.BotIdle, f.s.State())
	assert.True(t, f.s.Config().Enabled)

	f.s.Disable("user")
	f.s.Disable("user")
	assert.Equal(t, models.BotDisabled, f.s.State())
	assert.False(t, f.s.Config().Enabled)
}

func TestScanRespectsInterval(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.IntervalSeconds = 30 })
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(hold("AAPL"))
	ctx := context.Background()

	f.s.Tick(ctx)
	f.clock.Advance(10 * time.Second)
	f.s.Tick(ctx)
	f.clock.Advance(20 * time.Second)
	f.s.Tick(ctx)

	f.oracle.AssertNumberOfCalls(t, "Evaluate", 2)
	assert.Equal(t, models.BotIdle, f.s.State())
}

func TestReenableScansOnNextTick(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.IntervalSeconds = 30 })
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(hold("AAPL"))
	ctx := context.Background()

	f.s.Tick(ctx)
	f.s.Disable("user")
	f.s.Enable()
	f.clock.Advance(5 * time.Second)
	f.s.Tick(ctx)

	f.oracle.AssertNumberOfCalls(t, "Evaluate", 2)
}

func TestDailyTargetDisablesOnce(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.DailyProfitTarget = 100 })
	ctx := context.Background()

	_, err := f.engine.Buy("AAPL", 10, 100, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)
	_, _, err = f.engine.Sell("AAPL", 5, 130, models.CauseMarket)
	require.NoError(t, err)

	f.s.Tick(ctx)
	assert.Equal(t, models.BotDisabled, f.s.State())

	// прибыль растёт дальше, бот остаётся выключенным
	_, _, err = f.engine.Sell("AAPL", 5, 140, models.CauseMarket)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.s.Tick(ctx)
	f.s.Tick(ctx)

	assert.Equal(t, models.BotDisabled, f.s.State())
	assert.Equal(t, 1, f.events.count(models.EventBotAutoDisabled))
	f.oracle.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestEntrySizesFivePercentWithTrailingStop(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	f.oracle.On("Evaluate", mock.Anything, mock.MatchedBy(func(req models.OracleRequest) bool {
		return req.Mode == models.ModeEntry && req.Strategy == models.StrategyConservative &&
			len(req.Market) == 1 && req.Market[0].Symbol == "AAPL" && req.Market[0].Price == 250
	})).Return(buy("AAPL", nil, models.Float(300))).Once()

	f.s.Tick(context.Background())

	pos, ok := f.engine.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 20.0, pos.Amount, 1e-9)
	assert.True(t, pos.IsTrailing)
	require.NotNil(t, pos.StopLoss)
	assert.InDelta(t, 237.5, *pos.StopLoss, 1e-9)
	assert.Equal(t, 300.0, *pos.TakeProfit)

	hist := f.engine.History()
	require.Len(t, hist, 1)
	assert.Equal(t, models.CauseAutoEntry, hist[0].Cause)
	f.oracle.AssertExpectations(t)
}

func TestEntryUsesOracleStopWithoutTrailing(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.UseTrailingStop = false })
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(buy("aapl", models.Float(240), nil)).Once()

	f.s.Tick(context.Background())

	pos, ok := f.engine.Position("AAPL")
	require.True(t, ok)
	assert.False(t, pos.IsTrailing)
	assert.Equal(t, 240.0, *pos.StopLoss)
	assert.Nil(t, pos.TakeProfit)
}

func TestEntryIgnoresUnresolvableSymbol(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(buy("MSFT", nil, nil)).Once()

	f.s.Tick(context.Background())

	assert.Equal(t, 0, f.engine.OpenPositions())
}

func TestEntrySkippedAtCapacity(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.MaxOpenPositions = 1 })
	_, err := f.engine.Buy("TSLA", 1, 200, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)

	// кандидат AAPL не в портфеле, а лимит исчерпан
	f.s.Tick(context.Background())

	f.oracle.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.engine.OpenPositions())
}

func TestExitSellsWholePosition(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	_, err := f.engine.Buy("AAPL", 4, 200, nil, nil, false, models.CauseMarket)
	require.NoError(t, err)
	f.oracle.On("Evaluate", mock.Anything, mock.MatchedBy(func(req models.OracleRequest) bool {
		return req.Mode == models.ModeExit
	})).Return(sell("AAPL")).Once()

	f.s.Tick(context.Background())

	assert.Equal(t, 0, f.engine.OpenPositions())
	hist := f.engine.History()
	require.Len(t, hist, 2)
	assert.Equal(t, models.CauseAutoExit, hist[1].Cause)
	assert.Equal(t, 4.0, hist[1].Amount)
	assert.Equal(t, 250.0, hist[1].Price)
}

func TestExitHoldKeepsPosition(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	_, _ = f.engine.Buy("AAPL", 4, 200, nil, nil, false, models.CauseMarket)
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(hold("AAPL")).Once()

	f.s.Tick(context.Background())
	assert.Equal(t, 1, f.engine.OpenPositions())
}

func TestMalformedOracleDoesNotTrade(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).
		Return(models.MalformedResult(models.ErrOracleMalformed)).Once()

	f.s.Tick(context.Background())

	assert.Equal(t, 0, f.engine.OpenPositions())
	assert.Equal(t, models.BotIdle, f.s.State())
}

func TestStopLossDuringOracleCallPreventsDoubleExit(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	_, err := f.engine.Buy("AAPL", 4, 200, models.Float(190), nil, false, models.CauseMarket)
	require.NoError(t, err)

	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		// сторож закрывает позицию, пока оракул думает
		f.engine.OnQuotes(map[string]models.Quote{"AAPL": {Symbol: "AAPL", Price: 180}})
	}).Return(sell("AAPL")).Once()

	f.s.Tick(context.Background())

	hist := f.engine.History()
	require.Len(t, hist, 2)
	assert.Equal(t, models.CauseStopLoss, hist[1].Cause)
}

func TestReopenedPositionIsNotExited(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	_, _ = f.engine.Buy("AAPL", 4, 200, nil, nil, false, models.CauseMarket)

	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		_, _, _ = f.engine.Sell("AAPL", 4, 200, models.CauseMarket)
		_, _ = f.engine.Buy("AAPL", 1, 200, nil, nil, false, models.CauseMarket)
	}).Return(sell("AAPL")).Once()

	f.s.Tick(context.Background())

	pos, ok := f.engine.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.Amount)
}

func TestDisableDuringOracleCallDiscardsDecision(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		f.s.Disable("user")
	}).Return(buy("AAPL", nil, nil)).Once()

	f.s.Tick(context.Background())

	assert.Equal(t, 0, f.engine.OpenPositions())
	assert.Equal(t, models.BotDisabled, f.s.State())
}

func TestPanicDuringOracleCallDiscardsDecision(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	_, _ = f.engine.Buy("TSLA", 1, 200, nil, nil, false, models.CauseMarket)
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		f.engine.PanicLiquidateAll()
	}).Return(buy("AAPL", nil, nil)).Once()

	f.s.Tick(context.Background())

	assert.Equal(t, 0, f.engine.OpenPositions())
	assert.Equal(t, models.BotDisabled, f.s.State())
	assert.False(t, f.s.Config().Enabled)
}

func TestReenableAfterPanicScansAgain(t *testing.T) {
	f := newFixture(t)
	f.enable(t, nil)
	f.engine.PanicLiquidateAll()
	assert.Equal(t, models.BotDisabled, f.s.State())

	f.s.Enable()
	f.oracle.On("Evaluate", mock.Anything, mock.Anything).Return(buy("AAPL", nil, nil)).Once()
	f.s.Tick(context.Background())

	assert.Equal(t, 1, f.engine.OpenPositions())
}

func TestWhitelistRestrictsCandidates(t *testing.T) {
	f := newFixture(t)
	f.s.opt.Rand = fixedRand(1)
	f.enable(t, func(c *models.BotConfig) { c.AllowedSymbols = []string{"TSLA", "MSFT"} })
	f.oracle.On("Evaluate", mock.Anything, mock.MatchedBy(func(req models.OracleRequest) bool {
		return req.Market[0].Symbol == "TSLA"
	})).Return(hold("TSLA")).Once()

	f.s.Tick(context.Background())
	f.oracle.AssertExpectations(t)
}

func TestEmptyPoolSkipsScan(t *testing.T) {
	f := newFixture(t)
	f.enable(t, func(c *models.BotConfig) { c.AllowedSymbols = []string{"MSFT"} })

	f.s.Tick(context.Background())
	f.oracle.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestCandidatePool(t *testing.T) {
	tests := []struct {
		name      string
		allowed   []string
		available []string
		want      []string
	}{
		{"empty whitelist means all", nil, []string{"A", "B"}, []string{"A", "B"}},
		{"intersection", []string{"B", "C"}, []string{"A", "B"}, []string{"B"}},
		{"nothing available", []string{"C"}, []string{"A"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidatePool(tt.allowed, tt.available))
		})
	}
}

func TestAgentScanFiltersByBudget(t *testing.T) {
	f := newFixture(t)
	f.market.symbols = []string{"AAPL", "TSLA", "RELIANCE.NS"}
	f.market.prices["RELIANCE.NS"] = 2900
	f.oracle.On("Evaluate", mock.Anything, mock.MatchedBy(func(req models.OracleRequest) bool {
		if len(req.Market) != 2 || req.Mode != models.ModeEntry {
			return false
		}
		return req.Market[0].Symbol == "TSLA" && req.Market[1].Symbol == "RELIANCE.NS"
	})).Return(buy("TSLA", nil, nil)).Once()

	res, err := f.s.AgentScan(context.Background(), 225)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Decision.Action)
	// ручной скан ничего не покупает
	assert.Equal(t, 0, f.engine.OpenPositions())
}

func TestAgentScanNothingAffordable(t *testing.T) {
	f := newFixture(t)

	_, err := f.s.AgentScan(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrStaleQuote)
}
