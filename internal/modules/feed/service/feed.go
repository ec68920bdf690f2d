package service

import (
	"context"
	"sync"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
	"paper_trader/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultTick     = 5 * time.Second
	pollConcurrency = 4
)

// Sink: кто получает свежие котировки каждого тика (движок портфеля).
type Sink interface {
	OnQuotes(fresh map[string]models.Quote) []models.TradeRecord
}

// Feed: watchlist + источник. Им же пользуется бот (Market).
type Feed struct {
	src     Source
	symbols []string
	tick    time.Duration
	sink    Sink
	onTick  func(time.Time)
	now     func() time.Time
}

func NewFeed(src Source, symbols []string, tick time.Duration, sink Sink, onTick func(time.Time)) *Feed {
	if tick <= 0 {
		tick = DefaultTick
	}
	if onTick == nil {
		onTick = func(time.Time) {}
	}
	return &Feed{
		src:     src,
		symbols: append([]string(nil), symbols...),
		tick:    tick,
		sink:    sink,
		onTick:  onTick,
		now:     time.Now,
	}
}

func (f *Feed) Symbols() []string { return append([]string(nil), f.symbols...) }

func (f *Feed) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	return f.src.Quote(ctx, symbol)
}

func (f *Feed) History(ctx context.Context, symbol string) ([]float64, error) {
	return f.src.History(ctx, symbol)
}

// Poll параллельно тянет котировки всего watchlist. Символы с ошибкой пропускаются.
func (f *Feed) Poll(ctx context.Context) map[string]models.Quote {
	span, ctx := tracing.StartSpan(ctx, "feed.poll")
	defer tracing.Finish(span, nil)

	var (
		mu  sync.Mutex
		out = make(map[string]models.Quote, len(f.symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, sym := range f.symbols {
		g.Go(func() error {
			q, err := f.src.Quote(gctx, sym)
			if err != nil {
				logger.Warn("[FEED] %s: %v", sym, err)
				return nil
			}
			if q.Symbol == "" {
				q.Symbol = sym
			}
			mu.Lock()
			out[sym] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Tick: один тик: опрос и передача в движок.
func (f *Feed) Tick(ctx context.Context) {
	quotes := f.Poll(ctx)
	if len(quotes) == 0 {
		return
	}
	exits := f.sink.OnQuotes(quotes)
	if len(exits) > 0 {
		logger.Info("[FEED] tick forced %d exits", len(exits))
	}
	f.onTick(f.now())
}

// Run: первый тик сразу, дальше по таймеру, до отмены ctx.
func (f *Feed) Run(ctx context.Context) {
	logger.Info("[FEED] ▶️ polling %d symbols every %s", len(f.symbols), f.tick)
	f.Tick(ctx)

	t := time.NewTicker(f.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("[FEED] ⏹ polling stopped")
			return
		case <-t.C:
			f.Tick(ctx)
		}
	}
}
