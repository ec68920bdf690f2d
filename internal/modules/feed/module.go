package feed

import (
	"context"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/feed/service"
	health "paper_trader/internal/modules/health/service"
	"paper_trader/internal/portfolio"
	"paper_trader/internal/runner"
	"paper_trader/pkg/logger"

	"go.uber.org/fx"
)

// NewSource: Finnhub для акций, Binance для BINANCE:*, всё под Fallback.
func NewSource(cfg *config.Config) *service.Fallback {
	var stocks service.Source
	if cfg.Feed.FinnhubKey != "" {
		stocks = service.NewFinnhub(cfg.Feed.FinnhubURL, cfg.Feed.FinnhubKey, cfg.Feed.Timeout)
	} else {
		logger.Warn("[FEED] no finnhub key, stocks run on synthetic prices")
	}
	crypto := service.NewBinance(cfg.Feed.BinanceKey, cfg.Feed.BinanceSecret)

	return service.NewFallback(service.NewRouter(stocks, crypto))
}

func NewFeed(cfg *config.Config, src *service.Fallback, engine *portfolio.Engine, st *health.State) *service.Feed {
	return service.NewFeed(src, cfg.Feed.Watchlist, cfg.Feed.Tick, engine, st.TouchTick)
}

func NewMarket(f *service.Feed) runner.Market { return f }

func run(lc fx.Lifecycle, appCtx context.Context, cfg *config.Config, f *service.Feed, src *service.Fallback, st *health.State) {
	ctx, cancel := context.WithCancel(appCtx)

	var stream *service.Stream
	if cfg.Feed.Stream && cfg.Feed.FinnhubKey != "" {
		// в стрим только акции, крипта идёт через Binance REST
		var syms []string
		for _, s := range cfg.Feed.Watchlist {
			if !service.IsBinance(s) {
				syms = append(syms, s)
			}
		}
		stream = service.NewStream(cfg.Feed.FinnhubWS, cfg.Feed.FinnhubKey, syms, src.Remember, st.SetWSConnected)
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go f.Run(ctx)
			if stream != nil {
				go stream.Run(ctx)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			NewSource,
			NewFeed,
			NewMarket,
		),
		fx.Invoke(run),
	)
}
