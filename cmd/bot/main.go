package main

import (
	"context"
	"log"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/feed"
	"paper_trader/internal/modules/health"
	"paper_trader/internal/modules/journal"
	"paper_trader/internal/modules/oracle"
	telegram "paper_trader/internal/modules/telegram_bot"
	"paper_trader/internal/portfolio"
	"paper_trader/internal/runner"
	"paper_trader/pkg/logger"
	"paper_trader/pkg/tracing"

	"go.uber.org/fx"
)

// appContext живёт до OnStop, фоновые циклы модулей завязаны на него.
func appContext(lc fx.Lifecycle) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return ctx
}

// observability поднимает логгер и трейсер до старта остальных модулей.
func observability(lc fx.Lifecycle, cfg *config.Config) error {
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)

	flush, err := logger.Init(cfg.Logger)
	if err != nil {
		return err
	}

	closeTracer := func() {}
	if cfg.Tracing.Enabled() {
		_, closer, err := tracing.InitTracer(cfg.Tracing)
		if err != nil {
			logger.Warn("[MAIN] tracer disabled: %v", err)
		} else {
			closeTracer = closer
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			flush()
			return nil
		},
	})
	logger.Info("[MAIN] %s starting", cfg.Service.Name)
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(appContext),
		config.Module(),
		fx.Module("observability", fx.Invoke(observability)),
		portfolio.Module(),
		health.Module(),
		feed.Module(),
		oracle.Module(),
		runner.Module(),
		journal.Module(),
		telegram.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
