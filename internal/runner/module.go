package runner

import (
	"context"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/notify"
	"paper_trader/internal/portfolio"
	"paper_trader/pkg/logger"

	"go.uber.org/fx"
)

func NewFromConfig(
	cfg *config.Config,
	engine *portfolio.Engine,
	m Market,
	o Oracle,
	a Analyst,
	bus *notify.Bus,
) (*Scheduler, error) {
	opt := Options{
		Publisher: bus,
		Analyst:   a,
		OuterTick: cfg.Bot.OuterTick,
	}
	if cfg.Bot.Seed != 0 {
		opt.Rand = NewRand(cfg.Bot.Seed)
	}

	s := NewScheduler(engine, m, o, opt)
	engine.AttachBot(s)

	if err := s.SetBotConfig(cfg.Bot.BotConfig); err != nil {
		return nil, err
	}
	return s, nil
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewFromConfig, // *Scheduler
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Scheduler, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					s.Start(ctx)
					logger.Info("[BOT] scheduler started, state=%s", s.State())
					return nil
				},
				OnStop: func(_ context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}

var _ portfolio.BotSwitch = (*Scheduler)(nil)
var _ Portfolio = (*portfolio.Engine)(nil)
