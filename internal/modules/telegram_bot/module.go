package telegram

import (
	"context"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/telegram_bot/service"
	"paper_trader/internal/notify"
	"paper_trader/internal/portfolio"
	"paper_trader/internal/runner"
	"paper_trader/pkg/logger"

	"go.uber.org/fx"
)

// NewTelegram: nil, если токен не задан.
func NewTelegram(cfg *config.Config, engine *portfolio.Engine, s *runner.Scheduler, log *notify.EventLog) (*service.Telegram, error) {
	if cfg.Telegram.Token == "" {
		logger.Info("[TELEGRAM] token not set, notifications go to log")
		return nil, nil
	}
	return service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, engine, s, log)
}

// NewNotifier: телеграм или лог.
func NewNotifier(t *service.Telegram) notify.Notifier {
	if t == nil {
		return notify.NewStdout()
	}
	return t
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewTelegram, // *service.Telegram
			NewNotifier, // notify.Notifier
		),
		fx.Invoke(func(bus *notify.Bus, n notify.Notifier) {
			bus.Subscribe(notify.Forward(n))
		}),
		fx.Invoke(func(lc fx.Lifecycle, t *service.Telegram, ctx context.Context) {
			if t == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go t.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					t.Stop()
					return nil
				},
			})
		}),
	)
}
