package portfolio

import (
	"paper_trader/internal/currency"
	"paper_trader/internal/modules/config"
	"paper_trader/internal/notify"

	"go.uber.org/fx"
)

func NewFromConfig(cfg *config.Config, bus *notify.Bus) *Engine {
	return NewEngine(Options{
		InitialBalance: cfg.Portfolio.InitialBalance,
		TrailFactor:    cfg.Portfolio.TrailFactor,
		Converter:      currency.New(cfg.Portfolio.Rates),
		Publisher:      bus,
	})
}

// NewEventLog: лента активности, подписанная на шину.
func NewEventLog(bus *notify.Bus) *notify.EventLog {
	l := notify.NewEventLog(notify.DefaultLogCapacity, nil)
	bus.Subscribe(l.Handle)
	return l
}

func Module() fx.Option {
	return fx.Module("portfolio",
		fx.Provide(
			notify.NewBus,
			NewEventLog,
			NewFromConfig, // *Engine
		),
	)
}
