package journal

import (
	"context"
	"fmt"
	"strings"

	"paper_trader/internal/modules/config"
	"paper_trader/internal/modules/journal/service"
	"paper_trader/internal/notify"
	"paper_trader/pkg/db"
	"paper_trader/pkg/logger"

	"go.uber.org/fx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"

	// журналу хватает пары соединений: пишет один Writer
	pgMaxConns = 2
)

// NewJournal открывает бэкенд по journal.driver.
func NewJournal(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (service.Journal, error) {
	switch strings.ToLower(cfg.Journal.Driver) {
	case DriverSQLite, "":
		return service.NewSQLite(cfg.Journal.Path)

	case DriverPostgres:
		tx, err := db.Connect(ctx, db.PoolConfig{
			DSN:      cfg.Journal.DSN,
			MaxConns: pgMaxConns,
		})
		if err != nil {
			return nil, err
		}
		if err = tx.Ping(ctx); err != nil {
			tx.Close()
			return nil, fmt.Errorf("journal postgres ping: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				tx.Close()
				return nil
			},
		})
		logger.Info("[JOURNAL] postgres")
		return service.NewPostgres(ctx, tx)

	case DriverNone:
		logger.Info("[JOURNAL] disabled")
		return service.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
}

func NewWriter(cfg *config.Config, j service.Journal) *service.Writer {
	return service.NewWriter(j, cfg.Journal.Buffer)
}

func run(lc fx.Lifecycle, appCtx context.Context, bus *notify.Bus, w *service.Writer) {
	ctx, cancel := context.WithCancel(appCtx)
	bus.Subscribe(w.Handle)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return w.Wait()
		},
	})
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			NewJournal,
			NewWriter,
		),
		fx.Invoke(run),
	)
}
