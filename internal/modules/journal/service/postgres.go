package service

import (
	"context"
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/db"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS paper_trades (
	id UUID PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	cause TEXT NOT NULL,
	realized_pnl_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_paper_trades_executed_at ON paper_trades(executed_at);
`

// Postgres: журнал в общей базе через TxManager.
type Postgres struct {
	db db.TxManager
}

func NewPostgres(ctx context.Context, tx db.TxManager) (*Postgres, error) {
	p := &Postgres{db: tx}
	err := tx.RunMaster(ctx, func(ctxTx context.Context, t db.Transaction) error {
		_, err := t.Exec(ctxTx, pgSchema)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pg.migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) Append(ctx context.Context, rec models.TradeRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Append %s: %w", rec.ID, err)
		}
	}()

	return p.db.RunMaster(ctx, func(ctxTx context.Context, t db.Transaction) error {
		_, err := t.Exec(ctxTx, `
			INSERT INTO paper_trades (id, symbol, side, amount, price, cause, realized_pnl_usd, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.Symbol, string(rec.Side), rec.Amount, rec.Price,
			string(rec.Cause), rec.RealizedPnLUSD, rec.Timestamp,
		)
		return err
	})
}

// Close ничего не делает: пулом владеет модуль.
func (p *Postgres) Close() error { return nil }
