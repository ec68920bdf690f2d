package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount REAL NOT NULL,
	price REAL NOT NULL,
	cause TEXT NOT NULL,
	realized_pnl_usd REAL NOT NULL DEFAULT 0,
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
`

// SQLite: локальный журнал в одном файле.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// пишет один воркер
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("[JOURNAL] sqlite at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(ctx context.Context, rec models.TradeRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite.Append %s: %w", rec.ID, err)
		}
	}()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (id, symbol, side, amount, price, cause, realized_pnl_usd, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Symbol, string(rec.Side), rec.Amount, rec.Price,
		string(rec.Cause), rec.RealizedPnLUSD, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Count: сколько записей в журнале (для проверок и /status).
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
