package service

import (
	"context"

	"paper_trader/internal/models"
)

// Journal: append-only аудит сделок. Движок его никогда не читает.
type Journal interface {
	Append(ctx context.Context, rec models.TradeRecord) error
	Close() error
}

// Nop: журнал выключен (journal.driver: none).
type Nop struct{}

func (Nop) Append(context.Context, models.TradeRecord) error { return nil }
func (Nop) Close() error                                     { return nil }
