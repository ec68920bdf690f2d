package runner

import (
	"context"
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

const agentScanLimit = 10

// AgentScan: ручной скан рынка: символы по карману (budgetUSD > 0),
// первые 10, оракул в режиме входа. Ничего не покупает, только советует.
func (s *Scheduler) AgentScan(ctx context.Context, budgetUSD float64) (models.OracleResult, error) {
	conv := s.p.Converter()
	cfg := s.Config()

	var market []models.MarketSnapshot
	for _, sym := range s.m.Symbols() {
		if len(market) >= agentScanLimit {
			break
		}
		snap, err := s.marketSnapshot(ctx, sym)
		if err != nil {
			logger.Warn("[AGENT] skip %s: %v", sym, err)
			continue
		}
		if budgetUSD > 0 && conv.ToUSD(snap.Price, sym) > budgetUSD {
			continue
		}
		market = append(market, snap)
	}

	if len(market) == 0 {
		return models.OracleResult{}, fmt.Errorf("%w: nothing fits budget %.2f", models.ErrStaleQuote, budgetUSD)
	}

	res := s.o.Evaluate(ctx, models.OracleRequest{
		Mode:     models.ModeEntry,
		Strategy: cfg.Strategy,
		Market:   market,
	})
	logger.Info("[AGENT] %d symbols -> %s %s %s", len(market), res.Kind, res.Decision.Action, res.Decision.Symbol)
	return res, nil
}
