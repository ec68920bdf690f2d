package runner

import (
	"context"
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

// Analyst: текстовые обзоры для чата, на торговлю не влияют.
type Analyst interface {
	AnalyzeMarket(ctx context.Context, m models.MarketSnapshot, strategy models.Strategy) (string, error)
	AnalyzePortfolio(ctx context.Context, positions []models.Position, strategy models.Strategy) (string, error)
}

// Analyze: обзор символа, а с пустым symbol обзор открытых позиций.
func (s *Scheduler) Analyze(ctx context.Context, symbol string) (string, error) {
	if s.opt.Analyst == nil {
		return "", fmt.Errorf("%w: no analyst configured", models.ErrOracleUnavailable)
	}
	strategy := s.Config().Strategy

	if symbol == "" {
		positions := s.p.Snapshot().Positions
		logger.Info("[AGENT] portfolio review, %d positions", len(positions))
		return s.opt.Analyst.AnalyzePortfolio(ctx, positions, strategy)
	}

	snap, err := s.marketSnapshot(ctx, symbol)
	if err != nil {
		return "", err
	}
	logger.Info("[AGENT] review %s @ %.4f", symbol, snap.Price)
	return s.opt.Analyst.AnalyzeMarket(ctx, snap, strategy)
}
