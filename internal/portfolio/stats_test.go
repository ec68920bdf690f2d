package portfolio

import (
	"math"
	"testing"

	"paper_trader/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestApplyRealized(t *testing.T) {
	var s models.BotStats

	s = ApplyRealized(s, 100)
	s = ApplyRealized(s, -40)
	s = ApplyRealized(s, -30)
	s = ApplyRealized(s, 0)
	s = ApplyRealized(s, 50)

	assert.Equal(t, 2, s.Wins)
	// нулевой результат считается убытком
	assert.Equal(t, 3, s.Losses)
	assert.InDelta(t, 80.0, s.TotalProfitUSD, 1e-12)
	assert.InDelta(t, 150.0, s.GrossProfit, 1e-12)
	assert.InDelta(t, 70.0, s.GrossLoss, 1e-12)
	assert.InDelta(t, 100.0, s.PeakPnL, 1e-12)
	assert.InDelta(t, 70.0, s.MaxDrawdown, 1e-12)
}

func TestPerformanceOf(t *testing.T) {
	tests := []struct {
		name       string
		stats      models.BotStats
		winRate    float64
		factor     float64
		factorText string
	}{
		{"no trades", models.BotStats{}, 0, 0, "0.00"},
		{"only wins", models.BotStats{Wins: 2, GrossProfit: 10}, 100, math.Inf(1), "∞"},
		{"mixed", models.BotStats{Wins: 1, Losses: 3, GrossProfit: 30, GrossLoss: 20}, 25, 1.5, "1.50"},
		{"only losses", models.BotStats{Losses: 1, GrossLoss: 5}, 0, 0, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PerformanceOf(tt.stats)
			assert.False(t, math.IsNaN(p.WinRate))
			assert.InDelta(t, tt.winRate, p.WinRate, 1e-9)
			if math.IsInf(tt.factor, 1) {
				assert.True(t, math.IsInf(p.ProfitFactor, 1))
			} else {
				assert.InDelta(t, tt.factor, p.ProfitFactor, 1e-9)
			}
			assert.Equal(t, tt.factorText, p.ProfitFactorText)
		})
	}
}
