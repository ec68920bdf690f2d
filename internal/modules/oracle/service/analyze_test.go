package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"paper_trader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisPromptKeepsLastTicks(t *testing.T) {
	h := make([]float64, 40)
	for i := range h {
		h[i] = float64(i + 1)
	}
	prompt := AnalysisPrompt(models.MarketSnapshot{Symbol: "TSLA", Price: 41, History: h}, models.StrategyDegen)

	assert.Contains(t, prompt, "TSLA")
	assert.Contains(t, prompt, "Last 15 ticks: [26.0000,")
	assert.NotContains(t, prompt, "25.0000")
	assert.Contains(t, prompt, models.Presets[models.StrategyDegen].Tone)
}

func TestLLMAnalyze(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "BUY. Sentiment 70.")
	defer srv.Close()
	llm := NewLLM(LLMConfig{URL: srv.URL, APIKey: "k", Model: "m"})

	text, err := llm.AnalyzeMarket(context.Background(), validRequest().Market[0], models.StrategyConservative)
	require.NoError(t, err)
	assert.Equal(t, "BUY. Sentiment 70.", text)

	positions := []models.Position{{Symbol: "AAPL", Amount: 1, AvgPrice: 100, PnLUSD: -5}}
	text, err = llm.AnalyzePortfolio(context.Background(), positions, models.StrategyConservative)
	require.NoError(t, err)
	assert.Equal(t, "BUY. Sentiment 70.", text)
}

func TestLLMAnalyzeFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	noKey := NewLLM(LLMConfig{URL: srv.URL})
	_, err := noKey.AnalyzeMarket(context.Background(), validRequest().Market[0], "")
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)

	llm := NewLLM(LLMConfig{URL: srv.URL, APIKey: "k"})
	_, err = llm.AnalyzeMarket(context.Background(), models.MarketSnapshot{Symbol: "AAPL"}, "")
	assert.ErrorIs(t, err, models.ErrStaleQuote)

	text, err := llm.AnalyzePortfolio(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, noPositions, text)
}

func TestRulesAnalyzeMarket(t *testing.T) {
	tests := []struct {
		name    string
		m       models.MarketSnapshot
		verdict string
	}{
		{"higher low", models.MarketSnapshot{Symbol: "AAPL", Price: 103, History: []float64{100, 99, 101, 102, 100.5, 103}}, "BUY"},
		{"below range", models.MarketSnapshot{Symbol: "AAPL", Price: 90, History: []float64{100, 99, 101, 102}}, "SELL"},
		{"falling knife", models.MarketSnapshot{Symbol: "AAPL", Price: 95, History: []float64{100, 99, 97, 96, 95}}, "DUMP IT"},
		{"flat", models.MarketSnapshot{Symbol: "AAPL", Price: 100, History: []float64{100, 100, 100, 100}}, "HOLD"},
		{"no history", models.MarketSnapshot{Symbol: "AAPL", Price: 100}, "HOLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := NewRules().AnalyzeMarket(context.Background(), tt.m, models.StrategyConservative)
			require.NoError(t, err)
			assert.Contains(t, text, "AAPL @ ")
			assert.Contains(t, text, ": "+tt.verdict+".")
		})
	}
}

func TestRulesAnalyzePortfolio(t *testing.T) {
	r := NewRules()

	text, err := r.AnalyzePortfolio(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, noPositions, text)

	text, err = r.AnalyzePortfolio(context.Background(), []models.Position{
		{Symbol: "AAPL", PnLUSD: 12, PnLPercent: 1.2},
		{Symbol: "TSLA", PnLUSD: -30, PnLPercent: -3},
	}, "")
	require.NoError(t, err)
	assert.Contains(t, text, "AAPL: $12.00 (1.20%)")
	assert.Contains(t, text, "Total PnL -$18.00.")
	assert.Contains(t, text, "Weakest: TSLA")
}
