package service

import (
	"fmt"
	"math"
	"strings"

	"paper_trader/internal/models"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"
)

type wireDecision struct {
	Symbol    string `json:"symbol"`
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
	SL        any    `json:"sl"`
	TP        any    `json:"tp"`
}

// ParseDecision вытаскивает решение из ответа модели: снимает ```-обёртку,
// берёт текст от первой { до последней }, обрезанный ответ пытается закрыть.
func ParseDecision(text string) (models.Decision, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return models.Decision{}, fmt.Errorf("%w: no json object in %q", models.ErrOracleMalformed, short(text))
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		// обрезали посреди строки
		text = text[start:] + `"}`
	} else {
		text = text[start : end+1]
	}

	var w wireDecision
	if err := sonic.UnmarshalString(text, &w); err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", models.ErrOracleMalformed, err)
	}
	if w.Symbol == "" || w.Action == "" {
		return models.Decision{}, fmt.Errorf("%w: incomplete json", models.ErrOracleMalformed)
	}

	action := models.Action(strings.ToLower(strings.TrimSpace(w.Action)))
	switch action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return models.Decision{}, fmt.Errorf("%w: unknown action %q", models.ErrOracleMalformed, w.Action)
	}

	return models.Decision{
		Symbol:     strings.TrimSpace(w.Symbol),
		Action:     action,
		Reasoning:  w.Reasoning,
		StopLoss:   level(w.SL),
		TakeProfit: level(w.TP),
	}, nil
}

// level: число или строка с числом, только положительное.
func level(v any) *float64 {
	if v == nil {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || !(f > 0) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func short(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
