package models

// Preset: описание стратегии для оракула и для вывода в чат.
type Preset struct {
	Name        string
	Description string
	// Tone: как оракул должен трактовать риск.
	Tone string
	// DropLimitPct: падение за последнюю точку, при котором вход запрещён ("падающий нож").
	DropLimitPct float64
}

var Presets = map[Strategy]Preset{
	StrategyConservative: {
		Name:         "🟢 Консервативный",
		Description:  "Минимальный риск, только подтверждённый разворот",
		Tone:         "Prefer capital preservation. Enter only on a confirmed higher low.",
		DropLimitPct: 2,
	},
	StrategyAggressive: {
		Name:         "🟡 Агрессивный",
		Description:  "Входы по импульсу, шире допуск по просадке",
		Tone:         "Accept moderate drawdowns for momentum entries.",
		DropLimitPct: 3,
	},
	StrategyDegen: {
		Name:         "🔴 Degen",
		Description:  "Максимальный риск, только для опытных",
		Tone:         "Maximise upside, tolerate high volatility.",
		DropLimitPct: 5,
	},
}

// PresetFor: пресет стратегии, для неизвестной, консервативный.
func PresetFor(s Strategy) Preset {
	if p, ok := Presets[s]; ok {
		return p
	}
	return Presets[StrategyConservative]
}
