package models

import "time"

type EventKind string

const (
	EventPositionOpened  EventKind = "position_opened"
	EventPositionClosed  EventKind = "position_closed"
	EventStopTriggered   EventKind = "stop_triggered"
	EventTakeProfit      EventKind = "take_profit_triggered"
	EventTradeFilled     EventKind = "trade_filled"
	EventBotAutoDisabled EventKind = "bot_auto_disabled"
	EventBotState        EventKind = "bot_state_changed"
	EventDecision        EventKind = "oracle_decision"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event: доменное событие движка. Подписчики получают его после снятия лока.
type Event struct {
	Kind     EventKind
	At       time.Time
	Symbol   string
	Message  string
	Severity Severity

	Trade    *TradeRecord
	Position *Position
	State    BotState

	// Covered: заливка уже описана событием открытия или закрытия позиции.
	Covered bool
}

// LogEntry: запись кольцевого лога активности.
type LogEntry struct {
	At       time.Time `json:"timestamp"`
	Message  string    `json:"message"`
	Severity Severity  `json:"type"`
	Symbol   string    `json:"symbol,omitempty"`
}
