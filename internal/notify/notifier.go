package notify

import (
	"fmt"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Stdout: заглушка без телеграма, всё уходит в лог.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

var eventEmoji = map[models.EventKind]string{
	models.EventPositionOpened:  "🟢",
	models.EventPositionClosed:  "📕",
	models.EventStopTriggered:   "⛔️",
	models.EventTakeProfit:      "🎯",
	models.EventBotAutoDisabled: "🏁",
	models.EventBotState:        "🤖",
}

// Forward возвращает подписчика шины, пересылающего важные события в нотифайер.
func Forward(n Notifier) func(models.Event) {
	return func(ev models.Event) {
		emoji, ok := eventEmoji[ev.Kind]
		if !ok || n == nil {
			return
		}
		n.Send(FormatEvent(emoji, ev))
	}
}

func FormatEvent(emoji string, ev models.Event) string {
	if ev.Symbol == "" {
		return fmt.Sprintf("%s %s", emoji, ev.Message)
	}
	return fmt.Sprintf("%s [%s] %s", emoji, ev.Symbol, ev.Message)
}
