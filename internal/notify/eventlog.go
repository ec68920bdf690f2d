package notify

import (
	"sync"
	"time"

	"paper_trader/internal/models"
)

const DefaultLogCapacity = 50

// EventLog: кольцо последних записей активности, новые первыми.
type EventLog struct {
	mu   sync.Mutex
	buf  []models.LogEntry
	head int // куда писать следующую
	size int
	now  func() time.Time
}

func NewEventLog(capacity int, now func() time.Time) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &EventLog{
		buf: make([]models.LogEntry, capacity),
		now: now,
	}
}

func (l *EventLog) Append(message string, severity models.Severity, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.head] = models.LogEntry{
		At:       l.now(),
		Message:  message,
		Severity: severity,
		Symbol:   symbol,
	}
	l.head = (l.head + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
}

// Entries: копия, от новой к старой.
func (l *EventLog) Entries() []models.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.LogEntry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.head - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Handle: подписчик шины: пишет сообщение события в лог.
// Заливку пишем только если её не покрыло opened/closed (докупка, частичная продажа).
func (l *EventLog) Handle(ev models.Event) {
	if ev.Message == "" || (ev.Kind == models.EventTradeFilled && ev.Covered) {
		return
	}
	sev := ev.Severity
	if sev == "" {
		sev = models.SeverityInfo
	}
	l.Append(ev.Message, sev, ev.Symbol)
}
