package service

import (
	"context"
	"sync"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
)

const (
	DefaultBuffer = 256
	appendTimeout = 5 * time.Second
)

// Writer уводит запись журнала из горячего пути: Handle только кладёт
// в очередь, пишет отдельная горутина. Переполнение = запись теряется с warn.
type Writer struct {
	j     Journal
	queue chan models.TradeRecord

	once sync.Once
	done chan struct{}
}

func NewWriter(j Journal, buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Writer{
		j:     j,
		queue: make(chan models.TradeRecord, buffer),
		done:  make(chan struct{}),
	}
}

// Handle: подписчик шины событий.
func (w *Writer) Handle(ev models.Event) {
	if ev.Kind != models.EventTradeFilled || ev.Trade == nil {
		return
	}
	select {
	case w.queue <- *ev.Trade:
	default:
		logger.Warn("[JOURNAL] queue full, dropped trade %s %s", ev.Trade.Symbol, ev.Trade.ID)
	}
}

// Run пишет до отмены ctx, потом дописывает то что осталось в очереди.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
		default:
			return
		}
	}
}

func (w *Writer) write(rec models.TradeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := w.j.Append(ctx, rec); err != nil {
		logger.Error("[JOURNAL] %v", err)
	}
}

// Wait: дождаться выхода Run и закрыть журнал.
func (w *Writer) Wait() error {
	<-w.done
	var err error
	w.once.Do(func() { err = w.j.Close() })
	return err
}
