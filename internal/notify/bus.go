package notify

import (
	"sync"

	"paper_trader/internal/models"
)

// Bus: синхронный fan-out доменных событий.
// Подписчики должны быть быстрыми, медленные работу уводят в свою очередь.
type Bus struct {
	mu   sync.RWMutex
	subs []func(models.Event)
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(fn func(models.Event)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
