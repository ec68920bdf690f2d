package runner

import (
	"math/rand"
	"sync"
)

// lockedRand: *rand.Rand под мьютексом, сам он не потокобезопасен.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// NewRand: сидируемый источник для Options.Rand.
func NewRand(seed int64) Rand { return newLockedRand(seed) }

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
