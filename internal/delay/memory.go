package delay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryExecutor arms triggers with in-process timers. Not durable across
// restarts; the reconciliation scan in the scheduler covers rows whose timer
// was lost.
type MemoryExecutor struct {
	mu      sync.Mutex
	handler Handler
	timers  map[string]*time.Timer
	stopped bool
}

func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{timers: make(map[string]*time.Timer)}
}

// Bind sets the fire handler. Must be called before arming.
func (e *MemoryExecutor) Bind(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *MemoryExecutor) ArmAfter(_ context.Context, delay time.Duration, p FirePayload) (string, error) {
	id := uuid.NewString()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return id, nil
	}
	e.timers[id] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, id)
		h := e.handler
		e.mu.Unlock()
		if h != nil {
			h(context.Background(), p)
		}
	})
	return id, nil
}

// Start is a no-op; timers dispatch themselves.
func (e *MemoryExecutor) Start() {}

// Stop cancels all pending timers.
func (e *MemoryExecutor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}
