package services

import (
	"sync"
	"time"

	"tradecompass-core/internal/models"
)

// persister coalesces rapid successive step writes into one persistence call
// per step. Scheduling a step that already has a pending timer replaces the
// timer instead of stacking a second write. Writes are fire-and-forget from
// the caller's perspective; Flush forces everything pending out synchronously.
type persister struct {
	mu       sync.Mutex
	debounce time.Duration
	timers   map[models.WorkflowStep]*time.Timer
	write    func(step models.WorkflowStep)
}

func newPersister(debounce time.Duration, write func(step models.WorkflowStep)) *persister {
	return &persister{
		debounce: debounce,
		timers:   make(map[models.WorkflowStep]*time.Timer),
		write:    write,
	}
}

// Schedule queues a write for the step after the debounce window, replacing
// any pending write for the same step.
func (p *persister) Schedule(step models.WorkflowStep) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if timer, exists := p.timers[step]; exists {
		timer.Stop()
	}

	p.timers[step] = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		delete(p.timers, step)
		p.mu.Unlock()

		p.write(step)
	})
}

// CancelAll drops every pending write without executing it. Used on reset so
// stale step data cannot resurface after the in-memory state was cleared.
func (p *persister) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for step, timer := range p.timers {
		timer.Stop()
		delete(p.timers, step)
	}
}

// Flush executes every pending write immediately.
func (p *persister) Flush() {
	p.mu.Lock()
	pending := make([]models.WorkflowStep, 0, len(p.timers))
	for step, timer := range p.timers {
		timer.Stop()
		delete(p.timers, step)
		pending = append(pending, step)
	}
	p.mu.Unlock()

	for _, step := range pending {
		p.write(step)
	}
}
