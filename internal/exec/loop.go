package exec

import (
	"context"
	"time"
)

const (
	DefaultTickLength = time.Second * 2
	defaultQueueDepth = 1024
)

// Manager is any component that wants periodic work on the update loop.
type Manager interface {
	Tick(context.Context) error
}

// Loop is the single authoritative update thread. All shop state is
// written from closures running on it, which is what makes per-location
// serialization a logical guarantee rather than a lock: two closures
// never run concurrently. Blocking I/O is never done here; it goes to
// the Pool and its result is handed back via Submit.
type Loop struct {
	tickLength time.Duration
	managers   []Manager
	tasks      chan func()
}

func NewLoop(managers []Manager, opts ...LoopOpt) *Loop {
	l := &Loop{
		tickLength: DefaultTickLength,
		managers:   managers,
		tasks:      make(chan func(), defaultQueueDepth),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Register adds a manager to the tick rotation. Must be called before
// Start.
func (l *Loop) Register(m Manager) {
	l.managers = append(l.managers, m)
}

func (l *Loop) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.tickLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Submit queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) Submit(fn func()) {
	l.tasks <- fn
}

// Call runs fn on the loop and waits for it to finish, returning its
// error. It must not be called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Submit(func() {
		done <- fn()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Tick runs every manager once, in registration order.
func (l *Loop) Tick(ctx context.Context) error {
	for _, m := range l.managers {
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
