package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout is returned to a job's callback when the work did not
// finish inside its deadline. The underlying task is abandoned, not
// interrupted; callers must treat its effects as unknown and
// compensate accordingly.
var ErrTimeout = fmt.Errorf("background task timed out")

type job struct {
	fn      func() error
	timeout time.Duration
	done    func(error)
}

// Pool runs blocking work (persistence, ledger calls) off the update
// loop. Callbacks fire on a pool goroutine; callers that need the
// result back on the loop wrap their callback in Loop.Submit.
type Pool struct {
	size int
	jobs chan job
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{
		size: size,
		jobs: make(chan job, size*16),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx)
	}

	<-ctx.Done()
	return nil
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			j.done(p.run(j))
		}
	}
}

func (p *Pool) run(j job) error {
	if j.timeout <= 0 {
		return j.fn()
	}

	result := make(chan error, 1)
	go func() {
		result <- j.fn()
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(j.timeout):
		slog.Warn("abandoning background task after timeout", "timeout", j.timeout)
		return ErrTimeout
	}
}

// Run queues fn for background execution. done is always called exactly
// once with fn's error, or ErrTimeout if the deadline passed first.
// A timeout of zero means no deadline.
func (p *Pool) Run(fn func() error, timeout time.Duration, done func(error)) {
	p.jobs <- job{fn: fn, timeout: timeout, done: done}
}
