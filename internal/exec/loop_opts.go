package exec

import "time"

type LoopOpt func(*Loop)

func WithTickLength(tickLength time.Duration) LoopOpt {
	return func(l *Loop) {
		l.tickLength = tickLength
	}
}

func WithQueueDepth(depth int) LoopOpt {
	return func(l *Loop) {
		l.tasks = make(chan func(), depth)
	}
}
