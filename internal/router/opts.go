package router

import "time"

type Opt func(*Router)

// WithMessenger wires player chat feedback.
func WithMessenger(m Messenger) Opt {
	return func(r *Router) {
		r.messenger = m
	}
}

// WithSessionTTL sets how long unresolved sessions survive.
func WithSessionTTL(d time.Duration) Opt {
	return func(r *Router) {
		r.ttl = d
	}
}

// WithOpTimeout bounds confirmed operations.
func WithOpTimeout(d time.Duration) Opt {
	return func(r *Router) {
		r.opTimeout = d
	}
}
