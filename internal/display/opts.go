package display

import "time"

type Opt func(*Synchronizer)

// WithRenderer wires the host's floating-label collaborator.
func WithRenderer(r Renderer) Opt {
	return func(s *Synchronizer) {
		s.renderer = r
	}
}

// WithResolver wires the host's placeholder-text collaborator.
func WithResolver(r Resolver) Opt {
	return func(s *Synchronizer) {
		s.resolver = r
	}
}

// WithLabel replaces the default label template.
func WithLabel(l *Label) Opt {
	return func(s *Synchronizer) {
		s.label = l
	}
}

// WithRadius sets the visibility range in blocks.
func WithRadius(r float64) Opt {
	return func(s *Synchronizer) {
		s.radius = r
	}
}

// WithRenderTimeout bounds each renderer call.
func WithRenderTimeout(d time.Duration) Opt {
	return func(s *Synchronizer) {
		s.timeout = d
	}
}
