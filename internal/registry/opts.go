package registry

type Opt func(*Registry)

// WithShopLimit installs a per-owner shop count limit.
func WithShopLimit(fn LimitFunc) Opt {
	return func(r *Registry) {
		r.limit = fn
	}
}
