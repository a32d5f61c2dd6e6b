package registry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/storage"
)

// Actor identifies who is performing a registry mutation. System
// carries admin rights and is used for engine-internal mutations such
// as transaction stock commits.
type Actor struct {
	ID    string
	Admin bool
}

var System = Actor{Admin: true}

func (a Actor) mayManage(s *shop.Shop) bool {
	return a.Admin || a.ID == s.Owner
}

// Notifier receives change and removal notifications after a mutation
// has been committed. Notifiers run synchronously on the update loop
// and must not block.
type Notifier interface {
	ShopChanged(shop.Shop)
	ShopRemoved(shop.Shop)
}

// LimitFunc returns the maximum number of shops a player may own.
// Zero or negative means unlimited.
type LimitFunc func(owner string) int

// Registry is the single source of truth for all registered shops. It
// is written only from the update loop; every successful mutation is
// persisted to the store before the in-memory state changes, so a
// crash never loses a committed trade.
type Registry struct {
	store     storage.Storer[*shop.Shop]
	shops     map[shop.Location]*shop.Shop
	notifiers []Notifier
	limit     LimitFunc
}

func New(store storage.Storer[*shop.Shop], opts ...Opt) (*Registry, error) {
	r := &Registry{
		store: store,
		shops: make(map[shop.Location]*shop.Shop),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

// load rebuilds the in-memory index from a full store scan. Records
// that no longer validate are skipped with a diagnostic rather than
// failing startup.
func (r *Registry) load() error {
	for id, rec := range r.store.GetAll() {
		if rec == nil {
			continue
		}

		if err := rec.Validate(); err != nil {
			slog.Warn("skipping invalid shop record", "id", id, "error", err)
			continue
		}

		if _, exists := r.shops[rec.Location]; exists {
			return fmt.Errorf("duplicate shop location %s (record %s)", rec.Location, id)
		}

		s := rec.Snapshot()
		r.shops[rec.Location] = &s
	}

	slog.Info("loaded shops", "count", len(r.shops))
	return nil
}

// Subscribe registers a change notifier. Not safe to call once the
// update loop is running mutations.
func (r *Registry) Subscribe(n Notifier) {
	r.notifiers = append(r.notifiers, n)
}

// CreateParams carries the owner-supplied fields for a new shop.
type CreateParams struct {
	Location       shop.Location
	Owner          string
	Item           shop.Item
	SellPrice      float64
	BuyPrice       float64
	Capacity       int
	DisplayEnabled bool
}

// Create registers a new shop, persisting before it becomes visible.
// It stages, persists, and commits in one step, so the store write
// happens on the caller's goroutine; callers on the update loop should
// use StageCreate and run Persist on the worker pool instead.
func (r *Registry) Create(p CreateParams) (shop.Shop, error) {
	st, err := r.StageCreate(p)
	if err != nil {
		return shop.Shop{}, err
	}
	if err := st.Persist(); err != nil {
		return shop.Shop{}, fmt.Errorf("persisting shop: %w", err)
	}
	return st.Commit()
}

// StageCreate validates a new shop without registering it. Loop only.
func (r *Registry) StageCreate(p CreateParams) (*Staged, error) {
	if _, exists := r.shops[p.Location]; exists {
		return nil, ErrLocationOccupied
	}

	if err := r.checkLimit(p.Owner); err != nil {
		return nil, err
	}

	s := &shop.Shop{
		ID:             uuid.New().String(),
		Owner:          p.Owner,
		Location:       p.Location,
		Item:           p.Item,
		SellPrice:      p.SellPrice,
		BuyPrice:       p.BuyPrice,
		Capacity:       p.Capacity,
		DisplayEnabled: p.DisplayEnabled,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &Staged{reg: r, key: p.Location.Key(), next: s, created: true}, nil
}

func (r *Registry) checkLimit(owner string) error {
	if r.limit == nil {
		return nil
	}
	if max := r.limit(owner); max > 0 && len(r.OwnedBy(owner)) >= max {
		return fmt.Errorf("%w (%d)", ErrShopLimit, max)
	}
	return nil
}

// Get returns a snapshot of the shop at loc.
func (r *Registry) Get(loc shop.Location) (shop.Shop, bool) {
	s, ok := r.shops[loc]
	if !ok {
		return shop.Shop{}, false
	}
	return s.Snapshot(), true
}

// All returns snapshots of every registered shop.
func (r *Registry) All() []shop.Shop {
	out := make([]shop.Shop, 0, len(r.shops))
	for _, s := range r.shops {
		out = append(out, s.Snapshot())
	}
	return out
}

// OwnedBy returns snapshots of every shop owned by the given player.
func (r *Registry) OwnedBy(owner string) []shop.Shop {
	var out []shop.Shop
	for _, s := range r.shops {
		if s.Owner == owner {
			out = append(out, s.Snapshot())
		}
	}
	return out
}

// Remove unregisters the shop at loc. The stored record is deleted
// before the in-memory entry; a persistence failure leaves the shop
// registered. Like Create, the store write happens on the caller's
// goroutine; loop-side callers should use StageRemove.
func (r *Registry) Remove(loc shop.Location, actor Actor) error {
	st, err := r.StageRemove(loc, actor)
	if err != nil {
		return err
	}
	if err := st.Persist(); err != nil {
		return fmt.Errorf("deleting shop record: %w", err)
	}
	_, err = st.Commit()
	return err
}

// StageRemove checks that actor may remove the shop at loc without
// unregistering it. Loop only.
func (r *Registry) StageRemove(loc shop.Location, actor Actor) (*Staged, error) {
	s, ok := r.shops[loc]
	if !ok {
		return nil, ErrNotFound
	}

	if !actor.mayManage(s) {
		return nil, ErrNotOwner
	}

	prior := s.Snapshot()
	return &Staged{reg: r, key: loc.Key(), prior: &prior, actor: actor}, nil
}

// Update applies mutate to a working copy of the shop at loc. The copy
// replaces the canonical record only after it validates and persists;
// any failure leaves the in-memory state exactly as it was. Like
// Create, the store write happens on the caller's goroutine; loop-side
// callers should use StageUpdate.
func (r *Registry) Update(loc shop.Location, actor Actor, mutate func(*shop.Shop) error) (shop.Shop, error) {
	st, err := r.StageUpdate(loc, actor, mutate)
	if err != nil {
		return shop.Shop{}, err
	}
	if err := st.Persist(); err != nil {
		return shop.Shop{}, fmt.Errorf("persisting shop: %w", err)
	}
	return st.Commit()
}

// StageUpdate validates a mutation of the shop at loc without applying
// it. Identity fields (id, owner, location, creation time) cannot be
// changed by the mutator. Loop only.
func (r *Registry) StageUpdate(loc shop.Location, actor Actor, mutate func(*shop.Shop) error) (*Staged, error) {
	cur, ok := r.shops[loc]
	if !ok {
		return nil, ErrNotFound
	}

	if !actor.mayManage(cur) {
		return nil, ErrNotOwner
	}

	next := cur.Snapshot()
	if err := mutate(&next); err != nil {
		return nil, err
	}

	// Identity is not editable
	next.ID = cur.ID
	next.Owner = cur.Owner
	next.Location = cur.Location
	next.CreatedAt = cur.CreatedAt

	if err := next.Validate(); err != nil {
		return nil, err
	}

	prior := cur.Snapshot()
	return &Staged{reg: r, key: loc.Key(), prior: &prior, next: &next}, nil
}

// Staged is a validated mutation that has not been persisted or
// committed. Stage on the update loop, Persist from any goroutine
// (typically a pool worker), Commit back on the loop once the persist
// succeeded. A Staged that is never committed leaves the registry
// untouched.
type Staged struct {
	reg     *Registry
	key     string
	prior   *shop.Shop // nil when staging a creation
	next    *shop.Shop // nil when staging a removal
	created bool
	actor   Actor
}

// Persist writes the staged state through to the store. The only
// Staged method safe to call off the update loop.
func (st *Staged) Persist() error {
	if st.next == nil {
		return st.reg.store.Delete(st.key)
	}
	return st.reg.store.Save(st.key, st.next)
}

// Revert writes the pre-mutation state back to the store, for callers
// that reported a Persist as failed and later learned it had landed.
func (st *Staged) Revert() error {
	if st.prior == nil {
		return st.reg.store.Delete(st.key)
	}
	return st.reg.store.Save(st.key, st.prior)
}

// Commit swaps the staged state into the registry and notifies
// subscribers. Loop only, and only after Persist succeeded. A creation
// re-checks occupancy and the owner's shop limit, which can have moved
// at other locations since staging; on failure the caller should
// Revert the persisted record.
func (st *Staged) Commit() (shop.Shop, error) {
	r := st.reg

	switch {
	case st.created:
		if _, exists := r.shops[st.next.Location]; exists {
			return shop.Shop{}, ErrLocationOccupied
		}
		if err := r.checkLimit(st.next.Owner); err != nil {
			return shop.Shop{}, err
		}
		r.shops[st.next.Location] = st.next
		r.notifyChanged(st.next)
		slog.Info("shop created", "location", st.next.Location, "owner", st.next.Owner, "item", st.next.Item.ID)
		return st.next.Snapshot(), nil

	case st.next == nil:
		delete(r.shops, st.prior.Location)
		r.notifyRemoved(st.prior)
		slog.Info("shop removed", "location", st.prior.Location, "actor", st.actor.ID)
		return st.prior.Snapshot(), nil

	default:
		r.shops[st.next.Location] = st.next
		r.notifyChanged(st.next)
		return st.next.Snapshot(), nil
	}
}

func (r *Registry) notifyChanged(s *shop.Shop) {
	for _, n := range r.notifiers {
		n.ShopChanged(s.Snapshot())
	}
}

func (r *Registry) notifyRemoved(s *shop.Shop) {
	for _, n := range r.notifiers {
		n.ShopRemoved(s.Snapshot())
	}
}
