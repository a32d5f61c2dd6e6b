package display

import (
	"log/slog"
	"math"
	"time"

	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/shop"
)

const (
	// DefaultRadius is the visibility range in blocks.
	DefaultRadius = 16.0

	defaultRenderTimeout = 2 * time.Second
)

// Position is a player's location in the world, as reported by the
// host's presence feed.
type Position struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceMove  PresenceKind = "move"
	PresenceLeave PresenceKind = "leave"
)

// Presence is one player presence event off the bus.
type Presence struct {
	Kind     PresenceKind `json:"kind"`
	Player   string       `json:"player"`
	Position Position     `json:"position,omitempty"`
}

// handleRef tracks one (player, shop) floating label. ID stays empty
// while the show call is in flight or has failed; a failed show is
// retried on the shop's next state change.
type handleRef struct {
	id string
}

type viewer struct {
	pos     Position
	handles map[shop.Location]*handleRef
}

// Synchronizer keeps every online player's floating shop labels in
// step with registry state and player movement. It is a registry
// Notifier. All state lives on the update loop; every renderer call
// runs on the background pool and is best-effort: a failure means a
// missing label, never a failed trade.
type Synchronizer struct {
	reg  *registry.Registry
	loop *exec.Loop
	pool *exec.Pool

	renderer Renderer
	resolver Resolver
	label    *Label

	radius  float64
	timeout time.Duration

	viewers map[string]*viewer
}

func NewSynchronizer(reg *registry.Registry, loop *exec.Loop, pool *exec.Pool, opts ...Opt) (*Synchronizer, error) {
	label, err := NewLabel("", 0)
	if err != nil {
		return nil, err
	}

	s := &Synchronizer{
		reg:      reg,
		loop:     loop,
		pool:     pool,
		renderer: NopRenderer{},
		label:    label,
		radius:   DefaultRadius,
		timeout:  defaultRenderTimeout,
		viewers:  map[string]*viewer{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// HandlePresence feeds one presence event in. Safe from any goroutine.
func (s *Synchronizer) HandlePresence(p Presence) {
	s.loop.Submit(func() {
		s.handlePresence(p)
	})
}

func (s *Synchronizer) handlePresence(p Presence) {
	if p.Player == "" {
		slog.Debug("dropping presence event without player", "kind", p.Kind)
		return
	}

	switch p.Kind {
	case PresenceJoin, PresenceMove:
		v, ok := s.viewers[p.Player]
		if !ok {
			v = &viewer{handles: map[shop.Location]*handleRef{}}
			s.viewers[p.Player] = v
		}
		v.pos = p.Position
		s.resync(p.Player, v)

	case PresenceLeave:
		v, ok := s.viewers[p.Player]
		if !ok {
			return
		}
		for loc, ref := range v.handles {
			s.hide(ref)
			delete(v.handles, loc)
		}
		delete(s.viewers, p.Player)

	default:
		slog.Debug("ignoring unknown presence event", "kind", p.Kind, "player", p.Player)
	}
}

// resync diffs the viewer's handle set against the shops now in range.
func (s *Synchronizer) resync(player string, v *viewer) {
	inRange := map[shop.Location]shop.Shop{}
	for _, sh := range s.reg.All() {
		if s.visible(v.pos, sh.Location) {
			inRange[sh.Location] = sh
		}
	}

	for loc, ref := range v.handles {
		if _, ok := inRange[loc]; !ok {
			s.hide(ref)
			delete(v.handles, loc)
		}
	}

	for loc, sh := range inRange {
		if _, ok := v.handles[loc]; !ok {
			s.show(player, v, sh)
		}
	}
}

// ShopChanged implements registry.Notifier. Runs on the update loop.
func (s *Synchronizer) ShopChanged(sh shop.Shop) {
	for player, v := range s.viewers {
		if !s.visible(v.pos, sh.Location) {
			continue
		}
		ref, ok := v.handles[sh.Location]
		switch {
		case !ok:
			// Newly created shop inside the viewer's range.
			s.show(player, v, sh)
		case ref.id == "":
			// Earlier show failed or is still in flight; try again.
			delete(v.handles, sh.Location)
			s.show(player, v, sh)
		default:
			s.update(player, ref, sh)
		}
	}
}

// ShopRemoved implements registry.Notifier. Runs on the update loop.
func (s *Synchronizer) ShopRemoved(sh shop.Shop) {
	for _, v := range s.viewers {
		if ref, ok := v.handles[sh.Location]; ok {
			s.hide(ref)
			delete(v.handles, sh.Location)
		}
	}
}

// show renders the label and asks the renderer for a handle. The ref
// is registered immediately so a concurrent resync will not double
// show; the handle id lands on the loop when the call resolves.
func (s *Synchronizer) show(player string, v *viewer, sh shop.Shop) {
	text, err := s.label.Render(sh)
	if err != nil {
		slog.Warn("skipping shop label", "location", sh.Location, "error", err)
		return
	}

	ref := &handleRef{}
	v.handles[sh.Location] = ref

	loc := sh.Location
	showItem := sh.DisplayEnabled && sh.Stock > 0

	var handle string
	s.pool.Run(func() error {
		resolved := s.resolve(player, text)
		h, err := s.renderer.Show(player, loc, resolved, showItem)
		handle = h
		return err
	}, s.timeout, func(err error) {
		s.loop.Submit(func() {
			if err != nil {
				slog.Debug("label show failed", "player", player, "location", loc, "error", err)
				return
			}

			cur, ok := s.viewers[player]
			if !ok || cur.handles[loc] != ref {
				// Viewer left or the handle was replaced while the
				// show was in flight.
				s.hide(&handleRef{id: handle})
				return
			}
			ref.id = handle
		})
	})
}

func (s *Synchronizer) update(player string, ref *handleRef, sh shop.Shop) {
	text, err := s.label.Render(sh)
	if err != nil {
		slog.Warn("skipping shop label", "location", sh.Location, "error", err)
		return
	}

	id := ref.id
	showItem := sh.DisplayEnabled && sh.Stock > 0
	loc := sh.Location

	s.pool.Run(func() error {
		return s.renderer.Update(id, s.resolve(player, text), showItem)
	}, s.timeout, func(err error) {
		if err != nil {
			slog.Debug("label update failed", "player", player, "location", loc, "error", err)
		}
	})
}

func (s *Synchronizer) hide(ref *handleRef) {
	if ref.id == "" {
		return
	}

	id := ref.id
	s.pool.Run(func() error {
		return s.renderer.Hide(id)
	}, s.timeout, func(err error) {
		if err != nil {
			slog.Debug("label hide failed", "handle", id, "error", err)
		}
	})
}

// resolve runs the placeholder collaborator, falling back to the raw
// text on any failure.
func (s *Synchronizer) resolve(player, text string) string {
	if s.resolver == nil {
		return text
	}
	resolved, err := s.resolver.Resolve(player, text)
	if err != nil {
		slog.Debug("placeholder resolution failed", "player", player, "error", err)
		return text
	}
	return resolved
}

func (s *Synchronizer) visible(pos Position, loc shop.Location) bool {
	if pos.World != loc.World {
		return false
	}
	dx := pos.X - (float64(loc.X) + 0.5)
	dy := pos.Y - (float64(loc.Y) + 0.5)
	dz := pos.Z - (float64(loc.Z) + 0.5)
	return math.Sqrt(dx*dx+dy*dy+dz*dz) <= s.radius
}
