package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/trade"
)

const (
	// DefaultSessionTTL is how long an unresolved session survives
	// without new events before it is dropped.
	DefaultSessionTTL = 30 * time.Second

	// defaultOpTimeout bounds the background half of a confirmed
	// operation (transaction or registry mutation).
	defaultOpTimeout = 15 * time.Second
)

// Messenger delivers chat text back to a player. Implementations are
// best-effort and must not block.
type Messenger interface {
	Send(player, text string)
}

// discard is used when no messenger is wired.
type discard struct{}

func (discard) Send(string, string) {}

// Router turns host interaction events into registry and transaction
// calls. It owns per-player sessions and nothing else; all shop data
// stays in the registry. Session state is touched only on the update
// loop.
type Router struct {
	reg  *registry.Registry
	proc *trade.Processor
	loop *exec.Loop

	messenger Messenger
	sessions  map[string]*session

	ttl       time.Duration
	opTimeout time.Duration
	now       func() time.Time
}

func New(reg *registry.Registry, proc *trade.Processor, loop *exec.Loop, opts ...Opt) *Router {
	r := &Router{
		reg:       reg,
		proc:      proc,
		loop:      loop,
		messenger: discard{},
		sessions:  map[string]*session{},
		ttl:       DefaultSessionTTL,
		opTimeout: defaultOpTimeout,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Dispatch hands one host event to the router. Safe from any
// goroutine; the event is processed on the update loop.
func (r *Router) Dispatch(ev Event) {
	r.loop.Submit(func() {
		r.handle(ev)
	})
}

// Tick expires idle sessions. Runs on the update loop.
func (r *Router) Tick(ctx context.Context) error {
	now := r.now()
	for player, s := range r.sessions {
		if now.After(s.expires) {
			delete(r.sessions, player)
			if s.state != stateIdle {
				r.messenger.Send(player, "Shop action timed out.")
			}
		}
	}
	return nil
}

func (r *Router) handle(ev Event) {
	if ev.Player == "" {
		slog.Debug("dropping host event without player", "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case KindCommand:
		r.handleCommand(ev)
	case KindInteract:
		r.handleInteract(ev)
	case KindConfirm:
		r.handleConfirm(ev)
	case KindCancel:
		r.handleCancel(ev)
	case KindBreak:
		r.handleBreak(ev)
	case KindRestock:
		r.handleRestock(ev)
	case KindLeave:
		delete(r.sessions, ev.Player)
	default:
		slog.Debug("ignoring unknown host event", "kind", ev.Kind, "player", ev.Player)
	}
}

// session returns the player's session, creating an idle one when
// absent, and refreshes its expiry.
func (r *Router) session(player string) *session {
	s, ok := r.sessions[player]
	if !ok {
		s = &session{player: player}
		r.sessions[player] = s
	}
	s.touch(r.ttl, r.now())
	return s
}

func (r *Router) handleCommand(ev Event) {
	if len(ev.Args) == 0 {
		r.messenger.Send(ev.Player, "Usage: shop create|remove|price|display")
		return
	}

	s := r.session(ev.Player)

	switch ev.Args[0] {
	case "create":
		sell, buy, err := parsePrices(ev.Args[1:])
		if err != nil {
			r.messenger.Send(ev.Player, fmt.Sprintf("Bad prices: %v", err))
			return
		}
		s.state = stateAwaitingTarget
		s.intent = intent{kind: intentCreate, sellPrice: sell, buyPrice: buy}
		r.messenger.Send(ev.Player, "Click the container to turn into a shop.")

	case "remove":
		s.state = stateAwaitingTarget
		s.intent = intent{kind: intentRemove}
		r.messenger.Send(ev.Player, "Click the shop container to remove.")

	case "price":
		sell, buy, err := parsePrices(ev.Args[1:])
		if err != nil {
			r.messenger.Send(ev.Player, fmt.Sprintf("Bad prices: %v", err))
			return
		}
		s.state = stateAwaitingTarget
		s.intent = intent{kind: intentPrice, sellPrice: sell, buyPrice: buy}
		r.messenger.Send(ev.Player, "Click the shop container to reprice.")

	case "display":
		if len(ev.Args) != 2 || (ev.Args[1] != "on" && ev.Args[1] != "off") {
			r.messenger.Send(ev.Player, "Usage: shop display on|off")
			return
		}
		s.state = stateAwaitingTarget
		s.intent = intent{kind: intentDisplay, display: ev.Args[1] == "on"}
		r.messenger.Send(ev.Player, "Click the shop container to toggle its display.")

	default:
		r.messenger.Send(ev.Player, fmt.Sprintf("Unknown shop command %q.", ev.Args[0]))
	}
}

func (r *Router) handleInteract(ev Event) {
	s := r.session(ev.Player)

	switch s.state {
	case stateAwaitingTarget:
		r.targetIntent(s, ev)

	case stateIdle:
		r.startTransaction(s, ev)

	default:
		// Clicking elsewhere mid-confirmation is noise, not an error.
		slog.Debug("ignoring interact in pending state",
			"player", ev.Player, "state", s.state.String())
	}
}

// targetIntent binds the clicked container to the session's pending
// command intent.
func (r *Router) targetIntent(s *session, ev Event) {
	existing, registered := r.reg.Get(ev.Location)

	switch s.intent.kind {
	case intentCreate:
		if registered {
			r.reset(s, "That container is already a shop.")
			return
		}
		if !r.proc.LedgerAvailable() {
			r.reset(s, "Shops are unavailable: no currency service is connected.")
			return
		}
		if err := ev.Item.Validate(); err != nil {
			r.reset(s, "Hold the item you want to trade and try again.")
			return
		}
		if ev.Capacity <= 0 {
			r.reset(s, "That container cannot hold stock.")
			return
		}
		s.target = ev.Location
		s.item = ev.Item
		s.capacity = ev.Capacity
		s.state = stateCreationPending
		r.messenger.Send(s.player, fmt.Sprintf(
			"Create a shop trading %s (sell %s, buy %s)? Confirm or cancel.",
			s.item.Name(), price(s.intent.sellPrice), price(s.intent.buyPrice)))

	case intentRemove, intentPrice, intentDisplay:
		if !registered {
			r.reset(s, "That container is not a shop.")
			return
		}
		s.target = ev.Location
		s.item = existing.Item
		s.state = stateEditPending
		switch s.intent.kind {
		case intentRemove:
			r.messenger.Send(s.player, "Remove this shop? Confirm or cancel.")
		case intentPrice:
			r.messenger.Send(s.player, fmt.Sprintf(
				"Set prices to sell %s, buy %s? Confirm or cancel.",
				price(s.intent.sellPrice), price(s.intent.buyPrice)))
		case intentDisplay:
			r.messenger.Send(s.player, "Toggle the shop display? Confirm or cancel.")
		}

	default:
		r.reset(s, "")
	}
}

// startTransaction begins a buy or sell confirmation against a
// registered shop. Clicks on unregistered containers are ignored.
func (r *Router) startTransaction(s *session, ev Event) {
	target, ok := r.reg.Get(ev.Location)
	if !ok {
		return
	}

	direction := trade.BuyFromShop
	if ev.Action == ActionPrimary {
		direction = trade.SellToShop
	}

	qty := ev.Quantity
	if qty <= 0 {
		qty = 1
	}

	s.txn = trade.Request{
		Player:    ev.Player,
		Location:  ev.Location,
		Direction: direction,
		Quantity:  qty,
	}
	s.state = stateTransactionPending

	var unit float64
	verb := "Buy"
	if direction == trade.BuyFromShop {
		unit = target.SellPrice
	} else {
		unit = target.BuyPrice
		verb = "Sell"
	}
	r.messenger.Send(ev.Player, fmt.Sprintf(
		"%s %d x %s for %s? Confirm or cancel.",
		verb, qty, target.Item.Name(), price(unit*float64(qty))))
}

func (r *Router) handleConfirm(ev Event) {
	s, ok := r.sessions[ev.Player]
	if !ok || s.state == stateIdle || s.state == stateAwaitingTarget {
		slog.Debug("ignoring confirm with nothing pending", "player", ev.Player)
		return
	}

	switch s.state {
	case stateCreationPending:
		r.confirmCreate(s)
	case stateTransactionPending:
		r.confirmTransaction(s)
	case stateEditPending:
		r.confirmEdit(s, ev)
	}

	delete(r.sessions, ev.Player)
}

func (r *Router) confirmCreate(s *session) {
	params := registry.CreateParams{
		Location:       s.target,
		Owner:          s.player,
		Item:           s.item,
		SellPrice:      s.intent.sellPrice,
		BuyPrice:       s.intent.buyPrice,
		Capacity:       s.capacity,
		DisplayEnabled: true,
	}

	r.async(s.player, s.target, func() (*registry.Staged, error) {
		return r.reg.StageCreate(params)
	}, "Shop created.", func(err error) string {
		switch {
		case errors.Is(err, registry.ErrLocationOccupied):
			return "That container is already a shop."
		case errors.Is(err, registry.ErrShopLimit):
			return "You have reached your shop limit."
		default:
			return "Could not create the shop."
		}
	})
}

func (r *Router) confirmTransaction(s *session) {
	req := s.txn
	proc := r.proc
	msg := r.messenger
	timeout := r.opTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		rec, err := proc.Execute(ctx, req)
		if err != nil {
			msg.Send(req.Player, tradeFailure(err))
			return
		}
		msg.Send(req.Player, fmt.Sprintf("Traded %d x %s for %s.",
			rec.Quantity, rec.Item.Name(), price(rec.Total)))
	}()
}

func (r *Router) confirmEdit(s *session, ev Event) {
	actor := registry.Actor{ID: s.player, Admin: ev.Admin}
	in := s.intent

	switch in.kind {
	case intentRemove:
		r.async(s.player, s.target, func() (*registry.Staged, error) {
			return r.reg.StageRemove(s.target, actor)
		}, "Shop removed.", editFailure)

	case intentPrice:
		r.async(s.player, s.target, func() (*registry.Staged, error) {
			return r.reg.StageUpdate(s.target, actor, func(sh *shop.Shop) error {
				sh.SellPrice = in.sellPrice
				sh.BuyPrice = in.buyPrice
				return nil
			})
		}, "Prices updated.", editFailure)

	case intentDisplay:
		r.async(s.player, s.target, func() (*registry.Staged, error) {
			return r.reg.StageUpdate(s.target, actor, func(sh *shop.Shop) error {
				sh.DisplayEnabled = in.display
				return nil
			})
		}, "Display updated.", editFailure)
	}
}

func (r *Router) handleCancel(ev Event) {
	s, ok := r.sessions[ev.Player]
	if !ok || s.state == stateIdle {
		return
	}
	delete(r.sessions, ev.Player)
	r.messenger.Send(ev.Player, "Cancelled.")
}

// handleBreak removes the shop when its container is broken by the
// owner or an admin. Anyone else gets a refusal; the host is expected
// to have cancelled the break itself.
func (r *Router) handleBreak(ev Event) {
	if _, ok := r.reg.Get(ev.Location); !ok {
		return
	}

	actor := registry.Actor{ID: ev.Player, Admin: ev.Admin}
	r.async(ev.Player, ev.Location, func() (*registry.Staged, error) {
		return r.reg.StageRemove(ev.Location, actor)
	}, "Shop removed.", func(err error) string {
		if errors.Is(err, registry.ErrNotOwner) {
			return "You cannot break someone else's shop."
		}
		return "Could not remove the shop."
	})
}

// handleRestock applies the stock delta the host observed when the
// owner closed the container, clamped to the container's bounds.
func (r *Router) handleRestock(ev Event) {
	cur, ok := r.reg.Get(ev.Location)
	if !ok {
		return
	}
	if ev.Player != cur.Owner && !ev.Admin {
		slog.Debug("ignoring restock from non-owner",
			"player", ev.Player, "location", ev.Location)
		return
	}
	if ev.Delta == 0 {
		return
	}

	actor := registry.Actor{ID: ev.Player, Admin: ev.Admin}
	delta := ev.Delta
	r.async(ev.Player, ev.Location, func() (*registry.Staged, error) {
		return r.reg.StageUpdate(ev.Location, actor, func(sh *shop.Shop) error {
			sh.Stock += delta
			if sh.Stock < 0 {
				sh.Stock = 0
			}
			if sh.Stock > sh.Capacity {
				sh.Stock = sh.Capacity
			}
			return nil
		})
	}, "", editFailure)
}

// async stages a registry mutation under the location's transaction
// queue and messages the player with the outcome. An empty success
// message stays silent.
func (r *Router) async(player string, loc shop.Location, stage func() (*registry.Staged, error), okMsg string, failMsg func(error) string) {
	proc := r.proc
	msg := r.messenger
	timeout := r.opTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := proc.RunExclusive(ctx, loc, stage)
		switch {
		case err != nil:
			slog.Warn("shop mutation failed", "player", player, "location", loc, "error", err)
			msg.Send(player, failMsg(err))
		case okMsg != "":
			msg.Send(player, okMsg)
		}
	}()
}

// reset drops the session back to idle, optionally with a message.
func (r *Router) reset(s *session, text string) {
	delete(r.sessions, s.player)
	if text != "" {
		r.messenger.Send(s.player, text)
	}
}

func editFailure(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		return "You do not own that shop."
	case errors.Is(err, registry.ErrNotFound):
		return "That shop no longer exists."
	default:
		return "Could not update the shop."
	}
}

func tradeFailure(err error) string {
	switch {
	case errors.Is(err, trade.ErrShopNotFound):
		return "That shop no longer exists."
	case errors.Is(err, trade.ErrShopSuspended):
		return "That shop is closed right now."
	case errors.Is(err, trade.ErrDirectionUnsupported):
		return "The shop does not trade that way."
	case errors.Is(err, trade.ErrInsufficientStock):
		return "The shop is out of stock."
	case errors.Is(err, trade.ErrInsufficientSpace):
		return "The shop container is full."
	case errors.Is(err, trade.ErrInsufficientFunds):
		return "You cannot afford that."
	case errors.Is(err, trade.ErrInsufficientItems):
		return "You do not have enough items."
	case errors.Is(err, trade.ErrSelfTradeDisabled):
		return "You cannot trade with your own shop."
	case errors.Is(err, trade.ErrLedgerUnavailable):
		return "The bank is unavailable, try again later."
	default:
		return "The trade failed."
	}
}

// parsePrices reads up to two price arguments: sell price then buy
// price. A missing argument disables that direction.
func parsePrices(args []string) (sell, buy float64, err error) {
	if len(args) == 0 || len(args) > 2 {
		return 0, 0, fmt.Errorf("expected a sell price and an optional buy price")
	}

	sell, err = strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a price", args[0])
	}
	if len(args) == 2 {
		buy, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%q is not a price", args[1])
		}
	}

	if sell < 0 || buy < 0 {
		return 0, 0, fmt.Errorf("prices must not be negative")
	}
	if sell == 0 && buy == 0 {
		return 0, 0, fmt.Errorf("at least one direction must be priced")
	}
	return sell, buy, nil
}

func price(v float64) string {
	if v == 0 {
		return "disabled"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
