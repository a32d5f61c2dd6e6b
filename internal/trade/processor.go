package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/shop"
)

// DefaultLedgerTimeout bounds how long a transaction waits on the
// currency ledger before failing closed.
const DefaultLedgerTimeout = 5 * time.Second

// Processor executes buy and sell transactions against the registry,
// ledger, and inventory. Transactions against the same location run
// strictly one at a time in arrival order; different locations are
// free to interleave. All shop-state decisions happen on the update
// loop, all ledger, inventory, and persistence I/O in the background
// pool.
type Processor struct {
	reg  *registry.Registry
	loop *exec.Loop
	pool *exec.Pool

	ledger Ledger
	inv    Inventory

	tax            TaxPolicy
	ledgerTimeout  time.Duration
	allowSelfTrade bool
	onReceipt      func(Receipt)

	// queues has an entry for every location with work in flight; the
	// slice holds operations waiting behind it. Touched only on the
	// loop.
	queues map[shop.Location][]func()
}

func NewProcessor(reg *registry.Registry, loop *exec.Loop, pool *exec.Pool, ledger Ledger, inv Inventory, opts ...ProcessorOpt) *Processor {
	p := &Processor{
		reg:            reg,
		loop:           loop,
		pool:           pool,
		ledger:         ledger,
		inv:            inv,
		ledgerTimeout:  DefaultLedgerTimeout,
		allowSelfTrade: true,
		queues:         map[shop.Location][]func(){},
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.ledger == nil {
		p.ledger = NoLedger{}
	}
	if p.inv == nil {
		p.inv = NullInventory{}
	}

	return p
}

// availability is implemented by ledgers that can report their own
// liveness, such as a bus client tracking responder presence.
type availability interface {
	Available() bool
}

// LedgerAvailable reports whether a currency collaborator is wired in
// and believed reachable. Without one every trade fails closed, so
// callers gate shop creation on it.
func (p *Processor) LedgerAvailable() bool {
	if a, ok := p.ledger.(availability); ok {
		return a.Available()
	}
	_, absent := p.ledger.(NoLedger)
	return !absent
}

type result struct {
	receipt Receipt
	err     error
}

// Execute runs one transaction to completion and returns its receipt.
// The request queues behind any in-flight operation on the same
// location. A context cancellation abandons the wait, not the
// transaction: once queued it still runs and settles.
func (p *Processor) Execute(ctx context.Context, req Request) (Receipt, error) {
	out := make(chan result, 1)

	p.loop.Submit(func() {
		p.enqueue(req.Location, func() {
			p.begin(req, out)
		})
	})

	select {
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case res := <-out:
		return res.receipt, res.err
	}
}

// RunExclusive stages a registry mutation on the update loop with the
// location's queue held, persists it on the pool, and commits it back
// on the loop, so mutations from outside the processor (removal, price
// edits, restocks) cannot interleave with a transaction mid-flight
// against the same shop and never block the loop on the store. A stage
// that returns a nil Staged with no error is a no-op.
func (p *Processor) RunExclusive(ctx context.Context, loc shop.Location, stage func() (*registry.Staged, error)) error {
	out := make(chan error, 1)

	p.loop.Submit(func() {
		p.enqueue(loc, func() {
			st, err := stage()
			if err != nil || st == nil {
				out <- err
				p.finish(loc)
				return
			}
			m := &mutation{loc: loc, st: st, out: out}
			p.runObserved(st.Persist, p.ledgerTimeout,
				func() { p.abandonMutation(m) },
				func(err error) { p.mutationDone(m, err) })
		})
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-out:
		return err
	}
}

// enqueue runs start immediately if loc is free, otherwise parks it
// behind the operation already holding the location. Loop only.
func (p *Processor) enqueue(loc shop.Location, start func()) {
	if q, busy := p.queues[loc]; busy {
		p.queues[loc] = append(q, start)
		return
	}
	p.queues[loc] = nil
	start()
}

// finish releases loc and starts the next queued operation, if any.
// Loop only.
func (p *Processor) finish(loc shop.Location) {
	q, ok := p.queues[loc]
	if !ok {
		return
	}
	if len(q) == 0 {
		delete(p.queues, loc)
		return
	}
	next := q[0]
	p.queues[loc] = q[1:]
	next()
}

// runObserved executes fn on the pool and reports back on the loop.
// completed always fires with fn's final result, even when the
// deadline passed first; expired fires at the deadline so callers can
// release waiters without losing track of the still-running task.
func (p *Processor) runObserved(fn func() error, timeout time.Duration, expired func(), completed func(error)) {
	p.pool.Run(func() error {
		err := fn()
		p.loop.Submit(func() { completed(err) })
		return err
	}, timeout, func(err error) {
		if errors.Is(err, exec.ErrTimeout) {
			p.loop.Submit(expired)
		}
	})
}

// errAbandoned is returned by an exchange that stopped at a step
// boundary after its transaction timed out, having compensated the
// steps already taken.
var errAbandoned = fmt.Errorf("transaction abandoned after timeout")

// txn carries one transaction between its loop and pool phases. The
// shop snapshot is taken under the location queue and stays valid for
// the whole transaction because the queue is held until settlement.
// The flag fields are loop-only except stop, which the exchange
// goroutine polls at step boundaries.
type txn struct {
	req   Request
	shop  shop.Shop
	qty   int
	unit  float64
	total float64
	tax   float64
	out   chan<- result

	stop              atomic.Bool
	exchangeHandled   bool
	exchangeAbandoned bool
	persistHandled    bool
	persistAbandoned  bool
}

// begin validates the request against current shop state and, if it
// holds, hands the money and item movement to the pool. Loop only.
func (p *Processor) begin(req Request, out chan<- result) {
	fail := func(err error) {
		out <- result{err: err}
		p.finish(req.Location)
	}

	if req.Quantity <= 0 {
		fail(ErrQuantityNotPositive)
		return
	}

	s, ok := p.reg.Get(req.Location)
	if !ok {
		fail(ErrShopNotFound)
		return
	}
	if !s.Active() {
		fail(ErrShopSuspended)
		return
	}
	if !p.allowSelfTrade && req.Player == s.Owner {
		fail(ErrSelfTradeDisabled)
		return
	}

	qty := req.Quantity
	if qty > s.Capacity {
		qty = s.Capacity
	}

	var unit float64
	switch req.Direction {
	case BuyFromShop:
		if !s.SellsToPlayers() {
			fail(ErrDirectionUnsupported)
			return
		}
		if s.Stock < qty {
			fail(fmt.Errorf("%w: want %d, have %d", ErrInsufficientStock, qty, s.Stock))
			return
		}
		unit = s.SellPrice
	case SellToShop:
		if !s.BuysFromPlayers() {
			fail(ErrDirectionUnsupported)
			return
		}
		if s.Stock+qty > s.Capacity {
			fail(fmt.Errorf("%w: room for %d", ErrInsufficientSpace, s.Capacity-s.Stock))
			return
		}
		unit = s.BuyPrice
	default:
		fail(fmt.Errorf("unknown direction %v", req.Direction))
		return
	}

	t := &txn{
		req:   req,
		shop:  s,
		qty:   qty,
		unit:  unit,
		total: unit * float64(qty),
		out:   out,
	}
	if req.Direction == BuyFromShop {
		// Tax is levied on the operator's sales revenue only; a
		// sell-to-shop pays the operator in goods, not currency.
		t.tax = p.tax.For(s.Owner, t.total)
	}

	// The location queue stays held while the exchange runs off-loop,
	// and is not released until the exchange's final result has been
	// observed, even past the deadline.
	p.runObserved(func() error {
		return p.exchange(t)
	}, p.ledgerTimeout,
		func() { p.abandonExchange(t) },
		func(err error) { p.exchangeDone(t, err) })
}

// exchange moves money and items for the transaction. Runs on a pool
// worker. Every step that fails after an earlier one succeeded undoes
// the earlier steps before returning, so a non-nil error always means
// no net movement happened. Between steps it polls the transaction's
// stop flag and backs out if the loop has given up waiting.
func (p *Processor) exchange(t *txn) error {
	if t.stop.Load() {
		return errAbandoned
	}

	switch t.req.Direction {
	case BuyFromShop:
		if err := p.ledger.Withdraw(t.req.Player, t.total); err != nil {
			return ledgerErr("withdrawing payment", err)
		}
		if t.stop.Load() {
			compensate("refunding buyer", func() error {
				return p.ledger.Deposit(t.req.Player, t.total)
			})
			return errAbandoned
		}
		if err := p.ledger.Deposit(t.shop.Owner, t.total-t.tax); err != nil {
			compensate("refunding buyer", func() error {
				return p.ledger.Deposit(t.req.Player, t.total)
			})
			return ledgerErr("paying shop operator", err)
		}
		if t.stop.Load() {
			compensate("reclaiming operator proceeds", func() error {
				return p.ledger.Withdraw(t.shop.Owner, t.total-t.tax)
			})
			compensate("refunding buyer", func() error {
				return p.ledger.Deposit(t.req.Player, t.total)
			})
			return errAbandoned
		}
		if err := p.inv.Credit(t.req.Player, t.shop.Item, t.qty); err != nil {
			compensate("reclaiming operator proceeds", func() error {
				return p.ledger.Withdraw(t.shop.Owner, t.total-t.tax)
			})
			compensate("refunding buyer", func() error {
				return p.ledger.Deposit(t.req.Player, t.total)
			})
			return fmt.Errorf("delivering items: %w", err)
		}

	case SellToShop:
		if err := p.inv.Debit(t.req.Player, t.shop.Item, t.qty); err != nil {
			return fmt.Errorf("collecting items: %w", err)
		}
		if t.stop.Load() {
			compensate("returning items to seller", func() error {
				return p.inv.Credit(t.req.Player, t.shop.Item, t.qty)
			})
			return errAbandoned
		}
		if err := p.ledger.Withdraw(t.shop.Owner, t.total); err != nil {
			compensate("returning items to seller", func() error {
				return p.inv.Credit(t.req.Player, t.shop.Item, t.qty)
			})
			return ledgerErr("charging shop operator", err)
		}
		if t.stop.Load() {
			compensate("refunding shop operator", func() error {
				return p.ledger.Deposit(t.shop.Owner, t.total)
			})
			compensate("returning items to seller", func() error {
				return p.inv.Credit(t.req.Player, t.shop.Item, t.qty)
			})
			return errAbandoned
		}
		if err := p.ledger.Deposit(t.req.Player, t.total); err != nil {
			compensate("refunding shop operator", func() error {
				return p.ledger.Deposit(t.shop.Owner, t.total)
			})
			compensate("returning items to seller", func() error {
				return p.inv.Credit(t.req.Player, t.shop.Item, t.qty)
			})
			return ledgerErr("paying seller", err)
		}
	}

	return nil
}

// abandonExchange gives up waiting on a timed-out exchange. The caller
// gets the failure now; the location stays queued until the exchange
// reports its final result, which exchangeDone unwinds if it turns out
// to have landed. Loop only.
func (p *Processor) abandonExchange(t *txn) {
	if t.exchangeHandled {
		return
	}
	t.exchangeAbandoned = true
	t.stop.Store(true)
	t.out <- result{err: fmt.Errorf("%w: %v", ErrLedgerUnavailable, exec.ErrTimeout)}
}

// exchangeDone receives the exchange's final result. Loop only.
func (p *Processor) exchangeDone(t *txn, err error) {
	loc := t.req.Location

	if t.exchangeAbandoned {
		// The caller was already told the trade failed. A completed
		// exchange landed its movements afterward and must be
		// reversed before the location is released.
		if err == nil {
			p.pool.Run(func() error {
				p.unwind(t)
				return nil
			}, 0, func(error) {
				p.loop.Submit(func() { p.finish(loc) })
			})
			return
		}
		p.finish(loc)
		return
	}
	t.exchangeHandled = true

	if err != nil {
		t.out <- result{err: err}
		p.finish(loc)
		return
	}

	p.commitStock(t)
}

// commitStock stages the stock movement for a completed exchange and
// persists it on the pool. Loop only.
func (p *Processor) commitStock(t *txn) {
	loc := t.req.Location

	delta := -t.qty
	if t.req.Direction == SellToShop {
		delta = t.qty
	}

	st, err := p.reg.StageUpdate(loc, registry.System, func(s *shop.Shop) error {
		s.Stock += delta
		return nil
	})
	if err != nil {
		p.failCommit(t, fmt.Errorf("committing stock: %w", err))
		return
	}

	p.runObserved(st.Persist, p.ledgerTimeout,
		func() { p.abandonPersist(t) },
		func(err error) { p.persistDone(t, st, err) })
}

// failCommit unwinds the completed exchange in the background, then
// delivers the commit failure and releases the location, so the
// caller sees balances already restored. Loop only.
func (p *Processor) failCommit(t *txn, commitErr error) {
	loc := t.req.Location
	p.pool.Run(func() error {
		p.unwind(t)
		return nil
	}, 0, func(error) {
		p.loop.Submit(func() {
			t.out <- result{err: commitErr}
			p.finish(loc)
		})
	})
}

// abandonPersist gives up waiting on a timed-out stock persist: the
// exchange is unwound and the failure delivered, while the location
// stays queued until persistDone learns whether the write landed.
// Loop only.
func (p *Processor) abandonPersist(t *txn) {
	if t.persistHandled {
		return
	}
	t.persistAbandoned = true

	commitErr := fmt.Errorf("committing stock: %w", exec.ErrTimeout)
	p.pool.Run(func() error {
		p.unwind(t)
		return nil
	}, 0, func(error) {
		p.loop.Submit(func() {
			t.out <- result{err: commitErr}
		})
	})
}

// persistDone receives the stock persist's final result and either
// commits the record in memory or cleans up after an abandoned write.
// Loop only.
func (p *Processor) persistDone(t *txn, st *registry.Staged, err error) {
	loc := t.req.Location

	if t.persistAbandoned {
		// Failure already reported and the exchange unwound. A write
		// that landed late leaves the store ahead of memory; put the
		// old record back.
		if err == nil {
			p.pool.Run(func() error {
				compensate("reverting stock record", st.Revert)
				return nil
			}, 0, func(error) {
				p.loop.Submit(func() { p.finish(loc) })
			})
			return
		}
		p.finish(loc)
		return
	}
	t.persistHandled = true

	if err != nil {
		p.failCommit(t, fmt.Errorf("committing stock: %w", err))
		return
	}

	if _, err := st.Commit(); err != nil {
		// Unreachable for a stock update; the queue pins the record.
		p.failCommit(t, fmt.Errorf("committing stock: %w", err))
		return
	}

	rec := Receipt{
		ID:        uuid.New().String(),
		Player:    t.req.Player,
		Owner:     t.shop.Owner,
		Location:  loc,
		Direction: t.req.Direction,
		Item:      t.shop.Item,
		Quantity:  t.qty,
		UnitPrice: t.unit,
		Total:     t.total,
		Tax:       t.tax,
		Timestamp: time.Now().UTC(),
	}

	if p.onReceipt != nil {
		p.onReceipt(rec)
	}

	t.out <- result{receipt: rec}
	p.finish(loc)
}

// mutation tracks a RunExclusive persist across the loop and pool.
// Fields are loop-only.
type mutation struct {
	loc       shop.Location
	st        *registry.Staged
	out       chan<- error
	handled   bool
	abandoned bool
}

// abandonMutation gives up waiting on a timed-out mutation persist.
// Loop only.
func (p *Processor) abandonMutation(m *mutation) {
	if m.handled {
		return
	}
	m.abandoned = true
	m.out <- fmt.Errorf("persisting shop: %w", exec.ErrTimeout)
}

// mutationDone receives a mutation persist's final result. Loop only.
func (p *Processor) mutationDone(m *mutation, err error) {
	if m.abandoned {
		if err == nil {
			p.pool.Run(func() error {
				compensate("reverting shop record", m.st.Revert)
				return nil
			}, 0, func(error) {
				p.loop.Submit(func() { p.finish(m.loc) })
			})
			return
		}
		p.finish(m.loc)
		return
	}
	m.handled = true

	if err != nil {
		m.out <- fmt.Errorf("persisting shop: %w", err)
		p.finish(m.loc)
		return
	}

	if _, err := m.st.Commit(); err != nil {
		// A creation can lose its commit re-check to a shop the
		// owner registered elsewhere meanwhile; take the persisted
		// record back out.
		m.out <- err
		p.pool.Run(func() error {
			compensate("reverting shop record", m.st.Revert)
			return nil
		}, 0, func(error) {
			p.loop.Submit(func() { p.finish(m.loc) })
		})
		return
	}

	m.out <- nil
	p.finish(m.loc)
}

// unwind reverses a fully completed exchange. Runs on a pool worker.
func (p *Processor) unwind(t *txn) {
	switch t.req.Direction {
	case BuyFromShop:
		compensate("reclaiming delivered items", func() error {
			return p.inv.Debit(t.req.Player, t.shop.Item, t.qty)
		})
		compensate("reclaiming operator proceeds", func() error {
			return p.ledger.Withdraw(t.shop.Owner, t.total-t.tax)
		})
		compensate("refunding buyer", func() error {
			return p.ledger.Deposit(t.req.Player, t.total)
		})
	case SellToShop:
		compensate("reclaiming seller proceeds", func() error {
			return p.ledger.Withdraw(t.req.Player, t.total)
		})
		compensate("refunding shop operator", func() error {
			return p.ledger.Deposit(t.shop.Owner, t.total)
		})
		compensate("returning items to seller", func() error {
			return p.inv.Credit(t.req.Player, t.shop.Item, t.qty)
		})
	}
}

// ledgerErr classifies a ledger failure: overdrafts pass through so
// callers can tell the player, anything else means the ledger itself
// is unhealthy.
func ledgerErr(action string, err error) error {
	if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrLedgerUnavailable) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %w: %v", action, ErrLedgerUnavailable, err)
}

func compensate(action string, fn func() error) {
	if err := fn(); err != nil {
		slog.Error("transaction compensation failed", "action", action, "error", err)
	}
}
