package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixil98/go-testutil"
)

func TestLabelRender(t *testing.T) {
	label, err := NewLabel("", 0)
	if err != nil {
		t.Fatalf("building label: %v", err)
	}

	s := shop.Shop{
		Owner:     "alice",
		Item:      shop.Item{ID: "iron_ingot"},
		SellPrice: 1250.5,
		BuyPrice:  5,
		Stock:     3,
		Capacity:  27,
	}

	text, err := label.Render(s)
	if err != nil {
		t.Fatalf("rendering: %v", err)
	}

	for _, want := range []string{
		"alice's shop",
		"Iron Ingot",
		"Buy for 1,250.50",
		"Sell for 5.00",
		"3 in stock",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("label missing %q:\n%s", want, text)
		}
	}
}

func TestLabelRenderOutOfStock(t *testing.T) {
	label, err := NewLabel("", 0)
	if err != nil {
		t.Fatalf("building label: %v", err)
	}

	text, err := label.Render(shop.Shop{
		Owner:     "alice",
		Item:      shop.Item{ID: "iron_ingot"},
		SellPrice: 10,
		Capacity:  27,
	})
	if err != nil {
		t.Fatalf("rendering: %v", err)
	}

	if !strings.Contains(text, "OUT OF STOCK") {
		t.Errorf("label missing stockout line:\n%s", text)
	}
}

func TestLabelRejectsBadTemplate(t *testing.T) {
	if _, err := NewLabel("{{.Broken", 0); err == nil {
		t.Fatal("expected parse error")
	}
}

type showCall struct {
	player   string
	loc      shop.Location
	text     string
	showItem bool
	handle   string
}

type updateCall struct {
	handle   string
	text     string
	showItem bool
}

// recordingRenderer is a thread-safe renderer double with a failure
// toggle.
type recordingRenderer struct {
	mu       sync.Mutex
	next     int
	shows    []showCall
	updates  []updateCall
	hides    []string
	failShow bool
}

func (r *recordingRenderer) Show(player string, loc shop.Location, text string, showItem bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failShow {
		return "", fmt.Errorf("renderer offline")
	}
	r.next++
	handle := fmt.Sprintf("h%d", r.next)
	r.shows = append(r.shows, showCall{player: player, loc: loc, text: text, showItem: showItem, handle: handle})
	return handle, nil
}

func (r *recordingRenderer) Update(handle, text string, showItem bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, updateCall{handle: handle, text: text, showItem: showItem})
	return nil
}

func (r *recordingRenderer) Hide(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hides = append(r.hides, handle)
	return nil
}

func (r *recordingRenderer) setFailShow(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failShow = fail
}

func (r *recordingRenderer) counts() (shows, updates, hides int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shows), len(r.updates), len(r.hides)
}

func (r *recordingRenderer) lastShow() showCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shows) == 0 {
		return showCall{}
	}
	return r.shows[len(r.shows)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type memStore struct {
	records map[string]*shop.Shop
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*shop.Shop{}}
}

func (s *memStore) Save(id string, v *shop.Shop) error {
	snap := v.Snapshot()
	s.records[id] = &snap
	return nil
}

func (s *memStore) Delete(id string) error {
	delete(s.records, id)
	return nil
}

func (s *memStore) Get(id string) *shop.Shop { return s.records[id] }

func (s *memStore) GetAll() map[string]*shop.Shop {
	out := map[string]*shop.Shop{}
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

type fixture struct {
	reg      *registry.Registry
	loop     *exec.Loop
	sync     *Synchronizer
	renderer *recordingRenderer
}

func newFixture(t *testing.T, opts ...Opt) *fixture {
	t.Helper()

	reg, err := registry.New(newMemStore())
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}

	f := &fixture{
		reg:      reg,
		loop:     exec.NewLoop(nil),
		renderer: &recordingRenderer{},
	}

	pool := exec.NewPool(4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.loop.Start(ctx)
	go pool.Start(ctx)

	sync, err := NewSynchronizer(reg, f.loop, pool,
		append([]Opt{WithRenderer(f.renderer)}, opts...)...)
	if err != nil {
		t.Fatalf("building synchronizer: %v", err)
	}
	f.sync = sync
	reg.Subscribe(sync)
	return f
}

func (f *fixture) createShop(t *testing.T, loc shop.Location, stock int) {
	t.Helper()
	if _, err := f.reg.Create(registry.CreateParams{
		Location:       loc,
		Owner:          "owner",
		Item:           shop.Item{ID: "iron_ingot"},
		SellPrice:      10,
		Capacity:       27,
		DisplayEnabled: true,
	}); err != nil {
		t.Fatalf("creating shop: %v", err)
	}
	if stock != 0 {
		if _, err := f.reg.Update(loc, registry.System, func(s *shop.Shop) error {
			s.Stock = stock
			return nil
		}); err != nil {
			t.Fatalf("seeding stock: %v", err)
		}
	}
}

// mutate runs a registry mutation on the update loop, as production
// code does.
func (f *fixture) mutate(t *testing.T, fn func() error) {
	t.Helper()
	if err := f.loop.Call(context.Background(), fn); err != nil {
		t.Fatalf("mutation failed: %v", err)
	}
}

// waitHandle blocks until the player's label handle for loc has its
// renderer id, so later hides and updates have something to act on.
func (f *fixture) waitHandle(t *testing.T, player string, loc shop.Location) {
	t.Helper()
	waitFor(t, "handle assignment", func() bool {
		var assigned bool
		f.mutate(t, func() error {
			if v, ok := f.sync.viewers[player]; ok {
				if ref, ok := v.handles[loc]; ok {
					assigned = ref.id != ""
				}
			}
			return nil
		})
		return assigned
	})
}

func shopLoc() shop.Location {
	return shop.Location{World: "overworld", X: 0, Y: 64, Z: 0}
}

func near() Position {
	return Position{World: "overworld", X: 3, Y: 64, Z: 3}
}

func far() Position {
	return Position{World: "overworld", X: 500, Y: 64, Z: 500}
}

func TestEnterAndLeaveRange(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })

	call := f.renderer.lastShow()
	testutil.AssertEqual(t, "show player", call.player, "alice")
	testutil.AssertEqual(t, "show item visual", call.showItem, true)
	if !strings.Contains(call.text, "owner's shop") {
		t.Errorf("unexpected label text:\n%s", call.text)
	}
	f.waitHandle(t, "alice", shopLoc())

	f.sync.HandlePresence(Presence{Kind: PresenceMove, Player: "alice", Position: far()})
	waitFor(t, "hide", func() bool { _, _, h := f.renderer.counts(); return h == 1 })

	// Re-entering recreates the handle with current state.
	f.sync.HandlePresence(Presence{Kind: PresenceMove, Player: "alice", Position: near()})
	waitFor(t, "second show", func() bool { s, _, _ := f.renderer.counts(); return s == 2 })
}

func TestDifferentWorldIsOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice",
		Position: Position{World: "nether", X: 3, Y: 64, Z: 3}})

	time.Sleep(50 * time.Millisecond)
	shows, _, _ := f.renderer.counts()
	testutil.AssertEqual(t, "shows", shows, 0)
}

func TestShopChangeRefreshesLabels(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })
	f.waitHandle(t, "alice", shopLoc())

	f.mutate(t, func() error {
		_, err := f.reg.Update(shopLoc(), registry.System, func(s *shop.Shop) error {
			s.Stock = 1
			return nil
		})
		return err
	})

	waitFor(t, "update", func() bool { _, u, _ := f.renderer.counts(); return u == 1 })
	f.renderer.mu.Lock()
	defer f.renderer.mu.Unlock()
	if !strings.Contains(f.renderer.updates[0].text, "1 in stock") {
		t.Errorf("label not refreshed:\n%s", f.renderer.updates[0].text)
	}
}

func TestRemovalDestroysAllHandles(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "bob", Position: near()})
	waitFor(t, "shows", func() bool { s, _, _ := f.renderer.counts(); return s == 2 })
	f.waitHandle(t, "alice", shopLoc())
	f.waitHandle(t, "bob", shopLoc())

	f.mutate(t, func() error {
		return f.reg.Remove(shopLoc(), registry.System)
	})

	waitFor(t, "hides", func() bool { _, _, h := f.renderer.counts(); return h == 2 })
}

func TestDisconnectDestroysHandles(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })
	f.waitHandle(t, "alice", shopLoc())

	f.sync.HandlePresence(Presence{Kind: PresenceLeave, Player: "alice"})
	waitFor(t, "hide", func() bool { _, _, h := f.renderer.counts(); return h == 1 })
}

func TestRendererFailureIsRetriedOnNextChange(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 5)
	f.renderer.setFailShow(true)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	time.Sleep(50 * time.Millisecond)
	shows, _, _ := f.renderer.counts()
	testutil.AssertEqual(t, "failed shows recorded", shows, 0)

	f.renderer.setFailShow(false)
	f.mutate(t, func() error {
		_, err := f.reg.Update(shopLoc(), registry.System, func(s *shop.Shop) error {
			s.Stock = 4
			return nil
		})
		return err
	})

	waitFor(t, "retried show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })
}

func TestItemVisualGatedByStockAndToggle(t *testing.T) {
	f := newFixture(t)
	f.createShop(t, shopLoc(), 0)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })

	testutil.AssertEqual(t, "no item visual at zero stock", f.renderer.lastShow().showItem, false)
}

// upperResolver uppercases labels, standing in for a host placeholder
// expander.
type upperResolver struct{}

func (upperResolver) Resolve(player, text string) (string, error) {
	return strings.ToUpper(text), nil
}

type brokenResolver struct{}

func (brokenResolver) Resolve(player, text string) (string, error) {
	return "", fmt.Errorf("resolver offline")
}

func TestResolverApplied(t *testing.T) {
	f := newFixture(t, WithResolver(upperResolver{}))
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })

	if !strings.Contains(f.renderer.lastShow().text, "OWNER'S SHOP") {
		t.Errorf("resolver not applied:\n%s", f.renderer.lastShow().text)
	}
}

func TestResolverFailureFallsBackToRawText(t *testing.T) {
	f := newFixture(t, WithResolver(brokenResolver{}))
	f.createShop(t, shopLoc(), 5)

	f.sync.HandlePresence(Presence{Kind: PresenceJoin, Player: "alice", Position: near()})
	waitFor(t, "show", func() bool { s, _, _ := f.renderer.counts(); return s == 1 })

	if !strings.Contains(f.renderer.lastShow().text, "owner's shop") {
		t.Errorf("fallback text missing:\n%s", f.renderer.lastShow().text)
	}
}
