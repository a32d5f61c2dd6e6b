package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixil98/go-testutil"
)

// failingStore wraps a working in-memory store and fails writes on demand.
type failingStore struct {
	records  map[string]*shop.Shop
	failSave bool
	failDel  bool
}

func newFailingStore() *failingStore {
	return &failingStore{records: map[string]*shop.Shop{}}
}

func (s *failingStore) Save(id string, v *shop.Shop) error {
	if s.failSave {
		return fmt.Errorf("disk full")
	}
	snap := v.Snapshot()
	s.records[id] = &snap
	return nil
}

func (s *failingStore) Delete(id string) error {
	if s.failDel {
		return fmt.Errorf("disk full")
	}
	delete(s.records, id)
	return nil
}

func (s *failingStore) Get(id string) *shop.Shop {
	return s.records[id]
}

func (s *failingStore) GetAll() map[string]*shop.Shop {
	out := map[string]*shop.Shop{}
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

type recordingNotifier struct {
	changed []shop.Shop
	removed []shop.Shop
}

func (n *recordingNotifier) ShopChanged(s shop.Shop) { n.changed = append(n.changed, s) }
func (n *recordingNotifier) ShopRemoved(s shop.Shop) { n.removed = append(n.removed, s) }

func testLocation() shop.Location {
	return shop.Location{World: "overworld", X: 10, Y: 64, Z: -3}
}

func testCreateParams() CreateParams {
	return CreateParams{
		Location:       testLocation(),
		Owner:          "alice",
		Item:           shop.Item{ID: "oak_planks"},
		SellPrice:      10,
		Capacity:       64,
		DisplayEnabled: true,
	}
}

func newTestRegistry(t *testing.T, opts ...Opt) (*Registry, *failingStore, *recordingNotifier) {
	t.Helper()

	store := newFailingStore()
	reg, err := New(store, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := &recordingNotifier{}
	reg.Subscribe(n)
	return reg, store, n
}

func TestCreateAndGet(t *testing.T) {
	reg, store, n := newTestRegistry(t)

	created, err := reg.Create(testCreateParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated shop id")
	}

	got, ok := reg.Get(testLocation())
	if !ok {
		t.Fatal("expected shop at location")
	}
	testutil.AssertEqual(t, "owner", got.Owner, "alice")
	testutil.AssertEqual(t, "item", got.Item.ID, "oak_planks")
	testutil.AssertEqual(t, "sell price", got.SellPrice, 10.0)
	testutil.AssertEqual(t, "stock", got.Stock, 0)

	// Write-through persisted
	if store.Get(testLocation().Key()) == nil {
		t.Error("expected shop record in store")
	}
	testutil.AssertEqual(t, "change notifications", len(n.changed), 1)
}

func TestCreateRejectsOccupiedLocation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := reg.Create(testCreateParams())
	if !errors.Is(err, ErrLocationOccupied) {
		t.Errorf("expected ErrLocationOccupied, got %v", err)
	}
}

func TestCreateRejectsInvalidPrices(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	p := testCreateParams()
	p.SellPrice = -5
	if _, err := reg.Create(p); err == nil {
		t.Error("expected error for negative price")
	}

	p = testCreateParams()
	p.SellPrice = 0
	p.BuyPrice = 0
	if _, err := reg.Create(p); err == nil {
		t.Error("expected error for no priced direction")
	}

	if _, ok := reg.Get(testLocation()); ok {
		t.Error("expected no shop registered after failed creates")
	}
}

func TestCreateEnforcesShopLimit(t *testing.T) {
	reg, _, _ := newTestRegistry(t, WithShopLimit(func(owner string) int { return 2 }))

	for i := 0; i < 2; i++ {
		p := testCreateParams()
		p.Location.X = i
		if _, err := reg.Create(p); err != nil {
			t.Fatalf("unexpected error on shop %d: %v", i, err)
		}
	}

	p := testCreateParams()
	p.Location.X = 99
	_, err := reg.Create(p)
	if !errors.Is(err, ErrShopLimit) {
		t.Errorf("expected ErrShopLimit, got %v", err)
	}

	// A different owner is unaffected
	p = testCreateParams()
	p.Location.X = 100
	p.Owner = "bob"
	if _, err := reg.Create(p); err != nil {
		t.Errorf("unexpected error for other owner: %v", err)
	}
}

func TestCreatePersistFailureLeavesRegistryEmpty(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	store.failSave = true

	_, err := reg.Create(testCreateParams())
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if _, ok := reg.Get(testLocation()); ok {
		t.Error("expected no shop after failed persist")
	}
	testutil.AssertEqual(t, "notifications", len(n.changed), 0)
}

func TestUpdate(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := reg.Update(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.SellPrice = 25
		s.Stock = 5
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "updated price", updated.SellPrice, 25.0)
	testutil.AssertEqual(t, "updated stock", updated.Stock, 5)

	stored := store.Get(testLocation().Key())
	testutil.AssertEqual(t, "stored price", stored.SellPrice, 25.0)
	testutil.AssertEqual(t, "notifications", len(n.changed), 2) // create + update
}

func TestUpdateRejectsNonOwner(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := reg.Update(testLocation(), Actor{ID: "mallory"}, func(s *shop.Shop) error {
		s.SellPrice = 1
		return nil
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	// Admins may edit any shop
	if _, err := reg.Update(testLocation(), Actor{ID: "mod", Admin: true}, func(s *shop.Shop) error {
		s.Suspended = true
		return nil
	}); err != nil {
		t.Errorf("unexpected error for admin: %v", err)
	}
}

func TestUpdateRollsBackOnPersistFailure(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.failSave = true
	_, err := reg.Update(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.SellPrice = 999
		return nil
	})
	if err == nil {
		t.Fatal("expected persistence error")
	}

	got, _ := reg.Get(testLocation())
	testutil.AssertEqual(t, "price unchanged", got.SellPrice, 10.0)
}

func TestUpdateRejectsInvalidMutation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := reg.Update(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.Stock = -1
		return nil
	})
	if err == nil {
		t.Error("expected validation error")
	}

	got, _ := reg.Get(testLocation())
	testutil.AssertEqual(t, "stock unchanged", got.Stock, 0)
}

func TestUpdateCannotChangeIdentity(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	created, err := reg.Create(testCreateParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := reg.Update(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.ID = "forged"
		s.Owner = "mallory"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "id preserved", updated.ID, created.ID)
	testutil.AssertEqual(t, "owner preserved", updated.Owner, "alice")
}

func TestRemove(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := reg.Remove(testLocation(), Actor{ID: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := reg.Get(testLocation()); ok {
		t.Error("expected shop gone after remove")
	}
	if store.Get(testLocation().Key()) != nil {
		t.Error("expected store record deleted")
	}
	testutil.AssertEqual(t, "removal notifications", len(n.removed), 1)
}

func TestRemoveChecksActor(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Remove(testLocation(), Actor{ID: "mallory"}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := reg.Remove(testLocation(), Actor{ID: "mod", Admin: true}); err != nil {
		t.Errorf("unexpected error for admin: %v", err)
	}
	if err := reg.Remove(testLocation(), Actor{ID: "alice"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStagedUpdateCommitsAfterPersist(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, err := reg.StageUpdate(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.SellPrice = 25
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Staging alone touches neither memory nor the store.
	got, _ := reg.Get(testLocation())
	testutil.AssertEqual(t, "price before persist", got.SellPrice, 10.0)
	testutil.AssertEqual(t, "notifications before commit", len(n.changed), 1)

	if err := st.Persist(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "stored price", store.Get(testLocation().Key()).SellPrice, 25.0)
	got, _ = reg.Get(testLocation())
	testutil.AssertEqual(t, "price before commit", got.SellPrice, 10.0)

	committed, err := st.Commit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "committed price", committed.SellPrice, 25.0)
	got, _ = reg.Get(testLocation())
	testutil.AssertEqual(t, "price after commit", got.SellPrice, 25.0)
	testutil.AssertEqual(t, "notifications after commit", len(n.changed), 2)
}

func TestStagedRevertRestoresPriorRecord(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, err := reg.StageUpdate(testLocation(), Actor{ID: "alice"}, func(s *shop.Shop) error {
		s.SellPrice = 25
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Persist(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A persist whose outcome was already reported as failed gets
	// taken back out of the store.
	if err := st.Revert(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "stored price restored", store.Get(testLocation().Key()).SellPrice, 10.0)
	got, _ := reg.Get(testLocation())
	testutil.AssertEqual(t, "memory untouched", got.SellPrice, 10.0)
}

func TestStagedCreateRevertDeletesRecord(t *testing.T) {
	reg, store, _ := newTestRegistry(t)

	st, err := reg.StageCreate(testCreateParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Persist(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Get(testLocation().Key()) == nil {
		t.Fatal("expected staged record in store")
	}

	if err := st.Revert(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Get(testLocation().Key()) != nil {
		t.Error("expected staged record deleted")
	}
}

func TestStagedCreateCommitRechecksOccupancy(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	st, err := reg.StageCreate(testCreateParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another creation lands at the location while the first persist
	// is in flight.
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := st.Persist(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.Commit(); !errors.Is(err, ErrLocationOccupied) {
		t.Errorf("expected ErrLocationOccupied, got %v", err)
	}
}

func TestStagedRemoveCommit(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	if _, err := reg.Create(testCreateParams()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, err := reg.StageRemove(testLocation(), Actor{ID: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Persist(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := reg.Get(testLocation()); !ok {
		t.Fatal("expected shop still registered before commit")
	}

	if _, err := st.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get(testLocation()); ok {
		t.Error("expected shop gone after commit")
	}
	if store.Get(testLocation().Key()) != nil {
		t.Error("expected store record deleted")
	}
	testutil.AssertEqual(t, "removal notifications", len(n.removed), 1)
}

func TestLoadSkipsInvalidRecords(t *testing.T) {
	store := newFailingStore()

	valid := &shop.Shop{
		ID:        "2a2c9f1a-0a51-4f4f-9a57-27cf54d1d7e8",
		Owner:     "alice",
		Location:  testLocation(),
		Item:      shop.Item{ID: "oak_planks"},
		SellPrice: 10,
		Capacity:  64,
	}
	store.records[valid.Location.Key()] = valid

	invalid := valid.Snapshot()
	invalid.Location.X = 11
	invalid.SellPrice = 0
	invalid.BuyPrice = 0
	store.records[invalid.Location.Key()] = &invalid

	reg, err := New(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "loaded count", len(reg.All()), 1)
	if _, ok := reg.Get(testLocation()); !ok {
		t.Error("expected valid shop loaded")
	}
}

func TestOwnedBy(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		p := testCreateParams()
		p.Location.X = i
		if i == 2 {
			p.Owner = "bob"
		}
		if _, err := reg.Create(p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	testutil.AssertEqual(t, "alice shops", len(reg.OwnedBy("alice")), 2)
	testutil.AssertEqual(t, "bob shops", len(reg.OwnedBy("bob")), 1)
	testutil.AssertEqual(t, "all shops", len(reg.All()), 3)
}
