package trade

import (
	"fmt"
	"sync"

	"github.com/pixelmine/shopd/internal/shop"
)

// NullInventory accepts every movement. Used when the host applies
// item effects itself from published receipts.
type NullInventory struct{}

func (NullInventory) Credit(string, shop.Item, int) error { return nil }
func (NullInventory) Debit(string, shop.Item, int) error  { return nil }

// MemoryInventory is a process-local inventory for standalone runs and
// tests. Items are keyed by descriptor id.
type MemoryInventory struct {
	mu    sync.Mutex
	items map[string]map[string]int
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{items: map[string]map[string]int{}}
}

func (i *MemoryInventory) Credit(player string, item shop.Item, qty int) error {
	if qty < 0 {
		return fmt.Errorf("cannot credit negative quantity %d", qty)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.items[player] == nil {
		i.items[player] = map[string]int{}
	}
	i.items[player][item.ID] += qty
	return nil
}

func (i *MemoryInventory) Debit(player string, item shop.Item, qty int) error {
	if qty < 0 {
		return fmt.Errorf("cannot debit negative quantity %d", qty)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.items[player][item.ID] < qty {
		return ErrInsufficientItems
	}
	i.items[player][item.ID] -= qty
	return nil
}

// Count returns how many of the item the player holds.
func (i *MemoryInventory) Count(player string, item shop.Item) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.items[player][item.ID]
}
