package trade

import (
	"fmt"
	"sync"

	"github.com/pixelmine/shopd/internal/shop"
)

// Ledger is the external currency collaborator. Implementations may do
// network I/O; the processor only ever calls them from the background
// pool, never on the update loop.
type Ledger interface {
	Balance(player string) (float64, error)
	Withdraw(player string, amount float64) error
	Deposit(player string, amount float64) error
}

// Inventory is the host item collaborator: it credits purchased items
// to a player and debits items a player sells to a shop.
type Inventory interface {
	Credit(player string, item shop.Item, qty int) error
	Debit(player string, item shop.Item, qty int) error
}

// NoLedger is the absent-collaborator stand-in. Every call fails with
// ErrLedgerUnavailable so transactions fail closed.
type NoLedger struct{}

func (NoLedger) Balance(string) (float64, error) { return 0, ErrLedgerUnavailable }
func (NoLedger) Withdraw(string, float64) error  { return ErrLedgerUnavailable }
func (NoLedger) Deposit(string, float64) error   { return ErrLedgerUnavailable }

// MemoryLedger is a process-local ledger for standalone runs and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: map[string]float64{}}
}

func (l *MemoryLedger) Balance(player string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[player], nil
}

func (l *MemoryLedger) Withdraw(player string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("cannot withdraw negative amount %f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[player] < amount {
		return ErrInsufficientFunds
	}
	l.balances[player] -= amount
	return nil
}

func (l *MemoryLedger) Deposit(player string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("cannot deposit negative amount %f", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[player] += amount
	return nil
}
