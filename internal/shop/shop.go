package shop

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

// Shop is the canonical record for a registered container shop. The
// registry exclusively owns instances of this type; all other
// components receive value copies via Snapshot.
type Shop struct {
	ID       string   `json:"shop_id"`
	Owner    string   `json:"owner"`
	Location Location `json:"location"`
	Item     Item     `json:"item"`

	// SellPrice is the per-unit price when the shop sells to players,
	// BuyPrice when it buys from them. Zero disables the direction;
	// at least one must be enabled.
	SellPrice float64 `json:"sell_price,omitempty"`
	BuyPrice  float64 `json:"buy_price,omitempty"`

	Stock    int `json:"stock"`
	Capacity int `json:"capacity"`

	Suspended      bool      `json:"suspended,omitempty"`
	DisplayEnabled bool      `json:"display_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Shop) Validate() error {
	el := errors.NewErrorList()

	if s.ID == "" {
		el.Add(fmt.Errorf("shop id is required"))
	}
	if s.Owner == "" {
		el.Add(fmt.Errorf("owner is required"))
	}
	el.Add(s.Location.Validate())
	el.Add(s.Item.Validate())

	if s.SellPrice < 0 {
		el.Add(fmt.Errorf("sell price must not be negative"))
	}
	if s.BuyPrice < 0 {
		el.Add(fmt.Errorf("buy price must not be negative"))
	}
	if s.SellPrice == 0 && s.BuyPrice == 0 {
		el.Add(fmt.Errorf("at least one trade direction must be priced"))
	}

	if s.Capacity <= 0 {
		el.Add(fmt.Errorf("capacity must be positive"))
	}
	if s.Stock < 0 {
		el.Add(fmt.Errorf("stock must not be negative"))
	}
	if s.Capacity > 0 && s.Stock > s.Capacity {
		el.Add(fmt.Errorf("stock %d exceeds capacity %d", s.Stock, s.Capacity))
	}

	return el.Err()
}

// SellsToPlayers reports whether players can buy from this shop.
func (s *Shop) SellsToPlayers() bool {
	return s.SellPrice > 0
}

// BuysFromPlayers reports whether players can sell to this shop.
func (s *Shop) BuysFromPlayers() bool {
	return s.BuyPrice > 0
}

// Active reports whether the shop currently accepts transactions.
func (s *Shop) Active() bool {
	return !s.Suspended
}

// Snapshot returns an independent value copy. Mutating the snapshot
// never affects the canonical record.
func (s *Shop) Snapshot() Shop {
	c := *s
	c.Item = s.Item.clone()
	return c
}
