package trade

import (
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/shop"
)

// Direction says which way goods flow: players buy from a shop's stock
// or sell into it.
type Direction int

const (
	BuyFromShop Direction = iota
	SellToShop
)

func (d Direction) String() string {
	switch d {
	case BuyFromShop:
		return "buy"
	case SellToShop:
		return "sell"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	switch d {
	case BuyFromShop, SellToShop:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("unknown direction %d", int(d))
	}
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buy":
		*d = BuyFromShop
	case "sell":
		*d = SellToShop
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// Request is one player's buy or sell attempt. It is ephemeral and
// never persisted.
type Request struct {
	Player    string        `json:"player"`
	Location  shop.Location `json:"location"`
	Direction Direction     `json:"direction"`
	Quantity  int           `json:"quantity"`
}

// Receipt is the terminal record of a completed transaction. Total is
// what the buying side paid. Tax is the cut taken from the operator's
// sales revenue when a player buys; a sell into the shop pays the
// seller in full and records zero tax.
type Receipt struct {
	ID        string        `json:"receipt_id"`
	Player    string        `json:"player"`
	Owner     string        `json:"owner"`
	Location  shop.Location `json:"location"`
	Direction Direction     `json:"direction"`
	Item      shop.Item     `json:"item"`
	Quantity  int           `json:"quantity"`
	UnitPrice float64       `json:"unit_price"`
	Total     float64       `json:"total"`
	Tax       float64       `json:"tax"`
	Timestamp time.Time     `json:"timestamp"`
}

// TaxPolicy computes the operator's cut on completed sales. Premium
// status comes from the host; when the callback is nil everyone pays
// the base rate.
type TaxPolicy struct {
	BaseRate    float64
	PremiumRate float64
	IsPremium   func(player string) bool
}

func (t TaxPolicy) For(owner string, total float64) float64 {
	rate := t.BaseRate
	if t.IsPremium != nil && t.IsPremium(owner) {
		rate = t.PremiumRate
	}
	if rate <= 0 {
		return 0
	}
	return total * rate
}
