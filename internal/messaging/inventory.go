package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/trade"
)

const (
	creditSubject = "inventory.credit"
	debitSubject  = "inventory.debit"

	reasonInsufficientItems = "insufficient_items"
	reasonNoSpace           = "no_space"
)

type inventoryRequest struct {
	Player   string    `json:"player"`
	Item     shop.Item `json:"item"`
	Quantity int       `json:"quantity"`
}

type inventoryReply struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// NatsInventory moves items in and out of player inventories through
// the host plugin. It implements trade.Inventory.
type NatsInventory struct {
	server  *NatsServer
	timeout time.Duration
}

func NewNatsInventory(server *NatsServer, timeout time.Duration) *NatsInventory {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NatsInventory{server: server, timeout: timeout}
}

func (i *NatsInventory) Credit(player string, item shop.Item, qty int) error {
	return i.call(creditSubject, inventoryRequest{Player: player, Item: item, Quantity: qty})
}

func (i *NatsInventory) Debit(player string, item shop.Item, qty int) error {
	return i.call(debitSubject, inventoryRequest{Player: player, Item: item, Quantity: qty})
}

func (i *NatsInventory) call(subject string, req inventoryRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding inventory request: %w", err)
	}

	raw, err := i.server.Request(subject, data, i.timeout)
	if err != nil {
		return fmt.Errorf("inventory request: %w", err)
	}

	var reply inventoryReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decoding inventory reply: %w", err)
	}
	if !reply.OK {
		switch reply.Reason {
		case reasonInsufficientItems:
			return trade.ErrInsufficientItems
		case reasonNoSpace:
			return trade.ErrInsufficientSpace
		default:
			return fmt.Errorf("inventory refused: %s", reply.Reason)
		}
	}
	return nil
}
