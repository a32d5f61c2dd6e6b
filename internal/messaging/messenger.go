package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pixelmine/shopd/internal/trade"
)

const receiptSubject = "shop.receipts"

// PlayerMessenger delivers chat text to individual player NATS
// channels; the host plugin relays them into the game. Delivery is
// best-effort.
type PlayerMessenger struct {
	server *NatsServer
}

func NewPlayerMessenger(server *NatsServer) *PlayerMessenger {
	return &PlayerMessenger{server: server}
}

type playerMessage struct {
	Text string `json:"text"`
}

func (p *PlayerMessenger) Send(player, text string) {
	data, err := json.Marshal(playerMessage{Text: text})
	if err != nil {
		slog.Error("encoding player message", "player", player, "error", err)
		return
	}
	if err := p.server.Publish(fmt.Sprintf("player-%s", player), data); err != nil {
		slog.Warn("dropping player message", "player", player, "error", err)
	}
}

// PublishReceipt broadcasts a completed trade for observers (host
// plugin logging, the owner-notification path, external auditing).
func (p *PlayerMessenger) PublishReceipt(rec trade.Receipt) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("encoding receipt", "receipt", rec.ID, "error", err)
		return
	}
	if err := p.server.Publish(receiptSubject, data); err != nil {
		slog.Warn("dropping receipt broadcast", "receipt", rec.ID, "error", err)
	}
}
