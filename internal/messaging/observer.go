package messaging

import (
	"encoding/json"
	"log/slog"

	"github.com/pixelmine/shopd/internal/shop"
)

const (
	subjectShopChanges  = "shop.changes"
	subjectShopRemovals = "shop.removals"
)

// ShopObserver mirrors registry notifications onto the bus so external
// services (map renderers, audit tooling) can follow shop state.
// Publishes are best-effort; a dropped notification is only a stale
// observer, never a lost trade.
type ShopObserver struct {
	server *NatsServer
}

func NewShopObserver(server *NatsServer) *ShopObserver {
	return &ShopObserver{server: server}
}

func (o *ShopObserver) ShopChanged(s shop.Shop) { o.publish(subjectShopChanges, s) }

func (o *ShopObserver) ShopRemoved(s shop.Shop) { o.publish(subjectShopRemovals, s) }

func (o *ShopObserver) publish(subject string, s shop.Shop) {
	data, err := json.Marshal(s)
	if err != nil {
		slog.Error("marshaling shop notification", "location", s.Location, "error", err)
		return
	}
	if err := o.server.Publish(subject, data); err != nil {
		slog.Warn("publishing shop notification", "subject", subject, "error", err)
	}
}
