package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pixelmine/shopd/internal/display"
	"github.com/pixelmine/shopd/internal/router"
)

const (
	eventSubject    = "host.events.>"
	presenceSubject = "host.presence.>"
)

// Bridge subscribes to the host's event and presence subjects and
// feeds decoded events into the router and display synchronizer.
// Malformed payloads are logged and dropped, never surfaced to the
// host.
type Bridge struct {
	server *NatsServer
	router *router.Router
	sync   *display.Synchronizer
}

func NewBridge(server *NatsServer, r *router.Router, s *display.Synchronizer) *Bridge {
	return &Bridge{
		server: server,
		router: r,
		sync:   s,
	}
}

func (b *Bridge) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-b.server.Ready():
	}

	unsubEvents, err := b.server.Subscribe(eventSubject, b.handleEvent)
	if err != nil {
		return err
	}
	defer unsubEvents()

	unsubPresence, err := b.server.Subscribe(presenceSubject, b.handlePresence)
	if err != nil {
		return err
	}
	defer unsubPresence()

	<-ctx.Done()
	return nil
}

func (b *Bridge) handleEvent(data []byte) {
	var ev router.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("dropping malformed host event", "error", err)
		return
	}
	b.router.Dispatch(ev)
}

func (b *Bridge) handlePresence(data []byte) {
	var p display.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("dropping malformed presence event", "error", err)
		return
	}
	b.sync.HandlePresence(p)
}
