package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pixelmine/shopd/internal/shop"
)

const (
	showSubject   = "display.show"
	updateSubject = "display.update"
	hideSubject   = "display.hide"
)

type labelCommand struct {
	Handle   string        `json:"handle"`
	Player   string        `json:"player,omitempty"`
	Location shop.Location `json:"location,omitempty"`
	Text     string        `json:"text,omitempty"`
	ShowItem bool          `json:"show_item,omitempty"`
}

// NatsRenderer asks the host plugin to draw floating labels. Handles
// are minted here so show commands are fire-and-forget; the host keys
// its armor stands (or whatever it renders with) by handle.
type NatsRenderer struct {
	server *NatsServer
}

func NewNatsRenderer(server *NatsServer) *NatsRenderer {
	return &NatsRenderer{server: server}
}

func (r *NatsRenderer) Show(player string, loc shop.Location, text string, showItem bool) (string, error) {
	handle := uuid.New().String()
	err := r.publish(showSubject, labelCommand{
		Handle:   handle,
		Player:   player,
		Location: loc,
		Text:     text,
		ShowItem: showItem,
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (r *NatsRenderer) Update(handle, text string, showItem bool) error {
	return r.publish(updateSubject, labelCommand{Handle: handle, Text: text, ShowItem: showItem})
}

func (r *NatsRenderer) Hide(handle string) error {
	return r.publish(hideSubject, labelCommand{Handle: handle})
}

func (r *NatsRenderer) publish(subject string, cmd labelCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		slog.Error("encoding label command", "subject", subject, "error", err)
		return err
	}
	if err := r.server.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing label command: %w", err)
	}
	return nil
}
