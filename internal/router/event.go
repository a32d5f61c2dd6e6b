package router

import (
	"github.com/pixelmine/shopd/internal/shop"
)

// Kind discriminates host events on the wire.
type Kind string

const (
	// KindCommand is a typed shop command ("create 10 5", "remove", ...).
	KindCommand Kind = "command"
	// KindInteract is a click on a container block.
	KindInteract Kind = "interact"
	// KindConfirm and KindCancel resolve a pending session state.
	KindConfirm Kind = "confirm"
	KindCancel  Kind = "cancel"
	// KindBreak fires when a container block is broken.
	KindBreak Kind = "break"
	// KindRestock fires when an owner closes their container; Delta is
	// the net item count change the host observed.
	KindRestock Kind = "restock"
	// KindLeave fires when a player disconnects.
	KindLeave Kind = "leave"
)

// Event is one host-originated interaction event, decoded from JSON
// off the bus. Fields beyond Kind and Player are populated per kind.
type Event struct {
	Kind   Kind   `json:"kind"`
	Player string `json:"player"`

	// Location is the clicked, broken, or closed container block.
	Location shop.Location `json:"location,omitempty"`

	// Command events.
	Args []string `json:"args,omitempty"`

	// Interact events: which mouse button, the item held, the
	// container's slot capacity, and how many units the player wants
	// to trade (defaults to one).
	Action   string    `json:"action,omitempty"`
	Item     shop.Item `json:"item,omitempty"`
	Capacity int       `json:"capacity,omitempty"`
	Quantity int       `json:"quantity,omitempty"`

	// Restock events.
	Delta int `json:"delta,omitempty"`

	// Admin marks events from players the host grants admin rights.
	Admin bool `json:"admin,omitempty"`
}

const (
	// ActionPrimary is a left click, ActionSecondary a right click.
	ActionPrimary   = "primary"
	ActionSecondary = "secondary"
)
