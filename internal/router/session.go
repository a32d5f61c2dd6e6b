package router

import (
	"time"

	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/trade"
)

type state int

const (
	stateIdle state = iota
	stateAwaitingTarget
	stateCreationPending
	stateTransactionPending
	stateEditPending
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingTarget:
		return "awaiting-target"
	case stateCreationPending:
		return "creation-pending"
	case stateTransactionPending:
		return "transaction-pending"
	case stateEditPending:
		return "edit-pending"
	default:
		return "unknown"
	}
}

// intentKind is what a command event asked to do to the next container
// the player clicks.
type intentKind int

const (
	intentNone intentKind = iota
	intentCreate
	intentRemove
	intentPrice
	intentDisplay
)

type intent struct {
	kind      intentKind
	sellPrice float64
	buyPrice  float64
	display   bool
}

// session is one player's in-flight interaction. Sessions live only in
// router memory, are touched only on the update loop, and expire after
// the idle timeout.
type session struct {
	player string
	state  state
	intent intent

	// Target container, filled when the player clicks one.
	target   shop.Location
	item     shop.Item
	capacity int

	// Pending transaction, for stateTransactionPending.
	txn trade.Request

	expires time.Time
}

func (s *session) touch(ttl time.Duration, now time.Time) {
	s.expires = now.Add(ttl)
}
