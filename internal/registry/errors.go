package registry

import "errors"

var (
	// ErrLocationOccupied is returned by Create when a shop is already
	// registered at the target location.
	ErrLocationOccupied = errors.New("a shop already exists at this location")

	// ErrNotFound is returned when no shop is registered at a location.
	ErrNotFound = errors.New("no shop at this location")

	// ErrNotOwner is returned when a non-owning, non-admin actor tries
	// to mutate a shop.
	ErrNotOwner = errors.New("only the shop owner can do that")

	// ErrShopLimit is returned by Create when the owner is at their
	// shop limit.
	ErrShopLimit = errors.New("shop limit reached")
)
