package trade

import "errors"

var (
	ErrShopNotFound         = errors.New("shop not found")
	ErrShopSuspended        = errors.New("shop is suspended")
	ErrDirectionUnsupported = errors.New("shop does not trade in this direction")
	ErrQuantityNotPositive  = errors.New("quantity must be positive")
	ErrInsufficientStock    = errors.New("shop does not have enough stock")
	ErrInsufficientSpace    = errors.New("shop container is full")
	ErrInsufficientItems    = errors.New("player does not have enough items")
	ErrSelfTradeDisabled    = errors.New("trading with your own shop is disabled")

	// ErrInsufficientFunds is returned by ledger withdrawals that would
	// overdraw the account, on either side of a trade.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLedgerUnavailable is returned when the currency ledger
	// collaborator is absent, erroring, or timing out. Transactions
	// fail closed on it.
	ErrLedgerUnavailable = errors.New("currency ledger unavailable")
)
