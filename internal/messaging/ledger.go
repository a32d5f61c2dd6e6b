package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pixelmine/shopd/internal/trade"
)

const (
	balanceSubject  = "ledger.balance"
	withdrawSubject = "ledger.withdraw"
	depositSubject  = "ledger.deposit"

	// reasonInsufficientFunds is the reply reason the host's economy
	// plugin sends for overdrawn withdrawals.
	reasonInsufficientFunds = "insufficient_funds"
)

type ledgerRequest struct {
	Player string  `json:"player"`
	Amount float64 `json:"amount,omitempty"`
}

type ledgerReply struct {
	OK      bool    `json:"ok"`
	Balance float64 `json:"balance,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// NatsLedger talks to the host's economy plugin over request/reply.
// It implements trade.Ledger; every call is bounded by the timeout and
// fails closed on no reply. It also tracks responder presence: a
// request that draws no responders marks the ledger down until a call
// succeeds again.
type NatsLedger struct {
	server  *NatsServer
	timeout time.Duration
	down    atomic.Bool
}

func NewNatsLedger(server *NatsServer, timeout time.Duration) *NatsLedger {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NatsLedger{server: server, timeout: timeout}
}

func (l *NatsLedger) Balance(player string) (float64, error) {
	reply, err := l.call(balanceSubject, ledgerRequest{Player: player})
	if err != nil {
		return 0, err
	}
	return reply.Balance, nil
}

func (l *NatsLedger) Withdraw(player string, amount float64) error {
	reply, err := l.call(withdrawSubject, ledgerRequest{Player: player, Amount: amount})
	if err != nil {
		return err
	}
	if !reply.OK {
		if reply.Reason == reasonInsufficientFunds {
			return trade.ErrInsufficientFunds
		}
		return fmt.Errorf("withdrawal refused: %s", reply.Reason)
	}
	return nil
}

func (l *NatsLedger) Deposit(player string, amount float64) error {
	reply, err := l.call(depositSubject, ledgerRequest{Player: player, Amount: amount})
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("deposit refused: %s", reply.Reason)
	}
	return nil
}

// Available reports whether the economy plugin answered the most
// recent request. A fresh ledger is presumed available until a request
// proves otherwise.
func (l *NatsLedger) Available() bool {
	return !l.down.Load()
}

func (l *NatsLedger) call(subject string, req ledgerRequest) (ledgerReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return ledgerReply{}, fmt.Errorf("encoding ledger request: %w", err)
	}

	raw, err := l.server.Request(subject, data, l.timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			l.down.Store(true)
		}
		return ledgerReply{}, fmt.Errorf("ledger request: %w", err)
	}
	l.down.Store(false)

	var reply ledgerReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ledgerReply{}, fmt.Errorf("decoding ledger reply: %w", err)
	}
	return reply, nil
}
