package command

import (
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/trade"
	"github.com/pixil98/go-errors"
)

type TradeConfig struct {
	TaxRate        float64  `json:"tax_rate"`
	PremiumTaxRate float64  `json:"premium_tax_rate"`
	PremiumPlayers []string `json:"premium_players,omitempty"`
	AllowSelfTrade *bool    `json:"allow_self_trade,omitempty"`
	LedgerTimeout  string   `json:"ledger_timeout"`
	ShopLimit      int      `json:"shop_limit"`

	// LedgerEnabled switches the bus-backed currency ledger off for
	// hosts without an economy plugin; trades then fail closed and
	// shop creation is refused. Defaults to on.
	LedgerEnabled *bool `json:"ledger_enabled,omitempty"`
}

// UseLedger reports whether a ledger should be wired at all.
func (c *TradeConfig) UseLedger() bool {
	return c.LedgerEnabled == nil || *c.LedgerEnabled
}

func (c *TradeConfig) Validate() error {
	el := errors.NewErrorList()

	if c.TaxRate < 0 || c.TaxRate >= 1 {
		el.Add(fmt.Errorf("tax_rate must be in [0, 1)"))
	}
	if c.PremiumTaxRate < 0 || c.PremiumTaxRate >= 1 {
		el.Add(fmt.Errorf("premium_tax_rate must be in [0, 1)"))
	}
	if c.ShopLimit < 0 {
		el.Add(fmt.Errorf("shop_limit must not be negative"))
	}
	if c.LedgerTimeout != "" {
		_, err := time.ParseDuration(c.LedgerTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing ledger_timeout: %w", err))
		}
	}

	return el.Err()
}

func (c *TradeConfig) BuildProcessorOpts() ([]trade.ProcessorOpt, error) {
	var opts []trade.ProcessorOpt

	if c.TaxRate > 0 || c.PremiumTaxRate > 0 {
		premium := make(map[string]bool, len(c.PremiumPlayers))
		for _, p := range c.PremiumPlayers {
			premium[p] = true
		}
		opts = append(opts, trade.WithTaxPolicy(trade.TaxPolicy{
			BaseRate:    c.TaxRate,
			PremiumRate: c.PremiumTaxRate,
			IsPremium:   func(player string) bool { return premium[player] },
		}))
	}

	if c.AllowSelfTrade != nil {
		opts = append(opts, trade.WithSelfTrade(*c.AllowSelfTrade))
	}

	d, err := parseDuration(c.LedgerTimeout, trade.DefaultLedgerTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing ledger_timeout: %w", err)
	}
	opts = append(opts, trade.WithLedgerTimeout(d))

	return opts, nil
}
