package trade

import "time"

type ProcessorOpt func(*Processor)

// WithTaxPolicy sets the cut taken from shop operator proceeds.
func WithTaxPolicy(t TaxPolicy) ProcessorOpt {
	return func(p *Processor) {
		p.tax = t
	}
}

// WithLedgerTimeout bounds each background exchange phase.
func WithLedgerTimeout(d time.Duration) ProcessorOpt {
	return func(p *Processor) {
		p.ledgerTimeout = d
	}
}

// WithSelfTrade controls whether players may trade with their own
// shops.
func WithSelfTrade(allowed bool) ProcessorOpt {
	return func(p *Processor) {
		p.allowSelfTrade = allowed
	}
}

// WithReceiptHook registers fn to run on the update loop after each
// committed transaction. It must not block.
func WithReceiptHook(fn func(Receipt)) ProcessorOpt {
	return func(p *Processor) {
		p.onReceipt = fn
	}
}
