package command

import (
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/display"
	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/listener"
	"github.com/pixelmine/shopd/internal/messaging"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/router"
	"github.com/pixelmine/shopd/internal/trade"
	"github.com/pixil98/go-service"
)

const (
	defaultLedgerCallTimeout = 2 * time.Second
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Durable shop storage
	store, err := cfg.Storage.BuildShopStore()
	if err != nil {
		return nil, fmt.Errorf("creating shop store: %w", err)
	}

	// Embedded message bus
	natsServer, err := cfg.Nats.BuildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	// Create the shop registry
	var regOpts []registry.Opt
	if cfg.Trade.ShopLimit > 0 {
		limit := cfg.Trade.ShopLimit
		regOpts = append(regOpts, registry.WithShopLimit(func(owner string) int { return limit }))
	}
	reg, err := registry.New(store, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating shop registry: %w", err)
	}

	// Update loop and background worker pool
	var loopOpts []exec.LoopOpt
	tick, err := parseDuration(cfg.TickInterval, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing tick_interval: %w", err)
	}
	if tick > 0 {
		loopOpts = append(loopOpts, exec.WithTickLength(tick))
	}
	loop := exec.NewLoop(nil, loopOpts...)
	pool := exec.NewPool(cfg.Workers)

	// External economy services ride the bus. A nil ledger makes the
	// processor fail closed and refuse new shops.
	var ledger trade.Ledger
	if cfg.Trade.UseLedger() {
		ledger = messaging.NewNatsLedger(natsServer, defaultLedgerCallTimeout)
	}
	inventory := messaging.NewNatsInventory(natsServer, defaultLedgerCallTimeout)
	messenger := messaging.NewPlayerMessenger(natsServer)
	stats := &listener.Stats{}

	// Transaction processor
	procOpts, err := cfg.Trade.BuildProcessorOpts()
	if err != nil {
		return nil, fmt.Errorf("configuring trade processor: %w", err)
	}
	procOpts = append(procOpts, trade.WithReceiptHook(func(rec trade.Receipt) {
		stats.Record(rec)
		messenger.PublishReceipt(rec)
		if rec.Owner != rec.Player {
			messenger.Send(rec.Owner, receiptNotice(rec))
		}
	}))
	proc := trade.NewProcessor(reg, loop, pool, ledger, inventory, procOpts...)

	// Interaction router
	routerOpts, err := cfg.Router.BuildRouterOpts()
	if err != nil {
		return nil, fmt.Errorf("configuring router: %w", err)
	}
	routerOpts = append(routerOpts, router.WithMessenger(messenger))
	rtr := router.New(reg, proc, loop, routerOpts...)
	loop.Register(rtr)

	// Floating label synchronizer
	displayOpts, err := cfg.Display.BuildDisplayOpts()
	if err != nil {
		return nil, fmt.Errorf("configuring display: %w", err)
	}
	displayOpts = append(displayOpts, display.WithRenderer(messaging.NewNatsRenderer(natsServer)))
	sync, err := display.NewSynchronizer(reg, loop, pool, displayOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating display synchronizer: %w", err)
	}
	reg.Subscribe(sync)
	reg.Subscribe(messaging.NewShopObserver(natsServer))

	// Bridge host events into the router and synchronizer
	bridge := messaging.NewBridge(natsServer, rtr, sync)

	// Admin console listeners
	console := listener.NewConsole(reg, proc, loop, stats)
	cm := listener.NewConnectionManager(console)
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		lst, err := l.BuildListener(cm)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = lst
	}

	// Create a worker list
	return service.WorkerList{
		"nats":      natsServer,
		"loop":      loop,
		"pool":      pool,
		"bridge":    bridge,
		"listeners": &listeners,
	}, nil
}

func receiptNotice(rec trade.Receipt) string {
	if rec.Direction == trade.SellToShop {
		return fmt.Sprintf("%s sold %d x %s to your shop for %.2f.",
			rec.Player, rec.Quantity, rec.Item.Name(), rec.Total)
	}
	notice := fmt.Sprintf("%s bought %d x %s from your shop for %.2f",
		rec.Player, rec.Quantity, rec.Item.Name(), rec.Total)
	if rec.Tax > 0 {
		return fmt.Sprintf("%s (tax %.2f).", notice, rec.Tax)
	}
	return notice + "."
}
