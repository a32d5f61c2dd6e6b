package listener

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pixelmine/shopd/internal/exec"
	"github.com/pixelmine/shopd/internal/registry"
	"github.com/pixelmine/shopd/internal/shop"
	"github.com/pixelmine/shopd/internal/trade"
)

// consoleActor is the identity admin console mutations run under.
var consoleActor = registry.Actor{ID: "console", Admin: true}

// Console is the operator's admin surface over telnet or ssh. All
// registry access is marshaled onto the update loop so console
// sessions never race the engine.
type Console struct {
	reg   *registry.Registry
	proc  *trade.Processor
	loop  *exec.Loop
	stats *Stats
	start time.Time
}

func NewConsole(reg *registry.Registry, proc *trade.Processor, loop *exec.Loop, stats *Stats) *Console {
	return &Console{
		reg:   reg,
		proc:  proc,
		loop:  loop,
		stats: stats,
		start: time.Now(),
	}
}

func (c *Console) Run(ctx context.Context, conn io.ReadWriter) error {
	fmt.Fprintf(conn, "shopd admin console. Type help for commands.\n")

	scanner := bufio.NewScanner(conn)
	fmt.Fprint(conn, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(conn, "> ")
			continue
		}

		switch fields[0] {
		case "help":
			c.help(conn)
		case "list":
			c.list(ctx, conn)
		case "info":
			c.info(ctx, conn, fields[1:])
		case "remove":
			c.remove(ctx, conn, fields[1:])
		case "suspend":
			c.setSuspended(ctx, conn, fields[1:], true)
		case "resume":
			c.setSuspended(ctx, conn, fields[1:], false)
		case "stats":
			c.showStats(ctx, conn)
		case "quit", "exit":
			fmt.Fprintln(conn, "bye")
			return nil
		default:
			fmt.Fprintf(conn, "unknown command %q, try help\n", fields[0])
		}
		fmt.Fprint(conn, "> ")
	}
	return scanner.Err()
}

func (c *Console) help(w io.Writer) {
	fmt.Fprint(w, `commands:
  list                 all registered shops
  info <world,x,y,z>   one shop in detail
  remove <world,x,y,z> delete a shop
  suspend <world,x,y,z> stop a shop trading
  resume <world,x,y,z> reopen a suspended shop
  stats                engine counters
  quit                 close this session
`)
}

func (c *Console) list(ctx context.Context, w io.Writer) {
	var shops []shop.Shop
	err := c.loop.Call(ctx, func() error {
		shops = c.reg.All()
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	sort.Slice(shops, func(i, j int) bool {
		return shops[i].Location.String() < shops[j].Location.String()
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tOWNER\tITEM\tSELL\tBUY\tSTOCK\tSTATE")
	for _, s := range shops {
		state := "open"
		if s.Suspended {
			state = "suspended"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			s.Location, s.Owner, s.Item.Name(),
			fmtPrice(s.SellPrice), fmtPrice(s.BuyPrice),
			s.Stock, s.Capacity, state)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d shops\n", len(shops))
}

func (c *Console) info(ctx context.Context, w io.Writer, args []string) {
	loc, ok := c.parseLoc(w, args)
	if !ok {
		return
	}

	var s shop.Shop
	var found bool
	err := c.loop.Call(ctx, func() error {
		s, found = c.reg.Get(loc)
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	if !found {
		fmt.Fprintf(w, "no shop at %s\n", loc)
		return
	}

	fmt.Fprintf(w, "id:        %s\n", s.ID)
	fmt.Fprintf(w, "location:  %s\n", s.Location)
	fmt.Fprintf(w, "owner:     %s\n", s.Owner)
	fmt.Fprintf(w, "item:      %s\n", s.Item.Name())
	fmt.Fprintf(w, "sell:      %s\n", fmtPrice(s.SellPrice))
	fmt.Fprintf(w, "buy:       %s\n", fmtPrice(s.BuyPrice))
	fmt.Fprintf(w, "stock:     %d/%d\n", s.Stock, s.Capacity)
	fmt.Fprintf(w, "suspended: %t\n", s.Suspended)
	fmt.Fprintf(w, "display:   %t\n", s.DisplayEnabled)
	fmt.Fprintf(w, "created:   %s\n", s.CreatedAt.Format(time.RFC3339))
}

func (c *Console) remove(ctx context.Context, w io.Writer, args []string) {
	loc, ok := c.parseLoc(w, args)
	if !ok {
		return
	}

	err := c.proc.RunExclusive(ctx, loc, func() (*registry.Staged, error) {
		return c.reg.StageRemove(loc, consoleActor)
	})
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "removed %s\n", loc)
}

func (c *Console) setSuspended(ctx context.Context, w io.Writer, args []string, suspended bool) {
	loc, ok := c.parseLoc(w, args)
	if !ok {
		return
	}

	err := c.proc.RunExclusive(ctx, loc, func() (*registry.Staged, error) {
		return c.reg.StageUpdate(loc, consoleActor, func(s *shop.Shop) error {
			s.Suspended = suspended
			return nil
		})
	})
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	verb := "suspended"
	if !suspended {
		verb = "resumed"
	}
	fmt.Fprintf(w, "%s %s\n", verb, loc)
}

func (c *Console) showStats(ctx context.Context, w io.Writer) {
	var shops, stock, suspended, trades int
	var volume float64
	err := c.loop.Call(ctx, func() error {
		for _, s := range c.reg.All() {
			shops++
			stock += s.Stock
			if s.Suspended {
				suspended++
			}
		}
		if c.stats != nil {
			trades, volume = c.stats.Totals()
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "uptime:      %s\n", time.Since(c.start).Round(time.Second))
	fmt.Fprintf(w, "shops:       %d (%d suspended)\n", shops, suspended)
	fmt.Fprintf(w, "total stock: %d\n", stock)
	if c.stats != nil {
		fmt.Fprintf(w, "trades:      %d\n", trades)
		fmt.Fprintf(w, "volume:      %.2f\n", volume)
	}
}

func (c *Console) parseLoc(w io.Writer, args []string) (shop.Location, bool) {
	if len(args) != 1 {
		fmt.Fprintln(w, "expected one location argument, e.g. overworld,10,64,-3")
		return shop.Location{}, false
	}
	loc, err := shop.ParseLocation(args[0])
	if err != nil {
		fmt.Fprintf(w, "bad location: %v\n", err)
		return shop.Location{}, false
	}
	return loc, true
}

func fmtPrice(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// Stats accumulates trade counters for the console. Safe for use as a
// receipt hook.
type Stats struct {
	trades int
	volume float64
}

// Record is called from the update loop.
func (s *Stats) Record(rec trade.Receipt) {
	s.trades++
	s.volume += rec.Total
}

// Totals is read on the update loop as well; callers go through
// Loop.Call.
func (s *Stats) Totals() (int, float64) {
	return s.trades, s.volume
}
