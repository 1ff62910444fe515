package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/config"
	"github.com/danielpatrickdp/placement-engine/internal/controller"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/placement"
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
	"github.com/danielpatrickdp/placement-engine/internal/sim"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
	"github.com/danielpatrickdp/placement-engine/internal/telemetry"
)

// #region main
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("controller stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SQLite always holds the session log; the KV side may live in Redis.
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var kv storage.KV = store
	if cfg.Storage == "redis" {
		rs, err := storage.NewRedisStore(ctx, cfg.RedisAddr, "placement:")
		if err != nil {
			return fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		defer rs.Close()
		kv = rs
	}

	var sink placement.Telemetry = telemetry.NewLogSink(logger)
	if cfg.TelemetryAddr != "" {
		opts := telemetry.DefaultOptions()
		opts.RatePerSecond = cfg.TelemetryRate
		client, err := telemetry.NewClient(cfg.TelemetryAddr, opts, logger)
		if err != nil {
			return fmt.Errorf("telemetry client for %s: %w", cfg.TelemetryAddr, err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := client.Close(flushCtx); err != nil {
				logger.Warn("telemetry flush incomplete", "error", err)
			}
			st := client.Stats()
			logger.Info("telemetry closed", "sent", st.Sent, "failed", st.Failed, "dropped", st.Dropped)
		}()
		sink = client
	}

	loadCatalog := func() (*catalog.Catalog, error) { return catalog.Load(cfg.CatalogPath) }
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	ccfg := controller.DefaultConfig()
	ccfg.Placement.AutoPlaceDelay = cfg.AutoPlaceDelay
	ccfg.Placement.LabelLifetime = cfg.LabelLifetime

	ctrl, err := controller.New(ccfg, controller.Deps{
		Catalog:     cat,
		LoadCatalog: loadCatalog,
		KV:          kv,
		SessionDB:   store.DB(),
		DeviceID:    cfg.DeviceID,
		Loader:      sim.LibraryFor(150*time.Millisecond, cat.Entries()),
		Poses:       sim.NewFloor(),
		Renderer:    sim.NewCamera(),
		Telemetry:   sink,
		Payments:    &sim.Payments{Delay: 800 * time.Millisecond, Limit: 500},
		Notify:      func(msg string) { fmt.Printf("! %s\n", msg) },
		Log:         logger,
	})
	if err != nil {
		return err
	}

	fmt.Println("Placement Engine ready.")
	fmt.Printf("  Catalog: %s (%d entries) | Storage: %s | Telemetry: %s\n",
		cfg.CatalogPath, cat.Len(), cfg.Storage, orDefault(cfg.TelemetryAddr, "log"))
	fmt.Println("Type what you are looking for, or 'help':")

	// Stdin can't be interrupted, so the reader lives outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return catalog.Watch(gctx, cfg.CatalogPath, logger, ctrl.CatalogChanged)
	})
	g.Go(func() error {
		defer stop()
		return loop(gctx, ctrl, lines, cfg.TickInterval)
	})
	err = g.Wait()

	// The loop has exited, so the controller is ours again.
	ctrl.Close()
	return err
}

// #endregion main

// #region loop
func loop(ctx context.Context, ctrl *controller.Controller, lines <-chan string, interval time.Duration) error {
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ctrl.Tick()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handle(ctx, ctrl, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handle runs one command. It reports true when the user asked to quit.
func handle(ctx context.Context, ctrl *controller.Controller, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "help":
		printHelp()
	case "start":
		report(ctrl.Start(ctx))
	case "end":
		if snap, ok := ctrl.End("user"); ok {
			fmt.Printf("session ended: %d placements, %d conversions, %d samples\n",
				snap.Placements, snap.TotalConversions(), len(snap.HeatmapSamples))
		}
	case "voice":
		ranked, err := ctrl.SubmitVoice(arg)
		report(err)
		printSuggestions(ranked)
	case "place":
		var inst placement.Instance
		var err error
		if arg == "" {
			inst, err = ctrl.PlaceTop()
		} else {
			inst, err = ctrl.PlaceEntry(arg)
		}
		if report(err) {
			fmt.Printf("placed %s as %s\n", inst.Entry.ID, shortID(inst.ID))
		}
	case "tap":
		id, action, _ := strings.Cut(arg, " ")
		if action == "" {
			action = controller.ActionTap
		}
		report(ctrl.Interact(resolveInstance(ctrl, id), action))
	case "remove":
		report(ctrl.Remove(resolveInstance(ctrl, arg)))
	case "cart":
		if arg == "" {
			printCart(ctrl)
			return false
		}
		report(ctrl.AddToCart(arg))
	case "uncart":
		report(ctrl.RemoveFromCart(arg))
	case "checkout":
		report(ctrl.Checkout())
	case "stats":
		printStats(ctrl)
	default:
		ranked, err := ctrl.SubmitText(line)
		report(err)
		printSuggestions(ranked)
	}
	return false
}

// resolveInstance expands a short id prefix to a placed instance id.
func resolveInstance(ctrl *controller.Controller, prefix string) string {
	for _, inst := range ctrl.Session().Instances() {
		if strings.HasPrefix(inst.ID, prefix) {
			return inst.ID
		}
	}
	return prefix
}

// #endregion loop

// #region output
func report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, placement.ErrNotActive):
		fmt.Println("no session running, type 'start'")
	default:
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func printSuggestions(ranked []scoring.Candidate) {
	if len(ranked) == 0 {
		return
	}
	for i, c := range ranked {
		if i == 3 {
			break
		}
		fmt.Printf("  %d. %-20s conf=%.2f  %s\n", i+1, c.Entry.ID, c.Confidence, c.Reason)
	}
	fmt.Println("  (auto-placing #1 shortly, 'place' to place now)")
}

func printCart(ctrl *controller.Controller) {
	c := ctrl.Cart()
	for _, it := range c.Items() {
		fmt.Printf("  %-20s x%d  $%.2f\n", it.Entry.ID, it.Quantity, it.Entry.SalePrice()*float64(it.Quantity))
	}
	fmt.Printf("  subtotal $%.2f  shipping $%.2f  total $%.2f  [%s]\n",
		c.Subtotal(), c.Shipping(), c.Total(), c.State())
}

func printStats(ctrl *controller.Controller) {
	s := ctrl.Session()
	a := ctrl.Analytics()
	fmt.Printf("state=%s reticle=%v placements=%d samples=%d\n",
		s.State(), s.ReticleVisible(), a.Placements(), a.SampleCount())
	for _, inst := range s.Instances() {
		flag := ""
		switch {
		case inst.Loading:
			flag = " (loading)"
		case inst.Placeholder:
			flag = " (placeholder)"
		}
		fmt.Printf("  %s  %-20s%s\n", shortID(inst.ID), inst.Entry.ID, flag)
	}
	for _, ec := range a.TopEntries(5) {
		fmt.Printf("  %-20s shown=%d converted=%d\n", ec.EntryID, ec.Count, a.Conversions(ec.EntryID))
	}
}

func printHelp() {
	fmt.Println(`  <text>                 describe what you need
  voice <transcript>     same, from speech
  place [id]             place the top suggestion, or a catalog entry
  tap <instance> [action] tap|rotate|scale|info|add_to_cart
  remove <instance>      take an instance off the surface
  cart [id]              show the cart, or add an entry
  uncart <id>            remove one unit
  checkout               pay for the cart
  stats                  session analytics
  start | end | quit`)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// #endregion output
