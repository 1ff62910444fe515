package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/profile"
	"github.com/danielpatrickdp/placement-engine/internal/replay"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to placement.db")
	catalogPath := flag.String("catalog", "catalog.toml", "catalog to rank against")
	deviceID := flag.String("device", "local", "device whose searches are exported")
	last := flag.Int("last", 10, "number of most recent searches to export")
	hour := flag.Int("hour", time.Now().Hour(), "hour of day recorded in every case")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--catalog c.toml] [--device id] [--last N] [--hour h]")
		os.Exit(2)
	}

	if err := run(*dbPath, *catalogPath, *deviceID, *last, *hour, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, catalogPath, deviceID string, last, hour int, outPath string) error {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	prof := profile.NewStore(store, deviceID, logging.Nop()).Load(context.Background())
	inputs := prof.History.Searched
	if len(inputs) == 0 {
		return fmt.Errorf("no searches recorded for device %s", deviceID)
	}
	if last > 0 && len(inputs) > last {
		inputs = inputs[len(inputs)-last:]
	}
	fmt.Printf("Found %d searches\n", len(inputs))

	desc := fmt.Sprintf("Exported from %s for device %s at hour %d", dbPath, deviceID, hour)
	f := replay.NewBaseline(desc, cat.Entries(), prof, inputs, hour, replay.FixtureConfig{})

	if err := f.Write(outPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %d cases to %s\n", len(f.Cases), outPath)
	return nil
}

// #endregion extract
