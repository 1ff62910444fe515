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
	"github.com/danielpatrickdp/placement-engine/internal/scoring"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to placement.db (history mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	catalogPath := flag.String("catalog", "catalog.toml", "catalog file for history mode")
	deviceID := flag.String("device", "local", "device whose search history is replayed")
	hour := flag.Int("hour", time.Now().Hour(), "hour of day used in history mode")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/placement.db [--catalog catalog.toml] [--device id] [--hour h]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runHistoryMode(*dbPath, *catalogPath, *deviceID, *hour)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region history

// runHistoryMode re-ranks every stored search of a device against the
// current catalog. There is no expectation, so it only fails on I/O.
func runHistoryMode(dbPath, catalogPath, deviceID string, hour int) int {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		return 2
	}

	prof := profile.NewStore(store, deviceID, logging.Nop()).Load(context.Background())
	searched := prof.History.Searched
	if len(searched) == 0 {
		fmt.Fprintf(os.Stderr, "no search history for device %s\n", deviceID)
		return 2
	}

	// History replays against a snapshot so earlier searches don't see later ones.
	snapshot := prof.Clone()
	snapshot.History.Searched = nil
	cases := make([]replay.Case, len(searched))
	for i, text := range searched {
		cases[i] = replay.Case{ID: fmt.Sprintf("search-%d", i+1), Input: text, Hour: hour, Profile: snapshot}
	}

	results := replay.Replay(cat.Entries(), cases, scoring.DefaultConfig())

	fmt.Printf("%-12s| %-24s| %-16s| %-6s| %s\n", "Case", "Input", "Top", "Conf", "Reason")
	fmt.Printf("%-12s+%-25s+%-17s+%-7s+%s\n",
		"------------", "-------------------------", "-----------------", "-------", "------")
	for i, r := range results {
		fmt.Printf("%-12s| %-24s| %-16s| %-6.2f| %s\n", r.CaseID, truncate(searched[i], 24), orDash(r.Top), r.Confidence, r.Reason)
	}
	return 0
}

// #endregion history

// #region output

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	cat, err := f.Catalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		return 2
	}

	results := replay.Replay(cat.Entries(), f.ToCases(), f.Config.ToScoringConfig())
	return printComparison(results, f.Expectations())
}

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.Result, expected []replay.Expectation) int {
	fmt.Printf("%-16s| %-16s| %-16s| %-6s| %s\n", "Case", "Expected", "Replayed", "Conf", "Match")
	fmt.Printf("%-16s+%-17s+%-17s+%-7s+%s\n",
		"----------------", "-----------------", "-----------------", "-------", "------")

	for i, r := range results {
		exp := replay.Expectation{}
		if i < len(expected) {
			exp = expected[i]
		}
		match := "DIFF"
		if i < len(expected) && r.Matches(exp) {
			match = "OK"
		}
		fmt.Printf("%-16s| %-16s| %-16s| %-6.2f| %s\n", r.CaseID, orDash(exp.Top), orDash(r.Top), r.Confidence, match)
	}

	s := replay.Summarize(results, expected)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d empty\n", s.Total, s.Matched, s.Mismatched, s.Empty)

	if s.Mismatched > 0 {
		return 1
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output
