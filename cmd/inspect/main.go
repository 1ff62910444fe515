package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/analytics"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/storage"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to placement.db")
	last := flag.Int("last", 20, "show N most recent sessions")
	session := flag.String("session", "", "show single session detail")
	events := flag.Bool("events", false, "list stored telemetry events instead of sessions")
	kind := flag.String("kind", "", "filter events to one kind")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/placement.db [--last N] [--session id] [--events [--kind k]] [--json]")
		os.Exit(2)
	}

	store, err := storage.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *events:
		err = runEventsMode(store, *kind, *last, *jsonOut)
	case *session != "":
		err = runDetailMode(store, *session, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SessionID   string `json:"session_id"`
	DeviceID    string `json:"device_id"`
	StartedAt   string `json:"started_at"`
	Duration    string `json:"duration"`
	Placements  int    `json:"placements"`
	Conversions int    `json:"conversions"`
	EndReason   string `json:"end_reason,omitempty"`
}

func runListMode(store *storage.Store, last int, jsonOut bool) error {
	recs, err := logging.ListSessions(store.DB(), last)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(recs))
	for i, rec := range recs {
		rows[len(recs)-1-i] = listRow{
			SessionID:   rec.SessionID,
			DeviceID:    rec.DeviceID,
			StartedAt:   rec.StartedAt.Format("2006-01-02T15:04:05Z"),
			Duration:    rec.EndedAt.Sub(rec.StartedAt).Round(time.Second).String(),
			Placements:  rec.Placements,
			Conversions: rec.Conversions,
			EndReason:   rec.EndReason,
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-10s  %-20s  %9s  %10s  %11s  %s\n",
		"Session", "Device", "Started", "Duration", "Placements", "Conversions", "Reason")
	fmt.Printf("%-10s+-%-10s+-%-20s+-%9s+-%10s+-%11s+-%s\n",
		"----------", "----------", "--------------------", "---------", "----------", "-----------", "--------")
	for _, r := range rows {
		fmt.Printf("%-10s  %-10s  %-20s  %9s  %10d  %11d  %s\n",
			shortID(r.SessionID), r.DeviceID, r.StartedAt, r.Duration, r.Placements, r.Conversions, r.EndReason)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	SessionID    string                    `json:"session_id"`
	DeviceID     string                    `json:"device_id"`
	StartedAt    string                    `json:"started_at"`
	EndedAt      string                    `json:"ended_at"`
	EndReason    string                    `json:"end_reason"`
	Placements   int                       `json:"placements"`
	Impressions  []analytics.EntryCount    `json:"impressions"`
	Interactions map[string]map[string]int `json:"interactions"`
	Conversions  map[string]int            `json:"conversions"`
	Samples      int                       `json:"heatmap_samples"`
}

func runDetailMode(store *storage.Store, sessionID string, jsonOut bool) error {
	rec, ok, err := logging.GetSession(store.DB(), sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	out := detailOutput{
		SessionID:  rec.SessionID,
		DeviceID:   rec.DeviceID,
		StartedAt:  rec.StartedAt.Format("2006-01-02T15:04:05Z"),
		EndedAt:    rec.EndedAt.Format("2006-01-02T15:04:05Z"),
		EndReason:  rec.EndReason,
		Placements: rec.Placements,
	}
	if rec.AnalyticsJSON != "" {
		var snap analytics.Snapshot
		if err := json.Unmarshal([]byte(rec.AnalyticsJSON), &snap); err != nil {
			return fmt.Errorf("parse analytics: %w", err)
		}
		out.Impressions = rankCounts(snap.Impressions)
		out.Interactions = snap.Interactions
		out.Conversions = snap.Conversions
		out.Samples = len(snap.HeatmapSamples)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Session:    %s\n", out.SessionID)
	fmt.Printf("Device:     %s\n", out.DeviceID)
	fmt.Printf("Started:    %s\n", out.StartedAt)
	fmt.Printf("Ended:      %s\n", out.EndedAt)
	fmt.Printf("Reason:     %s\n", out.EndReason)
	fmt.Printf("Placements: %d\n", out.Placements)
	fmt.Printf("Samples:    %d\n", out.Samples)

	fmt.Printf("\nEntries:\n")
	for _, ec := range out.Impressions {
		fmt.Printf("  %-20s shown=%d converted=%d", ec.EntryID, ec.Count, out.Conversions[ec.EntryID])
		for action, n := range out.Interactions[ec.EntryID] {
			fmt.Printf(" %s=%d", action, n)
		}
		fmt.Println()
	}
	return nil
}

// #endregion detail-mode

// #region events-mode

type eventRow struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	SentAt     string          `json:"sent_at"`
	ReceivedAt string          `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

func runEventsMode(store *storage.Store, kind string, last int, jsonOut bool) error {
	events, err := store.ListEvents(context.Background(), kind, last)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	rows := make([]eventRow, len(events))
	for i, ev := range events {
		payload := json.RawMessage(ev.PayloadJSON)
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		rows[i] = eventRow{
			ID:         ev.ID,
			Kind:       ev.Kind,
			SentAt:     ev.SentAt.Format("2006-01-02T15:04:05Z"),
			ReceivedAt: ev.ReceivedAt.Format("2006-01-02T15:04:05Z"),
			Payload:    payload,
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%6s  %-16s  %-20s  %s\n", "ID", "Kind", "Sent", "Payload")
	fmt.Printf("%6s+-%-16s+-%-20s+-%s\n", "------", "----------------", "--------------------", "--------")
	for _, r := range rows {
		fmt.Printf("%6d  %-16s  %-20s  %s\n", r.ID, r.Kind, r.SentAt, truncate(string(r.Payload), 60))
	}
	return nil
}

// #endregion events-mode

// #region output

// rankCounts orders entries by count, highest first, ties by id.
func rankCounts(counts map[string]int) []analytics.EntryCount {
	out := make([]analytics.EntryCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, analytics.EntryCount{EntryID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion output
