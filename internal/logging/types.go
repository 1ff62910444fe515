package logging

import "time"

// #region session-record
// SessionRecord is a single row in the session_log table.
type SessionRecord struct {
	SessionID     string
	DeviceID      string
	StartedAt     time.Time
	EndedAt       time.Time
	Placements    int
	Conversions   int
	EndReason     string // "user" | "shutdown"
	AnalyticsJSON string
}

// #endregion session-record
