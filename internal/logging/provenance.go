package logging

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #region log-session
// LogSession writes an ended session to the session_log table.
func LogSession(db *sql.DB, rec SessionRecord) error {
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO session_log (session_id, device_id, started_at, ended_at, placements, conversions, end_reason, analytics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.DeviceID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.EndedAt.UTC().Format(time.RFC3339Nano),
		rec.Placements,
		rec.Conversions,
		nullIfEmpty(rec.EndReason),
		nullIfEmpty(rec.AnalyticsJSON),
	)
	if err != nil {
		return fmt.Errorf("log session: %w", err)
	}
	return nil
}

// #endregion log-session

// #region list-sessions
// ListSessions returns the most recent session records, newest first.
func ListSessions(db *sql.DB, limit int) ([]SessionRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, device_id, started_at, ended_at, placements, conversions, end_reason, analytics_json
		 FROM session_log ORDER BY ended_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetSession returns the record for one session id. ok is false when no
// row matches.
func GetSession(db *sql.DB, sessionID string) (SessionRecord, bool, error) {
	row := db.QueryRow(
		`SELECT session_id, device_id, started_at, ended_at, placements, conversions, end_reason, analytics_json
		 FROM session_log WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID,
	)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	return rec, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (SessionRecord, error) {
	var rec SessionRecord
	var started, ended string
	var reason, analytics sql.NullString
	err := s.Scan(&rec.SessionID, &rec.DeviceID, &started, &ended,
		&rec.Placements, &rec.Conversions, &reason, &analytics)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan session: %w", err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rec.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
	rec.EndReason = reason.String
	rec.AnalyticsJSON = analytics.String
	return rec, nil
}

// #endregion list-sessions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
