// Package report provides PostgreSQL-backed storage for abuse reports. Each
// report captures who reported whom, the reason, and a snapshot of the pair's
// conversation history for moderator review. Reports are the only state that
// outlives the process; everything else the relay holds is in-memory.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beacon/presence-app/internal/conversation"
)

// validReasons is the set of allowed reason values, matching the CHECK
// constraint on the peer_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// ValidReason reports whether the reason is accepted by the schema.
func ValidReason(reason string) bool {
	return validReasons[reason]
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Report represents a single abuse report to be persisted. Reporter and
// Reported are connection IDs; names are snapshotted because connection IDs
// are meaningless once the session ends.
type Report struct {
	ReporterID   string
	ReporterName string
	ReportedID   string
	ReportedName string
	Reason       string
	Messages     []conversation.Message // conversation snapshot at report time
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an abuse report. The conversation snapshot is marshalled to
// JSONB; the reason is validated against the allowed set before insertion.
func (s *Store) Create(ctx context.Context, report *Report) error {
	if !ValidReason(report.Reason) {
		return fmt.Errorf("report: invalid reason %q", report.Reason)
	}

	var messagesJSON []byte
	if len(report.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(report.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO peer_reports (reporter_id, reporter_name, reported_id, reported_name, reason, messages)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		report.ReporterID,
		report.ReporterName,
		report.ReportedID,
		report.ReportedName,
		report.Reason,
		messagesJSON,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against a display name
// within the given time window. Names are the only identifier that persists
// across sessions, so moderation tooling aggregates by name.
func (s *Store) CountRecent(ctx context.Context, reportedName string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM peer_reports
		WHERE reported_name = $1
		  AND created_at >= $2`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedName, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
