package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/TheLab-ms/tipjar/engine/db"
)

const integrationEventsMigration = `
CREATE TABLE IF NOT EXISTS integration_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    source TEXT NOT NULL,
    event_type TEXT NOT NULL,
    external_id TEXT,
    success INTEGER NOT NULL DEFAULT 1,
    details TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS integration_events_source_created_idx
    ON integration_events (source, created);
CREATE INDEX IF NOT EXISTS integration_events_source_type_success_idx
    ON integration_events (source, event_type, success);
`

// EventLogger provides centralized logging for integration events.
// A nil *EventLogger is valid and discards everything.
type EventLogger struct {
	db *sql.DB
}

// NewEventLogger creates an EventLogger and applies the integration_events table migration.
func NewEventLogger(d *sql.DB) *EventLogger {
	db.MustMigrate(d, integrationEventsMigration)
	return &EventLogger{db: d}
}

// LogEvent inserts an integration event into the database.
// Parameters:
//   - source: the integration source (e.g., "stripe", "airtable")
//   - eventType: the type of event
//   - externalID: external identifier (stripe event id, airtable record id)
//   - success: whether the operation succeeded
//   - details: additional details about the event
func (e *EventLogger) LogEvent(ctx context.Context, source, eventType, externalID string, success bool, details string) {
	if e == nil || e.db == nil {
		return
	}

	successInt := 0
	if success {
		successInt = 1
	}

	var extIDPtr any = nil
	if externalID != "" {
		extIDPtr = externalID
	}

	_, err := e.db.ExecContext(ctx,
		`INSERT INTO integration_events (source, event_type, external_id, success, details)
		 VALUES (?, ?, ?, ?, ?)`,
		source, eventType, extIDPtr, successInt, details)
	if err != nil {
		slog.Error("failed to log integration event", "error", err, "source", source, "eventType", eventType)
	}
}

// Prune returns a PollingFunc that removes integration events older than the given number of days.
func (e *EventLogger) Prune(days int) PollingFunc {
	return Cleanup(e.db, "integration events",
		"DELETE FROM integration_events WHERE created < strftime('%s', 'now') - ?", days*86400)
}
