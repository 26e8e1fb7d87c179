package payment

import (
	"context"
	"database/sql"
	"time"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/engine/db"
)

const ledgerMigration = `
CREATE TABLE IF NOT EXISTS processed_events (
    event_id TEXT PRIMARY KEY,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    completed INTEGER NOT NULL DEFAULT 0,
    record_id TEXT NOT NULL DEFAULT ''
) STRICT;
`

const (
	// Stripe stops redelivering after three days.
	ledgerTTL = 30 * 24 * time.Hour

	// Claims that never completed (crash mid-insert) can be taken over after this long.
	claimTimeout = 5 * time.Minute
)

// Ledger remembers which webhook events have been turned into donation records
// so that redeliveries don't create duplicates.
type Ledger struct {
	db *sql.DB
}

func NewLedger(d *sql.DB) *Ledger {
	db.MustMigrate(d, ledgerMigration)
	return &Ledger{db: d}
}

// Claim reserves the event for processing. It returns false if the event has
// already been processed or another delivery is processing it right now.
func (l *Ledger) Claim(ctx context.Context, eventID string) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id) VALUES ($1)
		ON CONFLICT (event_id) DO UPDATE SET created = strftime('%s', 'now')
		WHERE completed = 0 AND created < strftime('%s', 'now') - $2`,
		eventID, int64(claimTimeout.Seconds()))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Release drops a claim so the event can be processed by a later delivery.
func (l *Ledger) Release(ctx context.Context, eventID string) error {
	_, err := l.db.ExecContext(ctx, "DELETE FROM processed_events WHERE event_id = $1 AND completed = 0", eventID)
	return err
}

func (l *Ledger) Complete(ctx context.Context, eventID, recordID string) error {
	_, err := l.db.ExecContext(ctx, "UPDATE processed_events SET completed = 1, record_id = $2 WHERE event_id = $1", eventID, recordID)
	return err
}

func (l *Ledger) Prune(ttl time.Duration) engine.PollingFunc {
	return engine.Cleanup(l.db, "processed stripe events",
		"DELETE FROM processed_events WHERE created < strftime('%s', 'now') - $1", int64(ttl.Seconds()))
}
