package payment

import (
	"testing"

	"github.com/TheLab-ms/tipjar/engine/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerClaim(t *testing.T) {
	ctx := t.Context()
	l := NewLedger(db.OpenTest(t))

	ok, err := l.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// In flight
	ok, err = l.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Released claims can be taken again
	require.NoError(t, l.Release(ctx, "evt_1"))
	ok, err = l.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Completed events are never claimed again
	require.NoError(t, l.Complete(ctx, "evt_1", "rec1"))
	require.NoError(t, l.Release(ctx, "evt_1"))
	ok, err = l.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	var recordID string
	err = l.db.QueryRow("SELECT record_id FROM processed_events WHERE event_id = 'evt_1'").Scan(&recordID)
	require.NoError(t, err)
	assert.Equal(t, "rec1", recordID)
}

func TestLedgerStaleClaim(t *testing.T) {
	ctx := t.Context()
	l := NewLedger(db.OpenTest(t))

	_, err := l.db.Exec("INSERT INTO processed_events (event_id, created) VALUES ('evt_stale', strftime('%s', 'now') - 3600), ('evt_done', strftime('%s', 'now') - 3600)")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, "evt_done", "rec1"))

	ok, err := l.Claim(ctx, "evt_stale")
	require.NoError(t, err)
	assert.True(t, ok, "abandoned claims can be taken over")

	ok, err = l.Claim(ctx, "evt_done")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerPrune(t *testing.T) {
	ctx := t.Context()
	l := NewLedger(db.OpenTest(t))

	_, err := l.db.Exec("INSERT INTO processed_events (event_id, created, completed) VALUES ('evt_old', strftime('%s', 'now') - 40 * 86400, 1), ('evt_new', strftime('%s', 'now'), 1)")
	require.NoError(t, err)

	assert.False(t, l.Prune(ledgerTTL)(ctx))

	var ids []string
	rows, err := l.db.Query("SELECT event_id FROM processed_events")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"evt_new"}, ids)
}
