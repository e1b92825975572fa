package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-history-backend/internal/model"
)

func TestOutbox_ClaimAndComplete(t *testing.T) {
	gdb := newSQLiteDB(t)
	o := NewOutbox(gdb, OutboxOptions{MaxAttempts: 2, BaseBackoff: time.Minute, MaxBackoff: time.Hour, Lease: time.Minute})

	now := testEpoch
	due := NewIntent("m-1", "u-1", model.IntentMaintenanceDue, map[string]any{"title": "Oil"}, now)
	later := NewIntent("m-1", "u-2", model.IntentMaintenanceDue, map[string]any{"title": "Oil"}, now)
	later.NextAttemptAt = now.Add(time.Hour)
	require.NoError(t, gdb.Create(&[]model.NotificationIntent{due, later}).Error)

	claimed, err := o.ClaimDue(t.Context(), now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, "Oil", claimed[0].Payload["title"])

	again, err := o.ClaimDue(t.Context(), now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed intents are not handed out twice")

	require.NoError(t, o.MarkSent(t.Context(), due.ID))
	var stored model.NotificationIntent
	require.NoError(t, gdb.Take(&stored, "id = ?", due.ID).Error)
	assert.Equal(t, model.IntentSent, stored.Status)
}

func TestOutbox_FailureBackoffAndPark(t *testing.T) {
	gdb := newSQLiteDB(t)
	o := NewOutbox(gdb, OutboxOptions{MaxAttempts: 2, BaseBackoff: time.Minute, MaxBackoff: time.Hour, Lease: time.Minute})

	now := testEpoch
	in := NewIntent("m-1", "u-1", model.IntentMaintenanceDue, map[string]any{}, now)
	require.NoError(t, gdb.Create(&in).Error)

	claimed, err := o.ClaimDue(t.Context(), now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	final, err := o.MarkFailed(t.Context(), claimed[0], errors.New("push gateway down"), now)
	require.NoError(t, err)
	assert.False(t, final)

	none, err := o.ClaimDue(t.Context(), now.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, none, "rescheduled intent is not due yet")

	retry, err := o.ClaimDue(t.Context(), now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 1, retry[0].Attempts)

	final, err = o.MarkFailed(t.Context(), retry[0], errors.New("still down"), now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, final)

	var stored model.NotificationIntent
	require.NoError(t, gdb.Take(&stored, "id = ?", in.ID).Error)
	assert.Equal(t, model.IntentFailed, stored.Status)
	assert.Equal(t, "still down", stored.LastError)
}

func TestOutbox_ReclaimsExpiredLease(t *testing.T) {
	gdb := newSQLiteDB(t)
	o := NewOutbox(gdb, OutboxOptions{Lease: time.Minute})

	now := testEpoch
	in := NewIntent("m-1", "u-1", model.IntentTypeUsage, map[string]any{"typeId": "t"}, now)
	require.NoError(t, gdb.Create(&in).Error)

	_, err := o.ClaimDue(t.Context(), now, 10)
	require.NoError(t, err)

	reclaimed, err := o.ClaimDue(t.Context(), now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, in.ID, reclaimed[0].ID)
}

func TestOutbox_Backoff(t *testing.T) {
	o := NewOutbox(nil, OutboxOptions{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second})
	assert.Equal(t, time.Second, o.Backoff(1))
	assert.Equal(t, 2*time.Second, o.Backoff(2))
	assert.Equal(t, 4*time.Second, o.Backoff(3))
	assert.Equal(t, 5*time.Second, o.Backoff(4))
}
