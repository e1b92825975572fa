package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleet-history-backend/internal/db"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	mu       sync.Mutex
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
	calls    []string
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sub.Endpoint)
	m.mu.Unlock()
	return m.SendFunc(payload, sub, options)
}

func status(code int) (*http.Response, error) {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
}

type mockUsage struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (m *mockUsage) IncrementUsage(ctx context.Context, typeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, typeID)
	return m.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newTestPool(t *testing.T, sender *mockSender, usage *mockUsage) (*WorkerPool, *gorm.DB) {
	gdb := newTestDB(t)
	outbox := store.NewOutbox(gdb, store.OutboxOptions{MaxAttempts: 2, BaseBackoff: time.Minute})
	wp := NewWorkerPool(Options{Size: 1, PollInterval: 10 * time.Millisecond}, gdb, outbox, usage, &webpush.Options{})
	wp.sender = sender
	return wp, gdb
}

func enqueue(t *testing.T, gdb *gorm.DB, in model.NotificationIntent) model.NotificationIntent {
	in.NextAttemptAt = in.NextAttemptAt.Add(-time.Second)
	require.NoError(t, gdb.Create(&in).Error)
	return in
}

func reload(t *testing.T, gdb *gorm.DB, id string) model.NotificationIntent {
	var in model.NotificationIntent
	require.NoError(t, gdb.Take(&in, "id = ?", id).Error)
	return in
}

func subscribe(t *testing.T, gdb *gorm.DB, userID, endpoint string) {
	require.NoError(t, gdb.Create(&model.PushSubscription{Endpoint: endpoint, UserID: userID, P256DH: "p", Auth: "a", CreatedAt: time.Now()}).Error)
}

func dueIntent(userID string) model.NotificationIntent {
	return store.NewIntent("m-1", userID, model.IntentMaintenanceDue, map[string]any{
		"title": "Maintenance due: Engine oil", "serialNumber": "SN-1",
	}, time.Now())
}

func TestWorkerPool_DeliversToEverySubscription(t *testing.T) {
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, "maintenance_due", msg["kind"])
		assert.Equal(t, "Maintenance due: Engine oil", msg["title"])
		return status(http.StatusCreated)
	}}
	wp, gdb := newTestPool(t, sender, &mockUsage{})
	subscribe(t, gdb, "owner-1", "https://push.example.com/a")
	subscribe(t, gdb, "owner-1", "https://push.example.com/b")
	subscribe(t, gdb, "someone-else", "https://push.example.com/c")
	in := enqueue(t, gdb, dueIntent("owner-1"))

	wp.process(t.Context(), in)

	assert.ElementsMatch(t, []string{"https://push.example.com/a", "https://push.example.com/b"}, sender.calls)
	assert.Equal(t, model.IntentSent, reload(t, gdb, in.ID).Status)
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		return status(http.StatusGone)
	}}
	wp, gdb := newTestPool(t, sender, &mockUsage{})
	subscribe(t, gdb, "owner-1", "https://push.example.com/expired")
	in := enqueue(t, gdb, dueIntent("owner-1"))

	wp.process(t.Context(), in)

	var count int64
	require.NoError(t, gdb.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, model.IntentSent, reload(t, gdb, in.ID).Status)
}

func TestWorkerPool_FailureIsRescheduledThenParked(t *testing.T) {
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}
	wp, gdb := newTestPool(t, sender, &mockUsage{})
	subscribe(t, gdb, "owner-1", "https://push.example.com/down")
	in := enqueue(t, gdb, dueIntent("owner-1"))

	wp.process(t.Context(), in)
	stored := reload(t, gdb, in.ID)
	assert.Equal(t, model.IntentPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "connection refused")
	assert.True(t, stored.NextAttemptAt.After(time.Now()))

	wp.process(t.Context(), stored)
	assert.Equal(t, model.IntentFailed, reload(t, gdb, in.ID).Status)
}

func TestWorkerPool_NoSubscriptions(t *testing.T) {
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		t.Fatal("nothing to send")
		return nil, nil
	}}
	wp, gdb := newTestPool(t, sender, &mockUsage{})
	in := enqueue(t, gdb, dueIntent("nobody"))

	wp.process(t.Context(), in)
	assert.Equal(t, model.IntentSent, reload(t, gdb, in.ID).Status)
}

func TestWorkerPool_UsageIntents(t *testing.T) {
	usage := &mockUsage{}
	wp, gdb := newTestPool(t, &mockSender{}, usage)
	in := enqueue(t, gdb, store.NewIntent("m-1", "", model.IntentTypeUsage, map[string]any{"typeId": "type-1"}, time.Now()))

	wp.process(t.Context(), in)
	assert.Equal(t, []string{"type-1"}, usage.ids)
	assert.Equal(t, model.IntentSent, reload(t, gdb, in.ID).Status)

	usage.err = &machine.NotFoundError{Kind: "event type", ID: "gone"}
	dropped := enqueue(t, gdb, store.NewIntent("m-1", "", model.IntentTypeUsage, map[string]any{"typeId": "gone"}, time.Now()))
	wp.process(t.Context(), dropped)
	assert.Equal(t, model.IntentSent, reload(t, gdb, dropped.ID).Status)

	broken := enqueue(t, gdb, store.NewIntent("m-1", "", model.IntentTypeUsage, map[string]any{}, time.Now()))
	wp.process(t.Context(), broken)
	assert.Equal(t, model.IntentPending, reload(t, gdb, broken.ID).Status)
}

func TestWorkerPool_StartDrainsOutbox(t *testing.T) {
	sender := &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
		return status(http.StatusCreated)
	}}
	wp, gdb := newTestPool(t, sender, &mockUsage{})
	subscribe(t, gdb, "owner-1", "https://push.example.com/a")
	in := enqueue(t, gdb, dueIntent("owner-1"))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	wp.Start(ctx)

	assert.Eventually(t, func() bool {
		var stored model.NotificationIntent
		if err := gdb.Take(&stored, "id = ?", in.ID).Error; err != nil {
			return false
		}
		return stored.Status == model.IntentSent
	}, 2*time.Second, 20*time.Millisecond)
}
