package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// UsageCounter bumps event-type usage counters.
type UsageCounter interface {
	IncrementUsage(ctx context.Context, typeID string) error
}

// Options configures the dispatcher.
type Options struct {
	Size         int
	PollInterval time.Duration
	BatchSize    int
}

// WorkerPool drains the notification outbox. A poller claims due intents and
// hands them to a fixed number of workers.
type WorkerPool struct {
	size     int
	interval time.Duration
	batch    int
	jobs     chan model.NotificationIntent
	db       *gorm.DB
	outbox   *store.Outbox
	usage    UsageCounter
	webpush  *webpush.Options
	sender   NotificationSender
	now      func() time.Time
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(opts Options, db *gorm.DB, outbox *store.Outbox, usage UsageCounter, webpushOptions *webpush.Options) *WorkerPool {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &WorkerPool{
		size:     opts.Size,
		interval: opts.PollInterval,
		batch:    opts.BatchSize,
		jobs:     make(chan model.NotificationIntent, opts.Size), // Buffered channel
		db:       db,
		outbox:   outbox,
		usage:    usage,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
		now:      time.Now,
	}
}

// Start launches the worker goroutines and the outbox poller.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
	go wp.poll(ctx)
}

func (wp *WorkerPool) poll(ctx context.Context) {
	ticker := time.NewTicker(wp.interval)
	defer ticker.Stop()
	for {
		wp.PollOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce claims the due intents and queues them for the workers. It
// returns the number queued.
func (wp *WorkerPool) PollOnce(ctx context.Context) int {
	intents, err := wp.outbox.ClaimDue(ctx, wp.now(), wp.batch)
	if err != nil {
		zap.S().Errorf("Error claiming notification intents: %v", err)
	}
	for i, in := range intents {
		select {
		case wp.jobs <- in:
		case <-ctx.Done():
			// Unqueued claims are handed out again once their lease expires.
			return i
		}
	}
	return len(intents)
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	zap.S().Debugf("Notification worker %d started", id)
	for {
		select {
		case in := <-wp.jobs:
			wp.process(ctx, in)
		case <-ctx.Done():
			zap.S().Debugf("Notification worker %d shutting down", id)
			return
		}
	}
}

// process handles one intent and records the outcome in the outbox. Failures
// never reach the machine write that produced the intent.
func (wp *WorkerPool) process(ctx context.Context, in model.NotificationIntent) {
	var err error
	switch in.Kind {
	case model.IntentMaintenanceDue:
		err = wp.deliver(ctx, in)
	case model.IntentTypeUsage:
		err = wp.countUsage(ctx, in)
	default:
		err = fmt.Errorf("unknown intent kind %q", in.Kind)
	}

	if err == nil {
		if err := wp.outbox.MarkSent(ctx, in.ID); err != nil {
			zap.S().Errorf("Failed to mark intent %s as sent: %v", in.ID, err)
		}
		metrics.NotificationsDelivered.WithLabelValues(string(in.Kind), "sent").Inc()
		return
	}

	final, markErr := wp.outbox.MarkFailed(ctx, in, err, wp.now())
	if markErr != nil {
		zap.S().Errorf("Failed to record failure of intent %s: %v", in.ID, markErr)
	}
	result := "retry"
	if final {
		result = "failed"
	}
	metrics.NotificationsDelivered.WithLabelValues(string(in.Kind), result).Inc()
	zap.S().Warnf("Intent %s (%s) for machine %s failed (attempt %d, %s): %v",
		in.ID, in.Kind, in.MachineID, in.Attempts+1, result, err)
}

func (wp *WorkerPool) countUsage(ctx context.Context, in model.NotificationIntent) error {
	typeID, _ := in.Payload["typeId"].(string)
	if typeID == "" {
		return errors.New("usage intent without typeId")
	}
	err := wp.usage.IncrementUsage(ctx, typeID)
	if machine.IsNotFound(err) {
		zap.S().Warnf("Event type %s no longer exists; dropping usage intent %s", typeID, in.ID)
		return nil
	}
	return err
}

// deliver pushes the intent to every subscription of its user. It succeeds
// when at least one push was accepted or nothing is left to deliver to.
func (wp *WorkerPool) deliver(ctx context.Context, in model.NotificationIntent) error {
	if wp.webpush == nil {
		zap.S().Debugf("Push delivery disabled; intent %s for user %s dropped", in.ID, in.UserID)
		return nil
	}
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Where("user_id = ?", in.UserID).Find(&subscriptions).Error; err != nil {
		return fmt.Errorf("failed to fetch subscriptions of %s: %w", in.UserID, err)
	}
	if len(subscriptions) == 0 {
		zap.S().Debugf("User %s has no push subscriptions; intent %s skipped", in.UserID, in.ID)
		return nil
	}

	message := map[string]any{"kind": in.Kind}
	for k, v := range in.Payload {
		message[k] = v
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	zap.S().Infof("Sending %d notifications to user %s for machine %s", len(subscriptions), in.UserID, in.MachineID)
	var lastErr error
	delivered, expired := 0, 0
	for _, sub := range subscriptions {
		switch gone, err := wp.sendNotification(ctx, sub, payload); {
		case err != nil:
			lastErr = err
		case gone:
			expired++
		default:
			delivered++
		}
	}
	if delivered > 0 || expired == len(subscriptions) {
		return nil
	}
	return lastErr
}

// sendNotification sends a single web push notification. It reports whether
// the subscription was expired and removed.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) (bool, error) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		return false, fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		zap.S().Infof("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			zap.S().Errorf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
		return true, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("push to %s rejected with status %d", sub.Endpoint, resp.StatusCode)
	}
	return false, nil
}
