package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/model"
)

// NewIntent builds a pending outbox row. It is persisted by the machine
// update that produced it.
func NewIntent(machineID, userID string, kind model.IntentKind, payload map[string]any, now time.Time) model.NotificationIntent {
	now = now.UTC()
	return model.NotificationIntent{
		ID:            uuid.NewString(),
		MachineID:     machineID,
		UserID:        userID,
		Kind:          kind,
		Payload:       payload,
		Status:        model.IntentPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// OutboxOptions configures delivery retries.
type OutboxOptions struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Lease is how long a claimed intent may stay in processing before it is
	// handed out again.
	Lease time.Duration
}

// Outbox hands out due notification intents and records their outcome.
type Outbox struct {
	db   *gorm.DB
	opts OutboxOptions
}

func NewOutbox(db *gorm.DB, opts OutboxOptions) *Outbox {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 10 * time.Second
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = 30 * time.Minute
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	return &Outbox{db: db, opts: opts}
}

// ClaimDue moves up to batch due intents to processing and returns them.
// A row is only returned to the caller whose update claimed it.
func (o *Outbox) ClaimDue(ctx context.Context, now time.Time, batch int) ([]model.NotificationIntent, error) {
	now = now.UTC()
	staleBefore := now.Add(-o.opts.Lease)
	db := o.db.WithContext(ctx)

	var candidates []model.NotificationIntent
	err := db.Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND updated_at <= ?)",
		model.IntentPending, now, model.IntentProcessing, staleBefore).
		Order("next_attempt_at ASC").
		Limit(batch).
		Find(&candidates).Error
	if err != nil {
		return nil, &machine.PersistenceError{Op: "load due intents", Err: err}
	}

	claimed := make([]model.NotificationIntent, 0, len(candidates))
	for _, in := range candidates {
		token := uuid.NewString()
		res := db.Model(&model.NotificationIntent{}).
			Where("id = ? AND status = ? AND claim_token = ?", in.ID, in.Status, in.ClaimToken).
			Updates(map[string]any{"status": model.IntentProcessing, "claim_token": token, "updated_at": now})
		if res.Error != nil {
			return claimed, &machine.PersistenceError{Op: "claim intent", Err: res.Error}
		}
		if res.RowsAffected == 1 {
			in.Status = model.IntentProcessing
			in.ClaimToken = token
			in.UpdatedAt = now
			claimed = append(claimed, in)
		}
	}
	return claimed, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	err := o.db.WithContext(ctx).Model(&model.NotificationIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.IntentSent, "last_error": "", "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return &machine.PersistenceError{Op: "mark intent sent", Err: err}
	}
	return nil
}

// MarkFailed records a failed attempt. The intent is rescheduled with
// exponential backoff until the attempt budget is spent, after which it is
// parked as failed. The returned flag reports the latter.
func (o *Outbox) MarkFailed(ctx context.Context, in model.NotificationIntent, cause error, now time.Time) (bool, error) {
	now = now.UTC()
	attempts := in.Attempts + 1
	final := attempts >= o.opts.MaxAttempts

	updates := map[string]any{
		"attempts":   attempts,
		"last_error": truncate(cause.Error(), 500),
		"updated_at": now,
	}
	if final {
		updates["status"] = model.IntentFailed
	} else {
		updates["status"] = model.IntentPending
		updates["next_attempt_at"] = now.Add(o.Backoff(attempts))
	}
	if err := o.db.WithContext(ctx).Model(&model.NotificationIntent{}).Where("id = ?", in.ID).Updates(updates).Error; err != nil {
		return final, &machine.PersistenceError{Op: "mark intent failed", Err: err}
	}
	return final, nil
}

// Backoff is the delay before the next attempt after attempts failures.
func (o *Outbox) Backoff(attempts int) time.Duration {
	d := float64(o.opts.BaseBackoff) * math.Pow(2, float64(attempts-1))
	if d > float64(o.opts.MaxBackoff) {
		return o.opts.MaxBackoff
	}
	return time.Duration(d)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
