package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EagleChen/mapmutex"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
	"fleet-history-backend/internal/model"
)

// Field selects which parts of a machine row a read or write touches.
type Field uint8

const (
	// FieldProfile is the scalar part of the machine (always read).
	FieldProfile Field = 1 << iota
	FieldHours
	FieldQuickChecks
	FieldEvents
	FieldAlarms

	FieldAll = FieldProfile | FieldHours | FieldQuickChecks | FieldEvents | FieldAlarms
)

var baseColumns = []string{
	"id", "serial_number", "brand", "model_name", "status", "owner_id",
	"assigned_provider_id", "operating_hours", "year", "fuel_type", "capacity",
	"version", "created_at", "updated_at",
}

func (f Field) columns() []string {
	cols := append([]string(nil), baseColumns...)
	if f&FieldQuickChecks != 0 {
		cols = append(cols, "quick_checks")
	}
	if f&FieldEvents != 0 {
		cols = append(cols, "events_history")
	}
	if f&FieldAlarms != 0 {
		cols = append(cols, "maintenance_alarms")
	}
	return cols
}

// Effects are written in the same transaction as a machine update.
type Effects struct {
	Intents []model.NotificationIntent
	// Unchanged skips the write; the loaded machine is returned as is.
	Unchanged bool
}

// Mutation applies a domain change to a freshly loaded machine. It may run
// more than once when the row changes concurrently, so it must not perform
// I/O of its own.
type Mutation func(m *machine.Machine) (Effects, error)

// Store defines the machine persistence operations.
type Store interface {
	DB() *gorm.DB
	CreateMachine(ctx context.Context, m *machine.Machine) error
	GetMachine(ctx context.Context, id string, fields Field) (*machine.Machine, error)
	FindMachineBySerial(ctx context.Context, serial string, fields Field) (*machine.Machine, error)
	UpdateMachine(ctx context.Context, id string, fields Field, mutate Mutation) (*machine.Machine, error)

	QueryQuickChecks(ctx context.Context, machineID string, f HistoryFilter, page, limit int) (Page[machine.QuickCheckRecord], error)
	QueryEvents(ctx context.Context, machineID string, f HistoryFilter, page, limit int) (Page[machine.Event], error)
	LatestQuickCheck(ctx context.Context, machineID string) (*machine.QuickCheckRecord, error)
	LatestEvent(ctx context.Context, machineID string) (*machine.Event, error)
}

// Options tunes the optimistic write path.
type Options struct {
	MaxAttempts     int
	DefaultPageSize int
	MaxPageSize     int
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db          *gorm.DB
	dialect     dialect
	locks       *mapmutex.Mutex
	maxAttempts int

	defaultPageSize int
	maxPageSize     int
}

var errVersionConflict = errors.New("machine version changed")

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) Store {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = min(20, opts.MaxPageSize)
	}
	// 800 retries, 0.1s max delay, 10ns base delay, 1.1 factor, 0.2 jitter
	locks := mapmutex.NewCustomizedMapMutex(800, 100000000, 10, 1.1, 0.2)
	return &gormStore{
		db:          db,
		dialect:     dialectFor(db),
		locks:       locks,
		maxAttempts: opts.MaxAttempts,

		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// CreateMachine inserts a new machine row.
func (s *gormStore) CreateMachine(ctx context.Context, m *machine.Machine) error {
	rec := toModel(m)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return &machine.ValidationError{Field: "serialNumber", Reason: "is already registered"}
		}
		return &machine.PersistenceError{Op: "create machine", Err: err}
	}
	return nil
}

// GetMachine loads the scalar part of a machine plus the requested collections.
func (s *gormStore) GetMachine(ctx context.Context, id string, fields Field) (*machine.Machine, error) {
	return s.getMachine(s.db.WithContext(ctx), "id = ?", id, fields)
}

func (s *gormStore) FindMachineBySerial(ctx context.Context, serial string, fields Field) (*machine.Machine, error) {
	return s.getMachine(s.db.WithContext(ctx), "serial_number = ?", serial, fields)
}

func (s *gormStore) getMachine(db *gorm.DB, where string, key string, fields Field) (*machine.Machine, error) {
	var rec model.Machine
	err := db.Select(fields.columns()).Where(where, key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &machine.NotFoundError{Kind: "machine", ID: key}
	}
	if err != nil {
		return nil, &machine.PersistenceError{Op: "load machine", Err: err}
	}
	return toDomain(&rec), nil
}

// UpdateMachine loads the machine, applies mutate and writes back only the
// selected columns, guarded by the row version. A version mismatch reloads
// and reapplies the mutation until the retry budget is exhausted. Writers in
// this process are additionally serialized per machine.
func (s *gormStore) UpdateMachine(ctx context.Context, id string, fields Field, mutate Mutation) (*machine.Machine, error) {
	if s.locks.TryLock(id) {
		defer s.locks.Unlock(id)
	} else {
		zap.S().Debugf("machine %s: keyed lock busy, relying on version check", id)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		m, err := s.GetMachine(ctx, id, fields)
		if err != nil {
			return nil, err
		}
		loadedVersion := m.Version

		effects, err := mutate(m)
		if err != nil {
			return nil, err
		}
		if effects.Unchanged {
			return m, nil
		}

		now := time.Now().UTC()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&model.Machine{}).
				Where("id = ? AND version = ?", id, loadedVersion).
				Updates(updateColumns(m, fields, loadedVersion+1, now))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			if len(effects.Intents) > 0 {
				if err := tx.Create(&effects.Intents).Error; err != nil {
					return fmt.Errorf("failed to enqueue %d intents: %w", len(effects.Intents), err)
				}
			}
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			metrics.OptimisticConflicts.Inc()
			zap.S().Debugf("machine %s changed during update (attempt %d/%d)", id, attempt, s.maxAttempts)
			continue
		}
		if err != nil {
			return nil, &machine.PersistenceError{Op: "update machine", Err: err}
		}

		m.Version = loadedVersion + 1
		m.UpdatedAt = now
		return m, nil
	}
	return nil, &machine.ConflictError{MachineID: id, Attempts: s.maxAttempts}
}

// updateColumns lists the columns owned by fields. Collections that were not
// loaded are never written back.
func updateColumns(m *machine.Machine, fields Field, version int64, now time.Time) map[string]any {
	cols := map[string]any{
		"version":    version,
		"updated_at": now,
	}
	if fields&FieldProfile != 0 {
		cols["status"] = string(m.Status)
		cols["assigned_provider_id"] = m.AssignedProviderID
	}
	if fields&FieldHours != 0 {
		cols["operating_hours"] = m.Specs.OperatingHours
	}
	if fields&FieldQuickChecks != 0 {
		cols["quick_checks"] = quickChecksColumn(m.QuickChecks)
	}
	if fields&FieldEvents != 0 {
		cols["events_history"] = eventsColumn(m.EventsHistory)
	}
	if fields&FieldAlarms != 0 {
		cols["maintenance_alarms"] = alarmsColumn(m.MaintenanceAlarms)
	}
	return cols
}

// isUniqueViolation covers drivers that do not translate errors.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
