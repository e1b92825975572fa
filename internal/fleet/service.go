// Package fleet exposes the machine operations. Every operation takes the
// acting user id explicitly.
package fleet

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleet-history-backend/internal/alarm"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/store"
)

// Options configures the service.
type Options struct {
	// EventCapacity is the soft cap of a machine's event history.
	EventCapacity       int
	MaintenanceTypeName string
	Language            string
	// OnChange runs after a machine write commits.
	OnChange func(machineID string)
}

// Service coordinates the aggregate, its store and the event-type catalog.
type Service struct {
	store   store.Store
	catalog *store.Catalog
	opts    Options
	now     func() time.Time

	mu              sync.Mutex
	maintenanceType *model.EventType
}

// NewService creates a new fleet service.
func NewService(s store.Store, c *store.Catalog, opts Options) *Service {
	if opts.MaintenanceTypeName == "" {
		opts.MaintenanceTypeName = "Maintenance due"
	}
	return &Service{store: s, catalog: c, opts: opts, now: time.Now}
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return &machine.ValidationError{Field: "actorId", Reason: "must not be empty"}
	}
	return nil
}

func (s *Service) changed(machineID string) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(machineID)
	}
}

// RegisterMachine creates a machine. The actor becomes the owner unless an
// owner is given.
func (s *Service) RegisterMachine(ctx context.Context, actorID string, p machine.NewParams) (*machine.Machine, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		p.OwnerID = actorID
	}
	m, err := machine.New(p, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMachine(ctx, m); err != nil {
		return nil, err
	}
	zap.S().Infof("Machine %s (%s) registered by %s", m.ID, m.SerialNumber, actorID)
	return m, nil
}

// GetMachine returns the machine without its histories.
func (s *Service) GetMachine(ctx context.Context, actorID, machineID string) (*machine.Machine, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.store.GetMachine(ctx, machineID, store.FieldProfile)
}

func (s *Service) UpdateMachineStatus(ctx context.Context, actorID, machineID string, status machine.Status) (*machine.Machine, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	m, err := s.store.UpdateMachine(ctx, machineID, store.FieldProfile, func(m *machine.Machine) (store.Effects, error) {
		if m.Status == status {
			return store.Effects{Unchanged: true}, nil
		}
		return store.Effects{}, m.ChangeStatus(status)
	})
	if err != nil {
		return nil, err
	}
	s.changed(machineID)
	return m, nil
}

func (s *Service) AssignProvider(ctx context.Context, actorID, machineID, providerID string) (*machine.Machine, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	m, err := s.store.UpdateMachine(ctx, machineID, store.FieldProfile, func(m *machine.Machine) (store.Effects, error) {
		m.AssignProvider(providerID)
		return store.Effects{}, nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(machineID)
	return m, nil
}

// AddQuickCheck records an inspection executed by the actor.
func (s *Service) AddQuickCheck(ctx context.Context, actorID, machineID string, rec machine.QuickCheckRecord) (machine.QuickCheckRecord, error) {
	if err := requireActor(actorID); err != nil {
		return machine.QuickCheckRecord{}, err
	}
	rec.ExecutorID = actorID
	rec.ID = ""

	var added machine.QuickCheckRecord
	_, err := s.store.UpdateMachine(ctx, machineID, store.FieldQuickChecks, func(m *machine.Machine) (store.Effects, error) {
		var err error
		added, err = m.AddQuickCheckRecord(rec, s.now())
		return store.Effects{}, err
	})
	if err != nil {
		return machine.QuickCheckRecord{}, err
	}
	s.changed(machineID)
	return added, nil
}

func (s *Service) GetQuickCheckHistory(ctx context.Context, actorID, machineID string, f store.HistoryFilter, page, limit int) (store.Page[machine.QuickCheckRecord], error) {
	if err := requireActor(actorID); err != nil {
		return store.Page[machine.QuickCheckRecord]{}, err
	}
	return s.store.QueryQuickChecks(ctx, machineID, f, page, limit)
}

// LatestQuickCheck returns nil when the machine has no checks yet.
func (s *Service) LatestQuickCheck(ctx context.Context, actorID, machineID string) (*machine.QuickCheckRecord, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.store.LatestQuickCheck(ctx, machineID)
}

// EventInput is a user reported event. The type is given either by id or by
// name, in which case it is created in the catalog on first use.
type EventInput struct {
	TypeID      string
	TypeName    string
	Language    string
	Title       string
	Description string
	Metadata    map[string]any
}

func (s *Service) resolveType(ctx context.Context, in EventInput) (model.EventType, error) {
	if in.TypeID != "" {
		t, err := s.catalog.GetType(ctx, in.TypeID)
		if machine.IsNotFound(err) {
			return model.EventType{}, &machine.ValidationError{Field: "typeId", Reason: "unknown event type"}
		}
		return t, err
	}
	if strings.TrimSpace(in.TypeName) == "" {
		return model.EventType{}, &machine.ValidationError{Field: "typeId", Reason: "typeId or typeName is required"}
	}
	return s.catalog.ResolveOrCreateType(ctx, in.TypeName, in.Language, false)
}

// AddEvent appends a user reported event. The catalog usage counter is bumped
// asynchronously through the outbox.
func (s *Service) AddEvent(ctx context.Context, actorID, machineID string, in EventInput) (machine.Event, error) {
	if err := requireActor(actorID); err != nil {
		return machine.Event{}, err
	}
	t, err := s.resolveType(ctx, in)
	if err != nil {
		return machine.Event{}, err
	}

	var (
		added   machine.Event
		evicted int
	)
	_, err = s.store.UpdateMachine(ctx, machineID, store.FieldEvents, func(m *machine.Machine) (store.Effects, error) {
		now := s.now()
		var err error
		added, evicted, err = m.AddEvent(machine.Event{
			TypeID:      t.ID,
			TypeName:    t.Name,
			Title:       in.Title,
			Description: in.Description,
			CreatedBy:   actorID,
			Metadata:    in.Metadata,
		}, s.opts.EventCapacity, now)
		if err != nil {
			return store.Effects{}, err
		}
		return store.Effects{Intents: []model.NotificationIntent{usageIntent(m.ID, t.ID, now)}}, nil
	})
	if err != nil {
		return machine.Event{}, err
	}
	if evicted > 0 {
		metrics.EventsEvicted.Add(float64(evicted))
		zap.S().Debugf("Machine %s: %d old events evicted", machineID, evicted)
	}
	s.changed(machineID)
	return added, nil
}

func (s *Service) GetEventsHistory(ctx context.Context, actorID, machineID string, f store.HistoryFilter, page, limit int) (store.Page[machine.Event], error) {
	if err := requireActor(actorID); err != nil {
		return store.Page[machine.Event]{}, err
	}
	return s.store.QueryEvents(ctx, machineID, f, page, limit)
}

// LatestEvent returns nil when the machine has no events yet.
func (s *Service) LatestEvent(ctx context.Context, actorID, machineID string) (*machine.Event, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.store.LatestEvent(ctx, machineID)
}

// ListEventTypes lists catalog types for pickers.
func (s *Service) ListEventTypes(ctx context.Context, language, search string, limit int) ([]model.EventType, error) {
	if language == "" {
		language = s.opts.Language
	}
	return s.catalog.ListTypes(ctx, language, search, limit)
}

func usageIntent(machineID, typeID string, now time.Time) model.NotificationIntent {
	return store.NewIntent(machineID, "", model.IntentTypeUsage, map[string]any{"typeId": typeID}, now)
}

// alarmOp runs one alarm mutation and returns the alarm it produced.
func (s *Service) alarmOp(ctx context.Context, actorID, machineID string, op func(m *machine.Machine, now time.Time) (alarm.Alarm, error)) (alarm.Alarm, error) {
	if err := requireActor(actorID); err != nil {
		return alarm.Alarm{}, err
	}
	var out alarm.Alarm
	_, err := s.store.UpdateMachine(ctx, machineID, store.FieldAlarms, func(m *machine.Machine) (store.Effects, error) {
		var err error
		out, err = op(m, s.now())
		return store.Effects{}, err
	})
	if err != nil {
		return alarm.Alarm{}, err
	}
	s.changed(machineID)
	return out, nil
}

func (s *Service) CreateAlarm(ctx context.Context, actorID, machineID string, in machine.AlarmInput) (alarm.Alarm, error) {
	return s.alarmOp(ctx, actorID, machineID, func(m *machine.Machine, now time.Time) (alarm.Alarm, error) {
		return m.CreateAlarm(in, actorID, now)
	})
}

func (s *Service) UpdateAlarm(ctx context.Context, actorID, machineID, alarmID string, patch machine.AlarmPatch) (alarm.Alarm, error) {
	return s.alarmOp(ctx, actorID, machineID, func(m *machine.Machine, now time.Time) (alarm.Alarm, error) {
		return m.UpdateAlarm(alarmID, patch, now)
	})
}

// DeactivateAlarm soft-deletes the alarm; its accumulator is kept.
func (s *Service) DeactivateAlarm(ctx context.Context, actorID, machineID, alarmID string) (alarm.Alarm, error) {
	return s.alarmOp(ctx, actorID, machineID, func(m *machine.Machine, now time.Time) (alarm.Alarm, error) {
		return m.DeactivateAlarm(alarmID, now)
	})
}

func (s *Service) ReactivateAlarm(ctx context.Context, actorID, machineID, alarmID string) (alarm.Alarm, error) {
	return s.alarmOp(ctx, actorID, machineID, func(m *machine.Machine, now time.Time) (alarm.Alarm, error) {
		return m.ReactivateAlarm(alarmID, now)
	})
}

// ListAlarms returns every alarm of the machine, inactive ones included.
func (s *Service) ListAlarms(ctx context.Context, actorID, machineID string) ([]alarm.Alarm, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	m, err := s.store.GetMachine(ctx, machineID, store.FieldAlarms)
	if err != nil {
		return nil, err
	}
	if m.MaintenanceAlarms == nil {
		return []alarm.Alarm{}, nil
	}
	return m.MaintenanceAlarms, nil
}
