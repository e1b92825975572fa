package fleet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fleet-history-backend/internal/alarm"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/metrics"
	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/store"
)

// HoursResult reports a committed operating-hour reading.
type HoursResult struct {
	MachineID string          `json:"machineId"`
	Previous  float64         `json:"previousHours"`
	Current   float64         `json:"operatingHours"`
	Delta     float64         `json:"deltaHours"`
	Triggers  []TriggerView   `json:"triggers"`
	Events    []machine.Event `json:"events"`
}

// TriggerView is one fired alarm interval.
type TriggerView struct {
	AlarmID          string  `json:"alarmId"`
	Title            string  `json:"title"`
	Occurrence       int     `json:"occurrence"`
	TriggeredAtHours float64 `json:"triggeredAtHours"`
}

// errNeedEvents asks for a reload including the event history.
var errNeedEvents = errors.New("trigger requires the event history")

func (s *Service) maintenanceEventType(ctx context.Context) (model.EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maintenanceType != nil {
		return *s.maintenanceType, nil
	}
	t, err := s.catalog.ResolveOrCreateType(ctx, s.opts.MaintenanceTypeName, s.opts.Language, true)
	if err != nil {
		return model.EventType{}, err
	}
	s.maintenanceType = &t
	return t, nil
}

// RecordOperatingHours moves the machine's meter to the absolute total and
// advances its alarms. Every crossed interval records a system event and a
// notification intent per recipient in the same write. Repeating a reading
// is a no-op.
func (s *Service) RecordOperatingHours(ctx context.Context, actorID, machineID string, total float64) (HoursResult, error) {
	if err := requireActor(actorID); err != nil {
		return HoursResult{}, err
	}
	mt, err := s.maintenanceEventType(ctx)
	if err != nil {
		return HoursResult{}, err
	}

	// Most readings fire nothing, so the event history is only loaded once
	// a trigger shows up.
	fields := store.FieldHours | store.FieldAlarms
	var result HoursResult
	for {
		result = HoursResult{MachineID: machineID}
		_, err = s.store.UpdateMachine(ctx, machineID, fields, func(m *machine.Machine) (store.Effects, error) {
			return s.applyHours(m, fields, total, mt, &result)
		})
		if errors.Is(err, errNeedEvents) {
			fields |= store.FieldEvents
			continue
		}
		break
	}
	if err != nil {
		if machine.IsValidation(err) {
			metrics.OperatingHourUpdates.WithLabelValues("rejected").Inc()
		}
		return HoursResult{}, err
	}

	if result.Delta == 0 {
		metrics.OperatingHourUpdates.WithLabelValues("unchanged").Inc()
		return result, nil
	}
	metrics.OperatingHourUpdates.WithLabelValues("applied").Inc()
	metrics.AlarmsFired.Add(float64(len(result.Triggers)))
	for _, t := range result.Triggers {
		zap.S().Infof("Machine %s: alarm %s (%s) fired at %.1f h, occurrence %d",
			machineID, t.AlarmID, t.Title, t.TriggeredAtHours, t.Occurrence)
	}
	s.changed(machineID)
	return result, nil
}

func (s *Service) applyHours(m *machine.Machine, fields store.Field, total float64, mt model.EventType, result *HoursResult) (store.Effects, error) {
	now := s.now()
	update, err := m.RecordOperatingHours(total, now)
	if err != nil {
		return store.Effects{}, err
	}
	result.Previous, result.Current, result.Delta = update.Previous, update.Current, update.Delta
	result.Triggers = []TriggerView{}
	result.Events = []machine.Event{}
	if update.Delta == 0 {
		return store.Effects{Unchanged: true}, nil
	}
	if len(update.Triggers) == 0 {
		return store.Effects{}, nil
	}
	if fields&store.FieldEvents == 0 {
		return store.Effects{}, errNeedEvents
	}

	var intents []model.NotificationIntent
	recipients := m.Recipients()
	for _, t := range update.Triggers {
		at := update.AtHours(t)
		ev, evicted, err := m.AddEvent(machine.MaintenanceDueEvent(t, mt.ID, mt.Name, at), s.opts.EventCapacity, now)
		if err != nil {
			return store.Effects{}, err
		}
		if evicted > 0 {
			metrics.EventsEvicted.Add(float64(evicted))
		}
		result.Events = append(result.Events, ev)
		result.Triggers = append(result.Triggers, TriggerView{
			AlarmID:          t.AlarmID,
			Title:            t.Title,
			Occurrence:       t.Occurrence,
			TriggeredAtHours: at,
		})

		for _, userID := range recipients {
			intents = append(intents, store.NewIntent(m.ID, userID, model.IntentMaintenanceDue, dueNotification(m, t, ev, at), now))
		}
		intents = append(intents, usageIntent(m.ID, mt.ID, now))
	}
	return store.Effects{Intents: intents}, nil
}

func dueNotification(m *machine.Machine, t alarm.Trigger, ev machine.Event, at float64) map[string]any {
	return map[string]any{
		"machineId":        m.ID,
		"serialNumber":     m.SerialNumber,
		"alarmId":          t.AlarmID,
		"eventId":          ev.ID,
		"title":            ev.Title,
		"body":             ev.Description,
		"occurrence":       t.Occurrence,
		"triggeredAtHours": at,
	}
}

// RecordOperatingHoursBySerial resolves the machine by serial number first.
func (s *Service) RecordOperatingHoursBySerial(ctx context.Context, actorID, serial string, total float64) (HoursResult, error) {
	m, err := s.store.FindMachineBySerial(ctx, serial, store.FieldProfile)
	if err != nil {
		return HoursResult{}, err
	}
	return s.RecordOperatingHours(ctx, actorID, m.ID, total)
}
