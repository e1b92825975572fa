package machine

import (
	"fmt"
	"math"
	"time"

	"fleet-history-backend/internal/alarm"
)

// MaxOperatingHours is the highest meter reading accepted.
const MaxOperatingHours = 10_000_000

// HoursUpdate describes a committed meter transition.
type HoursUpdate struct {
	Previous float64
	Current  float64
	Delta    float64
	// Triggers are in the order the intervals were crossed.
	Triggers []alarm.Trigger
}

// AtHours returns the meter reading at which t fired.
func (u HoursUpdate) AtHours(t alarm.Trigger) float64 {
	return u.Previous + t.Offset
}

// RecordOperatingHours moves the meter to newTotal and advances every active
// alarm by the delta. Meter and alarms change together or not at all.
func (m *Machine) RecordOperatingHours(newTotal float64, now time.Time) (HoursUpdate, error) {
	if err := validateHours(newTotal); err != nil {
		return HoursUpdate{}, err
	}
	if m.Status == StatusRetired {
		return HoursUpdate{}, invalid("status", "a retired machine does not accept operating hours")
	}
	prev := m.Specs.OperatingHours
	if newTotal < prev {
		return HoursUpdate{}, invalid("operatingHours", fmt.Sprintf("must not decrease (current %.2f, got %.2f)", prev, newTotal))
	}

	update := HoursUpdate{Previous: prev, Current: newTotal, Delta: newTotal - prev}
	if update.Delta == 0 {
		return update, nil
	}

	now = normalizeTime(now)
	alarms, triggers := alarm.AdvanceAll(m.MaintenanceAlarms, update.Delta, now)
	for _, t := range triggers {
		if i := indexOf(alarms, t.AlarmID); i >= 0 {
			alarms[i].LastTriggeredHours = update.AtHours(t)
		}
	}

	m.MaintenanceAlarms = alarms
	m.Specs.OperatingHours = newTotal
	update.Triggers = triggers
	return update, nil
}

func validateHours(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return invalid("operatingHours", "must be a finite number")
	}
	if hours < 0 {
		return invalid("operatingHours", "must be >= 0")
	}
	if hours > MaxOperatingHours {
		return invalid("operatingHours", fmt.Sprintf("must be at most %d", MaxOperatingHours))
	}
	return nil
}

func indexOf(alarms []alarm.Alarm, id string) int {
	for i := range alarms {
		if alarms[i].ID == id {
			return i
		}
	}
	return -1
}
