package machine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-history-backend/internal/alarm"
)

const (
	maxAlarmTitleLength       = 100
	maxAlarmDescriptionLength = 1000
	maxRelatedParts           = 50
	maxRelatedPartLength      = 100

	// MinIntervalHours bounds how many triggers one meter update can produce.
	MinIntervalHours = 1.0
)

// AlarmInput is the user editable part of a maintenance alarm.
type AlarmInput struct {
	Title         string
	Description   string
	RelatedParts  []string
	IntervalHours float64
}

// AlarmPatch updates only the non-nil fields.
type AlarmPatch struct {
	Title         *string
	Description   *string
	RelatedParts  *[]string
	IntervalHours *float64
	IsActive      *bool
}

// CreateAlarm attaches a new active alarm with an empty accumulator.
func (m *Machine) CreateAlarm(in AlarmInput, createdBy string, now time.Time) (alarm.Alarm, error) {
	if m.Status == StatusRetired {
		return alarm.Alarm{}, invalid("status", "cannot add alarms to a retired machine")
	}
	if strings.TrimSpace(createdBy) == "" {
		return alarm.Alarm{}, invalid("createdBy", "must not be empty")
	}
	title, err := validateAlarmTitle(in.Title)
	if err != nil {
		return alarm.Alarm{}, err
	}
	desc, err := validateAlarmDescription(in.Description)
	if err != nil {
		return alarm.Alarm{}, err
	}
	if err := validateInterval(in.IntervalHours); err != nil {
		return alarm.Alarm{}, err
	}
	parts, err := cleanParts(in.RelatedParts)
	if err != nil {
		return alarm.Alarm{}, err
	}

	now = normalizeTime(now)
	a := alarm.Alarm{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   desc,
		RelatedParts:  parts,
		IntervalHours: in.IntervalHours,
		IsActive:      true,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.MaintenanceAlarms = append(m.MaintenanceAlarms, a)
	return a, nil
}

// UpdateAlarm applies patch to the alarm with the given id. The accumulator
// and trigger counters are owned by the engine and cannot be patched.
func (m *Machine) UpdateAlarm(id string, patch AlarmPatch, now time.Time) (alarm.Alarm, error) {
	i := m.alarmIndex(id)
	if i < 0 {
		return alarm.Alarm{}, &NotFoundError{Kind: "alarm", ID: id}
	}
	a := m.MaintenanceAlarms[i]

	if patch.Title != nil {
		title, err := validateAlarmTitle(*patch.Title)
		if err != nil {
			return alarm.Alarm{}, err
		}
		a.Title = title
	}
	if patch.Description != nil {
		desc, err := validateAlarmDescription(*patch.Description)
		if err != nil {
			return alarm.Alarm{}, err
		}
		a.Description = desc
	}
	if patch.RelatedParts != nil {
		parts, err := cleanParts(*patch.RelatedParts)
		if err != nil {
			return alarm.Alarm{}, err
		}
		a.RelatedParts = parts
	}
	if patch.IntervalHours != nil {
		if err := validateInterval(*patch.IntervalHours); err != nil {
			return alarm.Alarm{}, err
		}
		a.IntervalHours = *patch.IntervalHours
	}
	if patch.IsActive != nil {
		if *patch.IsActive && m.Status == StatusRetired {
			return alarm.Alarm{}, invalid("isActive", "cannot activate alarms of a retired machine")
		}
		a.IsActive = *patch.IsActive
	}

	a.UpdatedAt = normalizeTime(now)
	m.MaintenanceAlarms[i] = a
	return a, nil
}

// DeactivateAlarm soft-deletes an alarm. Its accumulator is frozen.
func (m *Machine) DeactivateAlarm(id string, now time.Time) (alarm.Alarm, error) {
	off := false
	return m.UpdateAlarm(id, AlarmPatch{IsActive: &off}, now)
}

// ReactivateAlarm resumes a deactivated alarm from its frozen accumulator.
func (m *Machine) ReactivateAlarm(id string, now time.Time) (alarm.Alarm, error) {
	on := true
	return m.UpdateAlarm(id, AlarmPatch{IsActive: &on}, now)
}

// Alarm returns the alarm with the given id.
func (m *Machine) Alarm(id string) (alarm.Alarm, bool) {
	if i := m.alarmIndex(id); i >= 0 {
		return m.MaintenanceAlarms[i], true
	}
	return alarm.Alarm{}, false
}

func (m *Machine) alarmIndex(id string) int {
	for i := range m.MaintenanceAlarms {
		if m.MaintenanceAlarms[i].ID == id {
			return i
		}
	}
	return -1
}

func validateAlarmTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "must not be empty")
	}
	if len(title) > maxAlarmTitleLength {
		return "", invalid("title", fmt.Sprintf("must be at most %d characters", maxAlarmTitleLength))
	}
	return title, nil
}

func validateAlarmDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if len(desc) > maxAlarmDescriptionLength {
		return "", invalid("description", fmt.Sprintf("must be at most %d characters", maxAlarmDescriptionLength))
	}
	return desc, nil
}

func validateInterval(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return invalid("intervalHours", "interval must be > 0")
	}
	if hours < MinIntervalHours {
		return invalid("intervalHours", fmt.Sprintf("interval must be at least %g hours", MinIntervalHours))
	}
	return nil
}

func cleanParts(parts []string) ([]string, error) {
	if len(parts) > maxRelatedParts {
		return nil, invalid("relatedParts", fmt.Sprintf("must contain at most %d parts", maxRelatedParts))
	}
	var out []string
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) > maxRelatedPartLength {
			return nil, invalid(fmt.Sprintf("relatedParts[%d]", i), fmt.Sprintf("must be at most %d characters", maxRelatedPartLength))
		}
		out = append(out, p)
	}
	return out, nil
}
