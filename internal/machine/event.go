package machine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"fleet-history-backend/internal/alarm"
)

const (
	MaxEventTitleLength       = 100
	MaxEventDescriptionLength = 1000
)

// Event is an immutable activity record.
type Event struct {
	ID                string         `json:"id"`
	TypeID            string         `json:"typeId"`
	TypeName          string         `json:"typeName,omitempty"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	CreatedBy         string         `json:"createdBy"`
	Date              time.Time      `json:"date"`
	IsSystemGenerated bool           `json:"isSystemGenerated"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// AddEvent validates ev and prepends it to EventsHistory. When capacity is
// positive the oldest entries are evicted first so the history never exceeds
// it. It returns the stored event and the number of evicted entries.
func (m *Machine) AddEvent(ev Event, capacity int, now time.Time) (Event, int, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	ev.Description = strings.TrimSpace(ev.Description)

	switch {
	case strings.TrimSpace(ev.TypeID) == "":
		return Event{}, 0, invalid("typeId", "must not be empty")
	case ev.Title == "":
		return Event{}, 0, invalid("title", "must not be empty")
	case len(ev.Title) > MaxEventTitleLength:
		return Event{}, 0, invalid("title", fmt.Sprintf("must be at most %d characters", MaxEventTitleLength))
	case len(ev.Description) > MaxEventDescriptionLength:
		return Event{}, 0, invalid("description", fmt.Sprintf("must be at most %d characters", MaxEventDescriptionLength))
	case !ev.IsSystemGenerated && strings.TrimSpace(ev.CreatedBy) == "":
		return Event{}, 0, invalid("createdBy", "must not be empty")
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	// Insertion order is the newest-first order, so the date is always ours.
	ev.Date = normalizeTime(now)

	evicted := 0
	if capacity > 0 && len(m.EventsHistory) >= capacity {
		keep := capacity - 1
		evicted = len(m.EventsHistory) - keep
		m.EventsHistory = m.EventsHistory[:keep]
	}

	history := make([]Event, 0, len(m.EventsHistory)+1)
	history = append(history, ev)
	m.EventsHistory = append(history, m.EventsHistory...)
	return ev, evicted, nil
}

// MaintenanceDueEvent builds the system event recorded for one alarm trigger.
// atHours is the meter reading at which the interval was crossed.
func MaintenanceDueEvent(t alarm.Trigger, typeID, typeName string, atHours float64) Event {
	desc := fmt.Sprintf("Preventive maintenance due after %.1f operating hours (every %.1f h).", atHours, t.IntervalHours)
	if len(t.RelatedParts) > 0 {
		desc += " Parts: " + strings.Join(t.RelatedParts, ", ") + "."
	}
	meta := map[string]any{
		"alarmId":          t.AlarmID,
		"intervalHours":    t.IntervalHours,
		"triggeredAtHours": atHours,
		"occurrence":       t.Occurrence,
	}
	if len(t.RelatedParts) > 0 {
		meta["relatedParts"] = t.RelatedParts
	}
	return Event{
		TypeID:            typeID,
		TypeName:          typeName,
		Title:             clip("Maintenance due: "+t.Title, MaxEventTitleLength),
		Description:       clip(desc, MaxEventDescriptionLength),
		IsSystemGenerated: true,
		Metadata:          meta,
	}
}

// clip cuts s to at most limit bytes without splitting a rune. Clipped text
// ends with an ellipsis.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	const ellipsis = "…"
	cut := limit - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + ellipsis
}
