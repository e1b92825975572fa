package alarm

import "time"

// Alarm is an hour-based preventive maintenance rule embedded in a machine.
//
// AccumulatedHours is the only source of truth for when the alarm fires next.
// LastTriggeredHours is kept for display and is never read by the engine.
type Alarm struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	RelatedParts       []string   `json:"relatedParts,omitempty"`
	IntervalHours      float64    `json:"intervalHours"`
	AccumulatedHours   float64    `json:"accumulatedHours"`
	IsActive           bool       `json:"isActive"`
	CreatedBy          string     `json:"createdBy"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	TimesTriggered     int        `json:"timesTriggered"`
	LastTriggeredAt    *time.Time `json:"lastTriggeredAt,omitempty"`
	LastTriggeredHours float64    `json:"lastTriggeredHours,omitempty"`
}

// HoursUntilDue returns how many operating hours remain before the next trigger.
func (a Alarm) HoursUntilDue() float64 {
	if a.IntervalHours <= 0 {
		return 0
	}
	return a.IntervalHours - a.AccumulatedHours
}
