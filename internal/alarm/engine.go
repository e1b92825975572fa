package alarm

import (
	"math"
	"sort"
	"time"
)

// Trigger describes one full interval crossed by an alarm.
type Trigger struct {
	AlarmID       string
	Title         string
	Description   string
	RelatedParts  []string
	IntervalHours float64
	// Occurrence is the alarm's TimesTriggered value after this trigger.
	Occurrence int
	// Offset is how far into the delta the interval was crossed.
	Offset      float64
	TriggeredAt time.Time
}

// MaxTriggersPerAdvance bounds the triggers reported for one alarm in one
// call. Older crossings beyond it still count in TimesTriggered but produce
// no Trigger.
const MaxTriggersPerAdvance = 100

// Outcome is the result of advancing one alarm by a meter delta.
type Outcome struct {
	Alarm     Alarm
	Fired     int
	Triggers  []Trigger
	Remainder float64
}

// Advance adds deltaHours to the alarm's accumulator and fires once for every
// full interval crossed, oldest first. Fired counts every crossing while
// Triggers holds at most the latest MaxTriggersPerAdvance of them. Inactive
// alarms, non-positive deltas and malformed intervals leave the alarm
// untouched.
func Advance(a Alarm, deltaHours float64, now time.Time) Outcome {
	out := Outcome{Alarm: a, Remainder: a.AccumulatedHours}
	if !a.IsActive || a.IntervalHours <= 0 || deltaHours <= 0 ||
		math.IsNaN(deltaHours) || math.IsInf(deltaHours, 0) {
		return out
	}

	start := a.AccumulatedHours
	if start < 0 {
		start = 0
	}
	acc := start + deltaHours
	crossed := 0
	if n := math.Floor(acc / a.IntervalHours); n > MaxTriggersPerAdvance {
		crossed = int(n) - MaxTriggersPerAdvance
		acc -= float64(crossed) * a.IntervalHours
		a.TimesTriggered += crossed
	}
	for acc >= a.IntervalHours {
		crossed++
		acc -= a.IntervalHours
		a.TimesTriggered++
		out.Triggers = append(out.Triggers, Trigger{
			AlarmID:       a.ID,
			Title:         a.Title,
			Description:   a.Description,
			RelatedParts:  a.RelatedParts,
			IntervalHours: a.IntervalHours,
			Occurrence:    a.TimesTriggered,
			Offset:        float64(crossed)*a.IntervalHours - start,
			TriggeredAt:   now,
		})
	}

	a.AccumulatedHours = acc
	if crossed > 0 {
		t := now
		a.LastTriggeredAt = &t
	}
	out.Alarm = a
	out.Fired = crossed
	out.Remainder = acc
	return out
}

// AdvanceAll advances every alarm in order and returns the updated alarms
// together with all triggers in crossing order.
func AdvanceAll(alarms []Alarm, deltaHours float64, now time.Time) ([]Alarm, []Trigger) {
	updated := make([]Alarm, len(alarms))
	var triggers []Trigger
	for i, a := range alarms {
		out := Advance(a, deltaHours, now)
		updated[i] = out.Alarm
		triggers = append(triggers, out.Triggers...)
	}
	sortByOffset(triggers)
	return updated, triggers
}

// sortByOffset orders triggers by the point in the delta at which they
// happened. Triggers of one alarm keep their relative order.
func sortByOffset(triggers []Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Offset < triggers[j].Offset
	})
}
