package machine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type QuickCheckResult string

const (
	QuickCheckApproved     QuickCheckResult = "approved"
	QuickCheckDisapproved  QuickCheckResult = "disapproved"
	QuickCheckNotInitiated QuickCheckResult = "notInitiated"
)

func (r QuickCheckResult) Valid() bool {
	switch r {
	case QuickCheckApproved, QuickCheckDisapproved, QuickCheckNotInitiated:
		return true
	}
	return false
}

type ItemResult string

const (
	ItemApproved    ItemResult = "approved"
	ItemDisapproved ItemResult = "disapproved"
	ItemOmitted     ItemResult = "omitted"
)

func (r ItemResult) Valid() bool {
	switch r {
	case ItemApproved, ItemDisapproved, ItemOmitted:
		return true
	}
	return false
}

const (
	maxResponsibleNameLength = 100
	maxWorkerIDLength        = 50
	maxObservationsLength    = 1000
	maxCheckedItems          = 200
)

// CheckedItem is one line of an inspection checklist.
type CheckedItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Result      ItemResult `json:"result"`
}

// QuickCheckRecord is an immutable inspection entry. The responsible person
// is captured as free text at submission time.
type QuickCheckRecord struct {
	ID                  string           `json:"id"`
	Result              QuickCheckResult `json:"result"`
	Date                time.Time        `json:"date"`
	ExecutorID          string           `json:"executorId"`
	ResponsibleName     string           `json:"responsibleName"`
	ResponsibleWorkerID string           `json:"responsibleWorkerId"`
	CheckedItems        []CheckedItem    `json:"checkedItems"`
	Observations        string           `json:"observations,omitempty"`
}

// AddQuickCheckRecord validates rec, stamps its id and date and prepends it to
// QuickChecks. Alarms are never touched.
func (m *Machine) AddQuickCheckRecord(rec QuickCheckRecord, now time.Time) (QuickCheckRecord, error) {
	rec.ResponsibleName = strings.TrimSpace(rec.ResponsibleName)
	rec.ResponsibleWorkerID = strings.TrimSpace(rec.ResponsibleWorkerID)
	rec.Observations = strings.TrimSpace(rec.Observations)

	switch {
	case strings.TrimSpace(rec.ExecutorID) == "":
		return QuickCheckRecord{}, invalid("executorId", "must not be empty")
	case rec.ResponsibleName == "":
		return QuickCheckRecord{}, invalid("responsibleName", "must not be empty")
	case len(rec.ResponsibleName) > maxResponsibleNameLength:
		return QuickCheckRecord{}, invalid("responsibleName", fmt.Sprintf("must be at most %d characters", maxResponsibleNameLength))
	case rec.ResponsibleWorkerID == "":
		return QuickCheckRecord{}, invalid("responsibleWorkerId", "must not be empty")
	case len(rec.ResponsibleWorkerID) > maxWorkerIDLength:
		return QuickCheckRecord{}, invalid("responsibleWorkerId", fmt.Sprintf("must be at most %d characters", maxWorkerIDLength))
	case len(rec.Observations) > maxObservationsLength:
		return QuickCheckRecord{}, invalid("observations", fmt.Sprintf("must be at most %d characters", maxObservationsLength))
	case len(rec.CheckedItems) > maxCheckedItems:
		return QuickCheckRecord{}, invalid("checkedItems", fmt.Sprintf("must contain at most %d items", maxCheckedItems))
	}

	items := make([]CheckedItem, len(rec.CheckedItems))
	for i, item := range rec.CheckedItems {
		item.Name = strings.TrimSpace(item.Name)
		item.Description = strings.TrimSpace(item.Description)
		if item.Name == "" {
			return QuickCheckRecord{}, invalid(fmt.Sprintf("checkedItems[%d].name", i), "must not be empty")
		}
		if !item.Result.Valid() {
			return QuickCheckRecord{}, invalid(fmt.Sprintf("checkedItems[%d].result", i), "must be one of approved, disapproved, omitted")
		}
		items[i] = item
	}
	rec.CheckedItems = items

	if rec.Result == "" {
		rec.Result = deriveResult(items)
	} else if !rec.Result.Valid() {
		return QuickCheckRecord{}, invalid("result", "must be one of approved, disapproved, notInitiated")
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Date = normalizeTime(now)

	m.QuickChecks = append([]QuickCheckRecord{rec}, m.QuickChecks...)
	return rec, nil
}

// deriveResult: any disapproved item fails the check, an empty list means the
// check was never started.
func deriveResult(items []CheckedItem) QuickCheckResult {
	if len(items) == 0 {
		return QuickCheckNotInitiated
	}
	for _, item := range items {
		if item.Result == ItemDisapproved {
			return QuickCheckDisapproved
		}
	}
	return QuickCheckApproved
}
