package machine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-history-backend/internal/alarm"
)

// Status is the lifecycle state of a machine.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusMaintenance  Status = "MAINTENANCE"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusRetired      Status = "RETIRED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusMaintenance, StatusOutOfService, StatusRetired:
		return true
	}
	return false
}

// Specs holds the technical data of a machine. OperatingHours is the shared
// meter every maintenance alarm accumulates from.
type Specs struct {
	OperatingHours float64 `json:"operatingHours"`
	Year           int     `json:"year,omitempty"`
	FuelType       string  `json:"fuelType,omitempty"`
	Capacity       string  `json:"capacity,omitempty"`
}

// Machine is the aggregate root. Its three histories have no existence
// outside of it.
//
// Store reads may load only the collections an operation needs; the
// aggregate methods only touch the fields they document.
type Machine struct {
	ID                 string
	SerialNumber       string
	Brand              string
	ModelName          string
	Status             Status
	OwnerID            string
	AssignedProviderID string
	Specs              Specs

	QuickChecks       []QuickCheckRecord
	EventsHistory     []Event
	MaintenanceAlarms []alarm.Alarm

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewParams carries the user supplied fields of a new machine.
type NewParams struct {
	SerialNumber       string
	Brand              string
	ModelName          string
	OwnerID            string
	AssignedProviderID string
	Specs              Specs
}

// New validates params and builds an ACTIVE machine with empty histories.
func New(p NewParams, now time.Time) (*Machine, error) {
	serial := strings.TrimSpace(p.SerialNumber)
	switch {
	case serial == "":
		return nil, invalid("serialNumber", "must not be empty")
	case len(serial) > 64:
		return nil, invalid("serialNumber", "must be at most 64 characters")
	case strings.TrimSpace(p.Brand) == "":
		return nil, invalid("brand", "must not be empty")
	case strings.TrimSpace(p.ModelName) == "":
		return nil, invalid("modelName", "must not be empty")
	case strings.TrimSpace(p.OwnerID) == "":
		return nil, invalid("ownerId", "must not be empty")
	}
	if err := validateHours(p.Specs.OperatingHours); err != nil {
		return nil, err
	}

	now = normalizeTime(now)
	return &Machine{
		ID:                 uuid.NewString(),
		SerialNumber:       serial,
		Brand:              strings.TrimSpace(p.Brand),
		ModelName:          strings.TrimSpace(p.ModelName),
		Status:             StatusActive,
		OwnerID:            strings.TrimSpace(p.OwnerID),
		AssignedProviderID: strings.TrimSpace(p.AssignedProviderID),
		Specs:              p.Specs,
		QuickChecks:        []QuickCheckRecord{},
		EventsHistory:      []Event{},
		MaintenanceAlarms:  []alarm.Alarm{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// ChangeStatus moves the machine to s. RETIRED is terminal.
func (m *Machine) ChangeStatus(s Status) error {
	if !s.Valid() {
		return invalid("status", "must be one of ACTIVE, MAINTENANCE, OUT_OF_SERVICE, RETIRED")
	}
	if m.Status == StatusRetired && s != StatusRetired {
		return invalid("status", "a retired machine cannot change status")
	}
	m.Status = s
	return nil
}

// AssignProvider sets or clears (empty id) the assigned service provider.
func (m *Machine) AssignProvider(providerID string) {
	m.AssignedProviderID = strings.TrimSpace(providerID)
}

// Recipients returns the users that hear about maintenance triggers.
func (m *Machine) Recipients() []string {
	var out []string
	if m.OwnerID != "" {
		out = append(out, m.OwnerID)
	}
	if m.AssignedProviderID != "" && m.AssignedProviderID != m.OwnerID {
		out = append(out, m.AssignedProviderID)
	}
	return out
}

// normalizeTime drops sub-millisecond precision so stored timestamps sort
// identically in every backing store.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
