package store

import (
	"gorm.io/datatypes"

	"fleet-history-backend/internal/alarm"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/model"
)

func toModel(m *machine.Machine) model.Machine {
	return model.Machine{
		ID:                 m.ID,
		SerialNumber:       m.SerialNumber,
		Brand:              m.Brand,
		ModelName:          m.ModelName,
		Status:             string(m.Status),
		OwnerID:            m.OwnerID,
		AssignedProviderID: m.AssignedProviderID,
		OperatingHours:     m.Specs.OperatingHours,
		Year:               m.Specs.Year,
		FuelType:           m.Specs.FuelType,
		Capacity:           m.Specs.Capacity,
		QuickChecks:        quickChecksColumn(m.QuickChecks),
		EventsHistory:      eventsColumn(m.EventsHistory),
		MaintenanceAlarms:  alarmsColumn(m.MaintenanceAlarms),
		Version:            m.Version,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toDomain(r *model.Machine) *machine.Machine {
	return &machine.Machine{
		ID:                 r.ID,
		SerialNumber:       r.SerialNumber,
		Brand:              r.Brand,
		ModelName:          r.ModelName,
		Status:             machine.Status(r.Status),
		OwnerID:            r.OwnerID,
		AssignedProviderID: r.AssignedProviderID,
		Specs: machine.Specs{
			OperatingHours: r.OperatingHours,
			Year:           r.Year,
			FuelType:       r.FuelType,
			Capacity:       r.Capacity,
		},
		QuickChecks:       []machine.QuickCheckRecord(r.QuickChecks),
		EventsHistory:     []machine.Event(r.EventsHistory),
		MaintenanceAlarms: []alarm.Alarm(r.MaintenanceAlarms),
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// The column helpers never hand a nil slice to the driver: a nil slice
// encodes as JSON null, which the array functions reject.

func quickChecksColumn(v []machine.QuickCheckRecord) datatypes.JSONSlice[machine.QuickCheckRecord] {
	if v == nil {
		v = []machine.QuickCheckRecord{}
	}
	return datatypes.NewJSONSlice(v)
}

func eventsColumn(v []machine.Event) datatypes.JSONSlice[machine.Event] {
	if v == nil {
		v = []machine.Event{}
	}
	return datatypes.NewJSONSlice(v)
}

func alarmsColumn(v []alarm.Alarm) datatypes.JSONSlice[alarm.Alarm] {
	if v == nil {
		v = []alarm.Alarm{}
	}
	return datatypes.NewJSONSlice(v)
}
