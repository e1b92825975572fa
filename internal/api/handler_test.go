package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-history-backend/internal/fleet"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/store"
)

func TestMachines_RequireActor(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/machines", "", map[string]any{"serialNumber": "A1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMachines_RegisterAndGet(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-100")

	w := s.do(t, http.MethodGet, "/api/machines/"+id, "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[machineResponse](t, w)
	assert.Equal(t, "VX-100", m.SerialNumber)
	assert.Equal(t, machine.StatusActive, m.Status)
	assert.Equal(t, "owner-1", m.OwnerID)
	assert.NotContains(t, w.Body.String(), "eventsHistory")

	w = s.do(t, http.MethodPost, "/api/machines", "owner-1", map[string]any{
		"serialNumber": "VX-100", "brand": "Volvo", "model": "EC220",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "serialNumber", decode[map[string]any](t, w)["field"])

	w = s.do(t, http.MethodGet, "/api/machines/missing", "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMachines_StatusInvalidatesCache(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-101")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/machines/"+id, "owner-1", nil).Code)
	cached := s.do(t, http.MethodGet, "/api/machines/"+id, "owner-1", nil)
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))

	w := s.do(t, http.MethodPatch, "/api/machines/"+id+"/status", "owner-1", map[string]any{"status": "MAINTENANCE"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/machines/"+id, "owner-1", nil)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, machine.StatusMaintenance, decode[machineResponse](t, w).Status)

	w = s.do(t, http.MethodPatch, "/api/machines/"+id+"/status", "owner-1", map[string]any{"status": "BROKEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperatingHours_TriggersAlarm(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-102")

	w := s.do(t, http.MethodPut, "/api/machines/"+id+"/provider", "owner-1", map[string]any{"providerId": "prov-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/machines/"+id+"/alarms", "owner-1", map[string]any{
		"title": "Oil change", "intervalHours": 250, "relatedParts": []string{"oil filter"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[alarmResponse](t, w)
	assert.Equal(t, 250.0, created.HoursUntilDue)

	w = s.do(t, http.MethodPost, "/api/machines/"+id+"/operating-hours", "owner-1", map[string]any{"operatingHours": 260})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[fleet.HoursResult](t, w)
	assert.Equal(t, 260.0, res.Delta)
	require.Len(t, res.Triggers, 1)
	assert.Equal(t, 250.0, res.Triggers[0].TriggeredAtHours)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/alarms", "owner-1", nil)
	alarms := decode[struct {
		Alarms []alarmResponse `json:"alarms"`
	}](t, w).Alarms
	require.Len(t, alarms, 1)
	assert.Equal(t, 10.0, alarms[0].AccumulatedHours)
	assert.Equal(t, 1, alarms[0].TimesTriggered)

	w = s.do(t, http.MethodPost, "/api/machines/"+id+"/operating-hours", "owner-1", map[string]any{"operatingHours": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/machines/"+id+"/operating-hours", "owner-1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/events?system=true", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[store.Page[machine.Event]](t, w)
	assert.EqualValues(t, 1, page.Total)
	assert.True(t, page.Items[0].IsSystemGenerated)

	var due int64
	require.NoError(t, s.db.Model(&model.NotificationIntent{}).Where("kind = ?", model.IntentMaintenanceDue).Count(&due).Error)
	assert.EqualValues(t, 2, due)
}

func TestAlarms_UpdateDeactivateReactivate(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-103")
	w := s.do(t, http.MethodPost, "/api/machines/"+id+"/alarms", "owner-1", map[string]any{"title": "Grease", "intervalHours": 50})
	require.Equal(t, http.StatusCreated, w.Code)
	alarmID := decode[alarmResponse](t, w).ID
	base := "/api/machines/" + id + "/alarms/" + alarmID

	w = s.do(t, http.MethodPut, base, "owner-1", map[string]any{"intervalHours": 75})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[alarmResponse](t, w)
	assert.Equal(t, 75.0, updated.IntervalHours)
	assert.Equal(t, "Grease", updated.Title)

	w = s.do(t, http.MethodPut, base, "owner-1", map[string]any{"intervalHours": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, base, "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[alarmResponse](t, w).IsActive)

	w = s.do(t, http.MethodPost, base+"/activate", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[alarmResponse](t, w).IsActive)

	w = s.do(t, http.MethodDelete, "/api/machines/"+id+"/alarms/nope", "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuickChecks_History(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-104")

	w := s.do(t, http.MethodGet, "/api/machines/"+id+"/quick-checks/latest", "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	for _, result := range []string{"approved", "disapproved", "approved"} {
		w = s.do(t, http.MethodPost, "/api/machines/"+id+"/quick-checks", "inspector-1", map[string]any{
			"result":              result,
			"responsibleName":     "Ana Ruiz",
			"responsibleWorkerId": "W-17",
			"checkedItems":        []map[string]any{{"name": "Tires", "result": "approved"}},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/quick-checks?result=approved&limit=1", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[store.Page[machine.QuickCheckRecord]](t, w)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "inspector-1", page.Items[0].ExecutorID)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/quick-checks/latest", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, machine.QuickCheckApproved, decode[machine.QuickCheckRecord](t, w).Result)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/quick-checks?from=yesterday", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "from", decode[map[string]any](t, w)["field"])

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/quick-checks?page=x", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_AddAndTypes(t *testing.T) {
	s := newTestServer(t)
	id := s.registerMachine(t, "VX-105")

	w := s.do(t, http.MethodPost, "/api/machines/"+id+"/events", "mechanic-1", map[string]any{
		"typeName": "Hydraulic leak", "title": "Leak on boom cylinder",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ev := decode[machine.Event](t, w)
	assert.Equal(t, "mechanic-1", ev.CreatedBy)
	assert.False(t, ev.IsSystemGenerated)

	w = s.do(t, http.MethodPost, "/api/machines/"+id+"/events", "mechanic-1", map[string]any{"title": "no type"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/event-types?q=hyd", "mechanic-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[struct {
		EventTypes []model.EventType `json:"eventTypes"`
	}](t, w).EventTypes
	require.Len(t, types, 1)
	assert.Equal(t, ev.TypeID, types[0].ID)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/events?typeId="+ev.TypeID+"&q=boom", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[store.Page[machine.Event]](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/events?system=maybe", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/machines/"+id+"/events/latest", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ev.ID, decode[machine.Event](t, w).ID)
}
