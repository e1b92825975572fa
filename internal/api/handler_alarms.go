package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-history-backend/internal/alarm"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/mw"
)

type alarmResponse struct {
	alarm.Alarm
	HoursUntilDue float64 `json:"hoursUntilDue"`
}

func toAlarmResponse(a alarm.Alarm) alarmResponse {
	return alarmResponse{Alarm: a, HoursUntilDue: a.HoursUntilDue()}
}

// ListAlarms handles GET /api/machines/:id/alarms.
func (h *Handler) ListAlarms(c *gin.Context) {
	alarms, err := h.svc.ListAlarms(c.Request.Context(), mw.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]alarmResponse, 0, len(alarms))
	for _, a := range alarms {
		out = append(out, toAlarmResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"alarms": out})
}

type createAlarmRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	RelatedParts  []string `json:"relatedParts"`
	IntervalHours float64  `json:"intervalHours"`
}

// CreateAlarm handles POST /api/machines/:id/alarms.
func (h *Handler) CreateAlarm(c *gin.Context) {
	var req createAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.svc.CreateAlarm(c.Request.Context(), mw.ActorID(c), c.Param("id"), machine.AlarmInput{
		Title:         req.Title,
		Description:   req.Description,
		RelatedParts:  req.RelatedParts,
		IntervalHours: req.IntervalHours,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAlarmResponse(a))
}

type updateAlarmRequest struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	RelatedParts  *[]string `json:"relatedParts"`
	IntervalHours *float64  `json:"intervalHours"`
	IsActive      *bool     `json:"isActive"`
}

// UpdateAlarm handles PUT /api/machines/:id/alarms/:alarmId. Omitted fields
// are left unchanged.
func (h *Handler) UpdateAlarm(c *gin.Context) {
	var req updateAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.svc.UpdateAlarm(c.Request.Context(), mw.ActorID(c), c.Param("id"), c.Param("alarmId"), machine.AlarmPatch{
		Title:         req.Title,
		Description:   req.Description,
		RelatedParts:  req.RelatedParts,
		IntervalHours: req.IntervalHours,
		IsActive:      req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlarmResponse(a))
}

// DeactivateAlarm handles DELETE /api/machines/:id/alarms/:alarmId.
func (h *Handler) DeactivateAlarm(c *gin.Context) {
	a, err := h.svc.DeactivateAlarm(c.Request.Context(), mw.ActorID(c), c.Param("id"), c.Param("alarmId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlarmResponse(a))
}

// ReactivateAlarm handles POST /api/machines/:id/alarms/:alarmId/activate.
func (h *Handler) ReactivateAlarm(c *gin.Context) {
	a, err := h.svc.ReactivateAlarm(c.Request.Context(), mw.ActorID(c), c.Param("id"), c.Param("alarmId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlarmResponse(a))
}
