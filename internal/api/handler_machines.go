package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/mw"
)

type machineResponse struct {
	ID                 string         `json:"id"`
	SerialNumber       string         `json:"serialNumber"`
	Brand              string         `json:"brand"`
	ModelName          string         `json:"model"`
	Status             machine.Status `json:"status"`
	OwnerID            string         `json:"ownerId"`
	AssignedProviderID string         `json:"assignedProviderId,omitempty"`
	Specs              machine.Specs  `json:"specs"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func toMachineResponse(m *machine.Machine) machineResponse {
	return machineResponse{
		ID:                 m.ID,
		SerialNumber:       m.SerialNumber,
		Brand:              m.Brand,
		ModelName:          m.ModelName,
		Status:             m.Status,
		OwnerID:            m.OwnerID,
		AssignedProviderID: m.AssignedProviderID,
		Specs:              m.Specs,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type registerMachineRequest struct {
	SerialNumber       string        `json:"serialNumber" binding:"required"`
	Brand              string        `json:"brand"`
	ModelName          string        `json:"model"`
	OwnerID            string        `json:"ownerId"`
	AssignedProviderID string        `json:"assignedProviderId"`
	Specs              machine.Specs `json:"specs"`
}

// RegisterMachine handles POST /api/machines.
func (h *Handler) RegisterMachine(c *gin.Context) {
	var req registerMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.svc.RegisterMachine(c.Request.Context(), mw.ActorID(c), machine.NewParams{
		SerialNumber:       req.SerialNumber,
		Brand:              req.Brand,
		ModelName:          req.ModelName,
		OwnerID:            req.OwnerID,
		AssignedProviderID: req.AssignedProviderID,
		Specs:              req.Specs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMachineResponse(m))
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.svc.GetMachine(c.Request.Context(), mw.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMachineResponse(m))
}

type statusRequest struct {
	Status machine.Status `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /api/machines/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.UpdateMachineStatus(c.Request.Context(), mw.ActorID(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMachineResponse(m))
}

type providerRequest struct {
	ProviderID string `json:"providerId"`
}

// AssignProvider handles PUT /api/machines/:id/provider. An empty id clears it.
func (h *Handler) AssignProvider(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.AssignProvider(c.Request.Context(), mw.ActorID(c), c.Param("id"), req.ProviderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMachineResponse(m))
}

type operatingHoursRequest struct {
	OperatingHours *float64 `json:"operatingHours" binding:"required"`
}

// RecordOperatingHours handles POST /api/machines/:id/operating-hours. The
// body carries the new absolute meter reading.
func (h *Handler) RecordOperatingHours(c *gin.Context) {
	var req operatingHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.RecordOperatingHours(c.Request.Context(), mw.ActorID(c), c.Param("id"), *req.OperatingHours)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
