package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-history-backend/internal/fleet"
	"fleet-history-backend/internal/machine"
	"fleet-history-backend/internal/mw"
	"fleet-history-backend/internal/store"
)

// historyParams reads the query parameters shared by both histories.
func historyParams(c *gin.Context) (f store.HistoryFilter, page, limit int, err error) {
	if page, err = intQuery(c, "page"); err != nil {
		return
	}
	if limit, err = intQuery(c, "limit"); err != nil {
		return
	}
	if f.From, err = timeQuery(c, "from"); err != nil {
		return
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return
	}
	f.Search = strings.TrimSpace(c.Query("q"))
	return
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &machine.ValidationError{Field: key, Reason: "must be an integer"}
	}
	return n, nil
}

// timeQuery accepts RFC 3339 timestamps and plain dates.
func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, &machine.ValidationError{Field: key, Reason: fmt.Sprintf("%q is not a RFC 3339 timestamp or date", raw)}
}

func setEquals(f *store.HistoryFilter, field, value string) {
	if value == "" {
		return
	}
	if f.Equals == nil {
		f.Equals = map[string]string{}
	}
	f.Equals[field] = value
}

type checkedItemRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Result      machine.ItemResult `json:"result"`
}

type quickCheckRequest struct {
	Result              machine.QuickCheckResult `json:"result"`
	ResponsibleName     string                   `json:"responsibleName"`
	ResponsibleWorkerID string                   `json:"responsibleWorkerId"`
	CheckedItems        []checkedItemRequest     `json:"checkedItems"`
	Observations        string                   `json:"observations"`
}

// AddQuickCheck handles POST /api/machines/:id/quick-checks.
func (h *Handler) AddQuickCheck(c *gin.Context) {
	var req quickCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rec := machine.QuickCheckRecord{
		Result:              req.Result,
		ResponsibleName:     req.ResponsibleName,
		ResponsibleWorkerID: req.ResponsibleWorkerID,
		Observations:        req.Observations,
	}
	for _, item := range req.CheckedItems {
		rec.CheckedItems = append(rec.CheckedItems, machine.CheckedItem{
			Name:        item.Name,
			Description: item.Description,
			Result:      item.Result,
		})
	}

	added, err := h.svc.AddQuickCheck(c.Request.Context(), mw.ActorID(c), c.Param("id"), rec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

// GetQuickChecks handles GET /api/machines/:id/quick-checks.
func (h *Handler) GetQuickChecks(c *gin.Context) {
	f, page, limit, err := historyParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	setEquals(&f, "result", c.Query("result"))
	setEquals(&f, "responsibleWorkerId", c.Query("responsibleWorkerId"))

	res, err := h.svc.GetQuickCheckHistory(c.Request.Context(), mw.ActorID(c), c.Param("id"), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LatestQuickCheck handles GET /api/machines/:id/quick-checks/latest.
func (h *Handler) LatestQuickCheck(c *gin.Context) {
	rec, err := h.svc.LatestQuickCheck(c.Request.Context(), mw.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type eventRequest struct {
	TypeID      string         `json:"typeId"`
	TypeName    string         `json:"typeName"`
	Language    string         `json:"language"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// AddEvent handles POST /api/machines/:id/events.
func (h *Handler) AddEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ev, err := h.svc.AddEvent(c.Request.Context(), mw.ActorID(c), c.Param("id"), fleet.EventInput{
		TypeID:      req.TypeID,
		TypeName:    req.TypeName,
		Language:    req.Language,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// GetEvents handles GET /api/machines/:id/events.
func (h *Handler) GetEvents(c *gin.Context) {
	f, page, limit, err := historyParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	setEquals(&f, "typeId", c.Query("typeId"))
	setEquals(&f, "createdBy", c.Query("createdBy"))
	if raw := c.Query("system"); raw != "" {
		system, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, &machine.ValidationError{Field: "system", Reason: "must be true or false"})
			return
		}
		f.Flags = map[string]bool{"isSystemGenerated": system}
	}

	res, err := h.svc.GetEventsHistory(c.Request.Context(), mw.ActorID(c), c.Param("id"), f, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LatestEvent handles GET /api/machines/:id/events/latest.
func (h *Handler) LatestEvent(c *gin.Context) {
	ev, err := h.svc.LatestEvent(c.Request.Context(), mw.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if ev == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// ListEventTypes handles GET /api/event-types.
func (h *Handler) ListEventTypes(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	types, err := h.svc.ListEventTypes(c.Request.Context(), c.Query("language"), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventTypes": types})
}
