package api

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fleet-history-backend/config"
	"fleet-history-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, h *Handler, responses *mw.ResponseCache, health healthcheck.Handler) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(zap.L(), true))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if health != nil {
		r.GET("/live", gin.WrapF(health.LiveEndpoint))
		r.GET("/ready", gin.WrapF(health.ReadyEndpoint))
	}

	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	burst := max(int(cfg.RateLimitPerSec/2), 5)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limit, burst, mw.ClientKey(cfg.RequestIPHeader)))
	api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(mw.Actor(cfg.UserIDHeader))
	{
		authed.GET("/event-types", h.ListEventTypes)

		authed.GET("/subscriptions", h.GetSubscriptions)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)

		authed.POST("/machines", h.RegisterMachine)
	}

	machines := authed.Group("/machines/:id")
	if responses != nil {
		machines.Use(responses.Middleware())
	}
	{
		machines.GET("", h.GetMachine)
		machines.PATCH("/status", h.UpdateStatus)
		machines.PUT("/provider", h.AssignProvider)
		machines.POST("/operating-hours", h.RecordOperatingHours)

		machines.POST("/quick-checks", h.AddQuickCheck)
		machines.GET("/quick-checks", h.GetQuickChecks)
		machines.GET("/quick-checks/latest", h.LatestQuickCheck)

		machines.POST("/events", h.AddEvent)
		machines.GET("/events", h.GetEvents)
		machines.GET("/events/latest", h.LatestEvent)

		machines.GET("/alarms", h.ListAlarms)
		machines.POST("/alarms", h.CreateAlarm)
		machines.PUT("/alarms/:alarmId", h.UpdateAlarm)
		machines.DELETE("/alarms/:alarmId", h.DeactivateAlarm)
		machines.POST("/alarms/:alarmId/activate", h.ReactivateAlarm)
	}

	return r
}

// InvalidateMachine returns a callback that drops every cached response
// of one machine.
func InvalidateMachine(responses *mw.ResponseCache) func(machineID string) {
	return func(machineID string) {
		base := "/api/machines/" + machineID
		responses.InvalidatePrefix(base + "/")
		responses.InvalidatePrefix(base + "?")
		responses.Invalidate(base)
	}
}
