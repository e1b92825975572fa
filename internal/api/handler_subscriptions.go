package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"fleet-history-backend/internal/model"
	"fleet-history-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser for the acting user. Re-registering an
// endpoint moves it to the current user and refreshes its keys.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint:  req.Endpoint,
		UserID:    mw.ActorID(c),
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		CreatedAt: time.Now().UTC(),
	}
	err := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&subscription).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the acting user's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).
		Where("endpoint = ? AND user_id = ?", req.Endpoint, mw.ActorID(c)).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscriptions lists the endpoints registered by the acting user.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	var subs []model.PushSubscription
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", mw.ActorID(c)).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		respondError(c, err)
		return
	}

	endpoints := make([]string, len(subs))
	for i, s := range subs {
		endpoints[i] = s.Endpoint
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
