package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleet-history-backend/internal/machine"
)

// respondError maps service errors onto status codes. Storage failures are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	var (
		invalid  *machine.ValidationError
		notFound *machine.NotFoundError
		conflict *machine.ConflictError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error(), "field": invalid.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	default:
		zap.S().Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
