package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "actorID"

// Actor reads the acting user id from header. Requests without one are
// rejected; authenticating the id is left to the gateway in front.
func Actor(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(header))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": header + " header is required"})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

// ActorID returns the id stored by Actor.
func ActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}
