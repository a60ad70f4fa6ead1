package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// tenantIDKey and actorIDKey store the request identity in the Gin context.
const (
	tenantIDKey = contextKey("tenantID")
	actorIDKey  = contextKey("actorID")

	tenantHeader = "X-Tenant-ID"
	actorHeader  = "X-Actor-ID"
)

// RequireIdentity extracts the tenant and actor from request headers and
// rejects requests missing either. Authentication itself lives in front of
// this service; the posting core only requires that every call arrives with
// an explicit tenant and actor, never an implicit session.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(tenantHeader)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing " + tenantHeader + " header"})
			return
		}
		actorID := c.GetHeader(actorHeader)
		if actorID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing " + actorHeader + " header"})
			return
		}

		c.Set(string(tenantIDKey), tenantID)
		c.Set(string(actorIDKey), actorID)
		c.Next()
	}
}

// GetTenantIDFromContext retrieves the tenant ID from the Gin context.
func GetTenantIDFromContext(c *gin.Context) (string, bool) {
	val, exists := c.Get(string(tenantIDKey))
	if !exists {
		return "", false
	}
	tenantID, ok := val.(string)
	if !ok {
		return "", false
	}
	return tenantID, true
}

// GetActorIDFromContext retrieves the acting user ID from the Gin context.
func GetActorIDFromContext(c *gin.Context) (string, bool) {
	val, exists := c.Get(string(actorIDKey))
	if !exists {
		return "", false
	}
	actorID, ok := val.(string)
	if !ok {
		return "", false
	}
	return actorID, true
}
