package api

import (
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
)

// identityMiddleware reads the identity asserted by the authenticating
// gateway. Authentication itself happens upstream; this service only
// trusts the forwarded headers.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if idStr := c.GetHeader("X-User-ID"); idStr != "" {
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil && id > 0 {
				c.Set(ctxUserID, id)
			}
		}
		if role := c.GetHeader("X-User-Role"); role != "" {
			c.Set(ctxUserRole, role)
		}
		c.Next()
	}
}

// currentUser returns the authenticated user id, or 0 when anonymous.
func currentUser(c *gin.Context) int64 {
	if id, ok := c.Get(ctxUserID); ok {
		return id.(int64)
	}
	return 0
}

func isAdmin(c *gin.Context) bool {
	role, ok := c.Get(ctxUserRole)
	return ok && role.(string) == models.RoleAdmin
}

// requireUser aborts anonymous requests
func requireUser(c *gin.Context) {
	if currentUser(c) == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
	}
}

// requireAdmin aborts requests without the admin role
func requireAdmin(c *gin.Context) {
	if !isAdmin(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Admin access required",
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
