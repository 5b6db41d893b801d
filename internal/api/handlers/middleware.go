package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/pkg/ids"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// UserIDHeader carries the caller identity set by the API gateway.
const UserIDHeader = "X-User-ID"

const userContextKey = "novelmaze.user"

// RequestLogger logs every request and counts it by route and status.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status))

		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// Identity resolves the X-User-ID header to a user. Requests without the
// header continue anonymously; an unknown or malformed id is rejected.
func (h *Handler) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.Next()
			return
		}
		if !ids.Valid(userID) {
			h.abort(c, http.StatusUnauthorized, "invalid user identity")
			return
		}

		user, err := h.users.GetByID(c.Request.Context(), userID)
		if repository.IsNotFound(err) {
			h.abort(c, http.StatusUnauthorized, "unknown user")
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve user identity")
			h.abort(c, http.StatusInternalServerError, "failed to resolve user")
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			h.abort(c, http.StatusUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireStaff rejects callers that are not admins or moderators.
func (h *Handler) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			h.abort(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.IsStaff() {
			h.abort(c, http.StatusForbidden, "staff role required")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func currentUserID(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return ""
}
